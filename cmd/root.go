package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wavemood/internal/config"
	"wavemood/internal/device/pa"
	"wavemood/internal/observe"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	version = "1.1.0"

	v   = config.New()
	app runtimeEnv
)

// runtimeEnv 子命令共享的运行环境，在 PersistentPreRunE 中初始化
type runtimeEnv struct {
	cfg             *config.Config
	logger          *logrus.Logger
	shutdownMetrics func(context.Context) error
	cancelMetrics   context.CancelFunc
}

var rootCmd = &cobra.Command{
	Use:   "wavemood",
	Short: "录音、播放并分析语音中的情绪",
	Long: `WaveMood 是一个音频工具，可以录制和播放音频，并按滑动窗口分析语音的情绪变化。
支持 WAV, FLAC, MP3 格式。

情绪模型从模型目录加载 (mlp.yaml, knn.yaml)，模型不可用时使用基于能量的启发式模型。`,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "配置文件路径 (默认查找 ./wavemood.yaml)")
	flags.String("log-level", "info", "日志级别 (debug, info, warn, error)")
	flags.String("log-format", "text", "日志格式 (text, json)")
	flags.String("metrics-addr", "", "Prometheus 指标监听地址，例如 :9090")
	flags.String("models", "models", "模型文件目录")
	flags.String("recordings", "", "录音文件目录")

	bindFlag(rootCmd, "log.level", "log-level")
	bindFlag(rootCmd, "log.format", "log-format")
	bindFlag(rootCmd, "metrics.addr", "metrics-addr")
	bindFlag(rootCmd, "paths.models", "models")
	bindFlag(rootCmd, "paths.recordings", "recordings")

	rootCmd.Flags().BoolP("version", "v", false, "显示版本信息")

	// 添加版本命令
	rootCmd.SetVersionTemplate("wavemood version {{.Version}}\n")
	rootCmd.Version = version

	rootCmd.AddCommand(analyzeCmd, recordCmd, playCmd, waveformCmd, sessionCmd)
}

// bindFlag 将命令行参数绑定到配置键，命令行优先于配置文件与环境变量
func bindFlag(cmd *cobra.Command, key, name string) {
	flag := cmd.PersistentFlags().Lookup(name)
	if flag == nil {
		flag = cmd.Flags().Lookup(name)
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("绑定参数 %s 失败: %v", name, err))
	}
}

func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return err
	}

	logger, err := observe.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	shutdown, err := observe.InitProvider(version)
	if err != nil {
		return fmt.Errorf("初始化指标失败: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	if cfg.Metrics.Addr != "" {
		observe.ServeMetrics(ctx, cfg.Metrics.Addr, logger)
	}

	app = runtimeEnv{cfg: cfg, logger: logger, shutdownMetrics: shutdown, cancelMetrics: cancel}
	logger.WithFields(logrus.Fields{
		"command": cmd.Name(),
		"config":  v.ConfigFileUsed(),
	}).Debug("配置已加载")
	return nil
}

func teardown(cmd *cobra.Command, args []string) error {
	if app.cancelMetrics != nil {
		app.cancelMetrics()
	}
	if app.shutdownMetrics != nil {
		return app.shutdownMetrics(context.Background())
	}
	return nil
}

// openBackend 打开 PortAudio 设备后端，调用方负责 Close
func openBackend() (*pa.Backend, error) {
	backend, err := pa.New()
	if err != nil {
		return nil, fmt.Errorf("初始化音频设备失败: %w", err)
	}
	return backend, nil
}

func closeBackend(backend *pa.Backend) {
	if err := backend.Close(); err != nil {
		app.logger.WithError(err).Warn("关闭音频设备失败")
	}
}
