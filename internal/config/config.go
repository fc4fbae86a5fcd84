package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"wavemood/internal/types"

	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，例如 WAVEMOOD_CAPTURE_SAMPLE_RATE
const EnvPrefix = "WAVEMOOD"

// appDirName 应用数据目录名
const appDirName = "WaveMood"

// Config 应用配置
type Config struct {
	Capture  CaptureConfig  `mapstructure:"capture"`
	Playback PlaybackConfig `mapstructure:"playback"`
	Paths    PathsConfig    `mapstructure:"paths"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	UI       UIConfig       `mapstructure:"ui"`
	Workers  int            `mapstructure:"workers"`
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// CaptureConfig 录音参数
type CaptureConfig struct {
	SampleRate   int           `mapstructure:"sample_rate"`
	BufferFrames int           `mapstructure:"buffer_frames"`
	QueueSize    int           `mapstructure:"queue_size"`
	JoinTimeout  time.Duration `mapstructure:"join_timeout"`
}

// PlaybackConfig 播放参数，SampleRate 为 0 表示使用文件自身的采样率
type PlaybackConfig struct {
	SampleRate   int `mapstructure:"sample_rate"`
	BufferFrames int `mapstructure:"buffer_frames"`
}

// PathsConfig 目录配置
type PathsConfig struct {
	Recordings string `mapstructure:"recordings"`
	Models     string `mapstructure:"models"`
}

// AnalysisConfig 分析参数
type AnalysisConfig struct {
	Window      float64 `mapstructure:"window"`
	Hop         float64 `mapstructure:"hop"`
	FMin        float64 `mapstructure:"fmin"`
	FMax        float64 `mapstructure:"fmax"`
	Concurrency int     `mapstructure:"concurrency"`
}

// UIConfig 界面刷新参数
type UIConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MeterBars    int           `mapstructure:"meter_bars"`
	MeterDecay   float64       `mapstructure:"meter_decay"`
}

// LogConfig 日志参数
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MetricsConfig 指标服务参数，Addr 为空时不启动
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// New 创建带默认值与环境变量绑定的 viper 实例
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefault(v)
	return v
}

func setDefault(v *viper.Viper) {
	v.SetDefault("capture.sample_rate", 22050)
	v.SetDefault("capture.buffer_frames", 1024)
	v.SetDefault("capture.queue_size", 64)
	v.SetDefault("capture.join_timeout", 3*time.Second)

	v.SetDefault("playback.sample_rate", 0)
	v.SetDefault("playback.buffer_frames", 1024)

	v.SetDefault("paths.recordings", "")
	v.SetDefault("paths.models", "models")

	v.SetDefault("analysis.window", 1.0)
	v.SetDefault("analysis.hop", 0.5)
	v.SetDefault("analysis.fmin", 50.0)
	v.SetDefault("analysis.fmax", 800.0)
	v.SetDefault("analysis.concurrency", runtime.NumCPU())

	v.SetDefault("ui.poll_interval", 50*time.Millisecond)
	v.SetDefault("ui.meter_bars", 2)
	v.SetDefault("ui.meter_decay", 0.06)

	v.SetDefault("workers", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("metrics.addr", "")
}

// Load 读取配置文件（可选）并解析为 Config。
// path 为空时在当前目录查找 wavemood.yaml，找不到则只使用默认值与环境变量。
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("wavemood")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, types.NewError(types.IOError, "load config", fmt.Errorf("读取配置文件失败: %w", err))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, types.NewError(types.ValidationError, "load config", fmt.Errorf("解析配置失败: %w", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	var problems []string
	if c.Capture.SampleRate <= 0 {
		problems = append(problems, "capture.sample_rate 必须为正数")
	}
	if c.Capture.BufferFrames <= 0 {
		problems = append(problems, "capture.buffer_frames 必须为正数")
	}
	if c.Capture.QueueSize <= 0 {
		problems = append(problems, "capture.queue_size 必须为正数")
	}
	if c.Playback.SampleRate < 0 {
		problems = append(problems, "playback.sample_rate 不能为负数")
	}
	if c.Analysis.Window <= 0 || c.Analysis.Hop <= 0 {
		problems = append(problems, "analysis.window 与 analysis.hop 必须为正数")
	}
	if c.Analysis.FMin <= 0 || c.Analysis.FMax <= c.Analysis.FMin {
		problems = append(problems, "analysis.fmin 必须为正数且小于 analysis.fmax")
	}
	if c.Workers <= 0 {
		problems = append(problems, "workers 必须为正数")
	}
	if len(problems) > 0 {
		return types.Errorf(types.ValidationError, "validate config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// RecordingsDir 返回录音目录：优先使用配置，其次为用户配置目录，最后退回用户主目录
func (c *Config) RecordingsDir() (string, error) {
	if c.Paths.Recordings != "" {
		return c.Paths.Recordings, nil
	}
	return defaultRecordingsDir(os.UserConfigDir, os.UserHomeDir)
}

func defaultRecordingsDir(configDir, homeDir func() (string, error)) (string, error) {
	if dir, err := configDir(); err == nil && dir != "" {
		return filepath.Join(dir, appDirName, "recordings"), nil
	}
	home, err := homeDir()
	if err != nil || home == "" {
		return "", types.NewError(types.IOError, "recordings dir", fmt.Errorf("无法确定录音目录: %w", err))
	}
	return filepath.Join(home, appDirName, "recordings"), nil
}

// AnalyzerConfig 转换为分析器配置
func (c *Config) AnalyzerConfig() *types.AnalyzerConfig {
	ac := types.DefaultAnalyzerConfig()
	ac.WindowSec = c.Analysis.Window
	ac.HopSec = c.Analysis.Hop
	ac.FMin = c.Analysis.FMin
	ac.FMax = c.Analysis.FMax
	if c.Analysis.Concurrency > 0 {
		ac.Concurrency = c.Analysis.Concurrency
	}
	return ac
}
