package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"wavemood/internal/analyzer"
	"wavemood/internal/decoder"
	"wavemood/internal/model"
	"wavemood/internal/observe"

	"github.com/spf13/cobra"
)

var (
	quiet      bool
	jsonOutput bool
	modelName  string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [path]",
	Short: "分析音频文件或目录中的语音情绪",
	Long: `按 1 秒窗口、0.5 秒步长扫描音频，逐窗口提取基频与能量特征并预测情绪，
最后按标签汇总时长与占比。path 可以是单个文件或目录。`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalysis,
}

func init() {
	analyzeCmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "静默模式，每个文件只输出路径与主情绪")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "以JSON格式输出结果")
	analyzeCmd.Flags().StringVarP(&modelName, "model", "m", "heuristic", "情绪模型 (heuristic, mlp, knn)")
	analyzeCmd.Flags().IntP("concurrency", "j", runtime.NumCPU(), "并发处理文件数量")
	bindFlag(analyzeCmd, "analysis.concurrency", "concurrency")
}

func runAnalysis(cmd *cobra.Command, args []string) error {
	targetPath := args[0]

	// 检查路径是否存在
	if _, err := os.Stat(targetPath); os.IsNotExist(err) {
		return fmt.Errorf("路径不存在: %s", targetPath)
	}

	kind, err := model.ParseKind(modelName)
	if err != nil {
		return err
	}

	// 创建分析器配置
	config := app.cfg.AnalyzerConfig()
	config.Quiet = quiet
	config.JSONOutput = jsonOutput

	models := model.NewRegistry(app.cfg.Paths.Models, app.logger)
	audioAnalyzer := analyzer.NewAnalyzer(config, models, app.logger, observe.DefaultMetrics())

	// 收集音频文件
	files, err := collectAudioFiles(audioAnalyzer.Registry(), targetPath)
	if err != nil {
		return fmt.Errorf("收集音频文件失败: %w", err)
	}

	if len(files) == 0 {
		fmt.Println("未找到支持的音频文件")
		return nil
	}

	if kind != model.Heuristic && !models.Available(kind) && !quiet && !jsonOutput {
		fmt.Fprintf(os.Stderr, "模型 %s 不可用 (%v)，使用启发式模型\n", kind, models.Err(kind))
	}

	// 开始分析
	_, err = audioAnalyzer.AnalyzeFiles(cmd.Context(), files, kind)
	return err
}

func collectAudioFiles(registry *decoder.DecoderRegistry, path string) ([]string, error) {
	var files []string

	err := filepath.Walk(path, func(filePath string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		if registry.Supports(filePath) {
			files = append(files, filePath)
		}

		return nil
	})

	return files, err
}
