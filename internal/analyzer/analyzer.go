package analyzer

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"wavemood/internal/decoder"
	"wavemood/internal/features"
	"wavemood/internal/model"
	"wavemood/internal/observe"
	"wavemood/internal/types"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// errorLabel 预测失败的窗口使用的标签
const errorLabel = "error"

// Analyzer 情绪分析器
type Analyzer struct {
	config          *types.AnalyzerConfig
	decoderRegistry *decoder.DecoderRegistry
	models          *model.Registry
	extractor       *features.Extractor
	logger          logrus.FieldLogger
	metrics         *observe.Metrics
	out             io.Writer
}

// NewAnalyzer 创建新的分析器
func NewAnalyzer(config *types.AnalyzerConfig, models *model.Registry, logger logrus.FieldLogger, metrics *observe.Metrics) *Analyzer {
	if config == nil {
		config = types.DefaultAnalyzerConfig()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Analyzer{
		config:          config,
		decoderRegistry: decoder.NewDecoderRegistry(),
		models:          models,
		extractor:       &features.Extractor{FMin: config.FMin, FMax: config.FMax},
		logger:          logger.WithField("component", "analyzer"),
		metrics:         metrics,
		out:             os.Stdout,
	}
}

// SetOutput 设置报告输出位置
func (a *Analyzer) SetOutput(w io.Writer) {
	a.out = w
}

// Registry 返回解码器注册表
func (a *Analyzer) Registry() *decoder.DecoderRegistry {
	return a.decoderRegistry
}

// ModelAvailable 判断模型是否可用，启发式模型始终可用
func (a *Analyzer) ModelAvailable(kind model.Kind) bool {
	if kind == model.Heuristic {
		return true
	}
	return a.models != nil && a.models.Available(kind)
}

// Analyze 分析单个音频文件，失败信息写入结果而不是返回错误
func (a *Analyzer) Analyze(ctx context.Context, filePath string, kind model.Kind) *types.AnalysisResult {
	started := time.Now()
	defer func() {
		a.metrics.AnalysisDuration.Record(ctx, time.Since(started).Seconds())
	}()

	result := &types.AnalysisResult{
		FilePath: filePath,
		Model:    kind.String(),
		Timeline: []types.AnalysisWindow{},
		Summary:  map[string]types.LabelSummary{},
	}

	// 解码音频文件
	matrix, audioFile, err := a.decoderRegistry.LoadMatrix(filePath)
	if err != nil {
		result.Error = fmt.Sprintf("解码失败: %v", err)
		a.logger.WithError(err).WithField("path", filePath).Warn("分析失败")
		return result
	}

	// 填充基本信息
	result.Format = audioFile.GetFormat()
	result.Metadata = audioFile.GetMetadata()
	result.SampleRate = matrix.SampleRate
	result.Duration = matrix.Seconds()

	m := model.Model(model.HeuristicModel{})
	if a.models != nil {
		m, result.Fallback = a.models.Get(kind)
	} else {
		result.Fallback = kind != model.Heuristic
	}
	if result.Fallback {
		result.Model = m.Kind().String()
	}

	timeline, err := a.scan(ctx, matrix.Mono(), matrix.SampleRate, m)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	result.OK = true
	result.Timeline = timeline
	result.Summary = Summarize(timeline, result.Duration)

	a.logger.WithFields(logrus.Fields{
		"path":    filePath,
		"model":   result.Model,
		"windows": len(timeline),
	}).Debug("分析完成")
	return result
}

// scan 以固定窗口与步长扫描信号，逐窗口提取特征并预测
func (a *Analyzer) scan(ctx context.Context, sig []float64, sampleRate int, m model.Model) ([]types.AnalysisWindow, error) {
	total := len(sig)
	sr := float64(sampleRate)
	totalSec := float64(total) / sr

	win := int(a.config.WindowSec * sr)
	hop := int(a.config.HopSec * sr)
	if win <= 0 {
		win = total
		hop = win
	}
	if hop <= 0 {
		hop = win
	}

	timeline := []types.AnalysisWindow{}
	for idx := 0; idx < total; idx += hop {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("canceled")
		}

		end := min(idx+win, total)
		vec := a.extractor.Extract(sig[idx:end], sampleRate)
		pred := predict(m, vec)
		a.metrics.RecordWindow(ctx, m.Kind().String(), pred.Label)

		timeline = append(timeline, types.AnalysisWindow{
			Start:    float64(idx) / sr,
			End:      math.Min(totalSec, float64(idx+win)/sr),
			Features: vec,
			Label:    pred.Label,
			Probs:    pred.Probs,
		})
	}
	return timeline, nil
}

// predict 调用模型，错误或 panic 记为 error 标签
func predict(m model.Model, vec features.Vector) (pred model.Prediction) {
	defer func() {
		if r := recover(); r != nil {
			pred = model.Prediction{Label: errorLabel, Probs: map[string]float64{errorLabel: 1.0}}
		}
	}()
	p, err := m.Predict(vec)
	if err != nil || p.Label == "" {
		return model.Prediction{Label: errorLabel, Probs: map[string]float64{errorLabel: 1.0}}
	}
	return p
}

// AnalyzeFiles 并发分析多个音频文件并输出报告
func (a *Analyzer) AnalyzeFiles(ctx context.Context, filePaths []string, kind model.Kind) ([]*types.AnalysisResult, error) {
	// 创建进度条
	var bar *progressbar.ProgressBar
	if !a.config.Quiet && !a.config.JSONOutput {
		bar = progressbar.NewOptions(len(filePaths),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("分析音频文件"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(50),
			progressbar.OptionShowIts(),
		)
	}

	concurrency := a.config.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	results := make([]*types.AnalysisResult, len(filePaths))
	var outMu sync.Mutex
	for i, filePath := range filePaths {
		g.Go(func() error {
			result := a.Analyze(gctx, filePath, kind)
			results[i] = result

			outMu.Lock()
			defer outMu.Unlock()
			a.outputResult(result)
			if bar != nil {
				bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}

	if bar != nil {
		bar.Finish()
		fmt.Fprintln(os.Stderr)
	}

	// 输出统计信息
	if !a.config.Quiet && !a.config.JSONOutput {
		a.printSummary(results)
	}

	return results, ctx.Err()
}
