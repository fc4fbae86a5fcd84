package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "wavemood"

// Metrics 全部指标，字段可并发使用
type Metrics struct {
	// DroppedBlocks 采集队列满时丢弃的块数
	DroppedBlocks metric.Int64Counter

	// CapturedFrames 写入录音缓冲的帧数
	CapturedFrames metric.Int64Counter

	// WindowsAnalyzed 已分析的窗口数，属性 model、label
	WindowsAnalyzed metric.Int64Counter

	// AnalysisDuration 单个文件的分析耗时
	AnalysisDuration metric.Float64Histogram

	// PlaybackUnderruns 播放到达文件末尾后输出静音的回调次数
	PlaybackUnderruns metric.Int64Counter
}

var durationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// NewMetrics 使用给定的 MeterProvider 创建指标
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.DroppedBlocks, err = m.Int64Counter("wavemood.recorder.dropped_blocks",
		metric.WithDescription("Capture blocks dropped because the queue was full."),
	); err != nil {
		return nil, err
	}
	if met.CapturedFrames, err = m.Int64Counter("wavemood.recorder.captured_frames",
		metric.WithDescription("Frames moved from the capture queue into the recording buffer."),
	); err != nil {
		return nil, err
	}
	if met.WindowsAnalyzed, err = m.Int64Counter("wavemood.analysis.windows",
		metric.WithDescription("Analysis windows classified, by model and label."),
	); err != nil {
		return nil, err
	}
	if met.AnalysisDuration, err = m.Float64Histogram("wavemood.analysis.duration",
		metric.WithDescription("Wall time of one full-file analysis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.PlaybackUnderruns, err = m.Int64Counter("wavemood.player.eof_callbacks",
		metric.WithDescription("Playback callbacks that emitted silence at end of data."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics 返回基于全局 MeterProvider 的指标实例
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordWindow 记录一个窗口的分类结果
func (m *Metrics) RecordWindow(ctx context.Context, model, label string) {
	m.WindowsAnalyzed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("label", label),
	))
}
