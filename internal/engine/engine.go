// Package engine 把录音、播放与分析组合成面向界面的命令接口。
//
// 命令在调用方协程中立即返回，耗时工作交给 worker.Pool，
// 结果以 Event 的形式写入 Events() 通道；Run 定时采样电平与播放位置。
package engine

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"wavemood/internal/analyzer"
	"wavemood/internal/meter"
	"wavemood/internal/model"
	"wavemood/internal/player"
	"wavemood/internal/recorder"
	"wavemood/internal/types"
	"wavemood/internal/worker"

	"github.com/sirupsen/logrus"
)

// Options 引擎参数
type Options struct {
	PollInterval   time.Duration
	MeterBars      int
	MeterDecay     float64
	Workers        int
	EventBuffer    int
	WaveformPoints int // 0 表示不降采样
}

// DefaultOptions 返回默认参数
func DefaultOptions() Options {
	return Options{
		PollInterval:   50 * time.Millisecond,
		MeterBars:      2,
		MeterDecay:     meter.DefaultDecay,
		Workers:        4,
		EventBuffer:    64,
		WaveformPoints: 2000,
	}
}

// Engine 音频引擎
type Engine struct {
	recorder *recorder.Session
	player   *player.Session
	analyzer *analyzer.Analyzer
	pool     *worker.Pool
	meter    *meter.LevelMeter
	rng      *rand.Rand
	opts     Options
	logger   logrus.FieldLogger

	events chan Event
	done   chan struct{}

	mu        sync.Mutex
	current   string
	closeOnce sync.Once

	playSeq       atomic.Uint64 // Stop、Pause、Open 递增，使排队中的播放作废
	reportedDrops atomic.Int64
}

// New 创建引擎并启动后台任务池
func New(rec *recorder.Session, pl *player.Session, an *analyzer.Analyzer, opts Options, logger logrus.FieldLogger) *Engine {
	def := DefaultOptions()
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MeterBars <= 0 {
		opts.MeterBars = def.MeterBars
	}
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = def.EventBuffer
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	e := &Engine{
		recorder: rec,
		player:   pl,
		analyzer: an,
		pool:     worker.New(opts.Workers, opts.Workers*4, logger),
		meter:    meter.NewLevelMeter(opts.MeterBars, opts.MeterDecay),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		opts:     opts,
		logger:   logger.WithField("component", "engine"),
		events:   make(chan Event, opts.EventBuffer),
		done:     make(chan struct{}),
	}

	pl.OnFinished(func() {
		e.resetPlayback()
		e.post(PlaybackFinished{})
		e.post(PlaybackPosition{Seconds: 0})
		e.post(Status{Text: "播放结束"})
	})
	return e
}

// Events 返回事件通道，界面应持续读取
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Done 返回的通道在引擎开始关闭时关闭
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Current 返回当前选中的文件
func (e *Engine) Current() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// ModelAvailable 判断模型是否可用，界面可据此禁用选项
func (e *Engine) ModelAvailable(kind model.Kind) bool {
	return e.analyzer.ModelAvailable(kind)
}

// post 发送事件，引擎关闭后丢弃
func (e *Engine) post(ev Event) {
	select {
	case e.events <- ev:
	case <-e.done:
	}
}

// postLatest 发送高频事件，通道满时丢弃本次
func (e *Engine) postLatest(ev Event) {
	select {
	case e.events <- ev:
	default:
	}
}

// StartRecording 开始录音
func (e *Engine) StartRecording(ctx context.Context) error {
	if err := e.recorder.Start(ctx); err != nil {
		e.post(Status{Text: fmt.Sprintf("录音失败: %v", err)})
		return err
	}
	e.reportedDrops.Store(0)
	e.post(Status{Text: "正在录音..."})
	return nil
}

// StopRecording 停止录音，落盘在后台完成。
// 保存成功后录音文件成为当前文件并加载其波形。
func (e *Engine) StopRecording() error {
	if e.recorder.State() != recorder.Recording {
		return types.Errorf(types.ValidationError, "stop recording", "当前没有在录音")
	}
	return e.pool.Submit(func(ctx context.Context) {
		outcome, err := e.recorder.Stop()
		e.post(RecordingSaved{Outcome: outcome, Err: err})
		if err != nil {
			e.post(Status{Text: fmt.Sprintf("保存录音失败: %v", err)})
			return
		}
		if outcome.Dropped > 0 {
			e.post(Status{Text: fmt.Sprintf("录音已保存: %s (丢弃 %d 块)", outcome.Path, outcome.Dropped)})
		} else {
			e.post(Status{Text: fmt.Sprintf("录音已保存: %s", outcome.Path)})
		}
		e.setCurrent(outcome.Path)
		e.loadWaveform(outcome.Path)
	})
}

// Open 选择文件并在后台解码波形
func (e *Engine) Open(path string) error {
	if !e.analyzer.Registry().Supports(path) {
		return types.Errorf(types.ValidationError, "open", "不支持的文件格式: %s", path)
	}
	if e.Current() != path {
		e.playSeq.Add(1)
		e.player.Stop()
	}
	e.setCurrent(path)
	return e.pool.Submit(func(ctx context.Context) {
		e.loadWaveform(path)
	})
}

func (e *Engine) setCurrent(path string) {
	e.mu.Lock()
	e.current = path
	e.mu.Unlock()
}

func (e *Engine) loadWaveform(path string) {
	wf, err := e.analyzer.Waveform(path, e.opts.WaveformPoints)
	if err != nil {
		e.logger.WithError(err).WithField("path", path).Warn("加载波形失败")
		e.post(WaveformReady{Path: path, Err: err})
		return
	}
	e.post(WaveformReady{
		Path:       path,
		OK:         true,
		Samples:    wf.Samples,
		TimePoints: wf.TimePoints,
		Duration:   wf.Duration,
		SampleRate: wf.SampleRate,
	})
}

// Play 在后台解码并播放当前文件，暂停后再次调用从暂停处继续。
// 解码完成前调用 Stop、Pause 或 Open 会取消这次播放。
func (e *Engine) Play(ctx context.Context) error {
	path := e.Current()
	if path == "" {
		return types.Errorf(types.ValidationError, "play", "尚未选择文件")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	seq := e.playSeq.Add(1)
	return e.pool.Submit(func(ctx context.Context) {
		var m *types.SampleMatrix
		if e.player.Path() != path {
			var err error
			if m, err = e.player.Decode(path); err != nil {
				e.post(Status{Text: fmt.Sprintf("播放失败: %v", err)})
				return
			}
		}
		if e.playSeq.Load() != seq {
			return
		}
		if err := e.player.PlayMatrix(ctx, path, m); err != nil {
			e.post(Status{Text: fmt.Sprintf("播放失败: %v", err)})
			return
		}
		e.post(Status{Text: "正在播放"})
	})
}

// Pause 暂停播放
func (e *Engine) Pause() {
	e.playSeq.Add(1)
	if e.player.State() != player.Playing {
		return
	}
	e.player.Pause()
	e.post(Status{Text: "已暂停"})
}

// Stop 停止播放并回到开头
func (e *Engine) Stop() {
	e.playSeq.Add(1)
	if e.player.State() == player.Stopped {
		return
	}
	e.player.Stop()
	e.resetPlayback()
	e.post(PlaybackPosition{Seconds: 0})
	e.post(Status{Text: "已停止"})
}

// resetPlayback 清零电平表，界面随后收到全零的电平
func (e *Engine) resetPlayback() {
	e.meter.Reset()
	e.postLatest(Level{Values: e.meter.Values()})
}

// Analyze 在后台分析当前文件
func (e *Engine) Analyze(kind model.Kind) error {
	path := e.Current()
	if path == "" {
		return types.Errorf(types.ValidationError, "analyze", "尚未选择文件")
	}
	if err := e.pool.Submit(func(ctx context.Context) {
		result := e.analyzer.Analyze(ctx, path, kind)
		e.post(AnalysisComplete{Path: path, Result: result})
		e.post(Status{Text: statusForResult(result)})
	}); err != nil {
		return err
	}
	e.post(Status{Text: fmt.Sprintf("正在分析 (%s)...", kind)})
	return nil
}

func statusForResult(result *types.AnalysisResult) string {
	if !result.OK {
		return fmt.Sprintf("分析失败: %s", result.Error)
	}
	top, ok := analyzer.TopLabel(result.Summary)
	if !ok {
		return "未检测到情绪"
	}
	return fmt.Sprintf("主情绪: %s (%.2f%%)", top, result.Summary[top].Pct)
}

// Run 按固定间隔刷新电平表与播放位置，直到 ctx 结束或引擎关闭
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.done:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Engine) tick() {
	level := 0.0
	if e.recorder.State() == recorder.Recording {
		level = e.recorder.Level()
		if dropped := e.recorder.Dropped(); dropped > e.reportedDrops.Swap(dropped) {
			e.postLatest(Status{Text: fmt.Sprintf("正在录音... (已丢弃 %d 块)", dropped)})
		}
	}
	playing := e.player.State() == player.Playing
	if playing {
		level = max(level, e.player.Level())
	}

	e.postLatest(Level{Values: e.meter.Update(meter.Bars(level, e.meter.Len(), e.rng))})
	if playing {
		e.postLatest(PlaybackPosition{Seconds: e.player.Position()})
	}
}

// Close 停止播放、保存进行中的录音并等待后台任务结束
func (e *Engine) Close(ctx context.Context) error {
	var err error
	e.closeOnce.Do(func() {
		e.playSeq.Add(1)
		e.player.Stop()
		if e.recorder.State() == recorder.Recording {
			if outcome, stopErr := e.recorder.Stop(); stopErr != nil {
				e.logger.WithError(stopErr).Warn("关闭时保存录音失败")
			} else {
				e.logger.WithField("path", outcome.Path).Info("关闭时已保存录音")
			}
		}
		close(e.done)
		err = e.pool.Close(ctx)
	})
	return err
}
