package engine

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"wavemood/internal/analyzer"
	"wavemood/internal/decoder"
	"wavemood/internal/device/mock"
	"wavemood/internal/model"
	"wavemood/internal/player"
	"wavemood/internal/recorder"
	"wavemood/internal/types"
	"wavemood/internal/worker"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRate = 8000

type fixture struct {
	engine  *Engine
	backend *mock.Backend
	dir     string
}

func newFixture(t *testing.T) *fixture {
	return newFixtureWithRegistry(t, nil, Options{WaveformPoints: 100})
}

// newFixtureWithRegistry 播放器使用指定的解码器注册表
func newFixtureWithRegistry(t *testing.T, registry *decoder.DecoderRegistry, opts Options) *fixture {
	t.Helper()
	logger, _ := test.NewNullLogger()
	backend := mock.New()
	dir := t.TempDir()

	rec := recorder.New(backend, recorder.Options{SampleRate: sampleRate, Dir: dir}, logger, nil)
	pl := player.New(backend, registry, player.Options{}, logger, nil)
	an := analyzer.NewAnalyzer(nil, model.NewRegistry(t.TempDir(), logger), logger, nil)
	e := New(rec, pl, an, opts, logger)
	t.Cleanup(func() { _ = e.Close(context.Background()) })
	return &fixture{engine: e, backend: backend, dir: dir}
}

// next 读取事件直到出现指定类型
func next[T Event](t *testing.T, e *Engine) T {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-e.Events():
			if v, ok := ev.(T); ok {
				return v
			}
		case <-deadline:
			var zero T
			t.Fatalf("等待事件 %T 超时", zero)
			return zero
		}
	}
}

// waitStatus 读取事件直到出现指定文本的状态
func waitStatus(t *testing.T, e *Engine, text string) {
	t.Helper()
	for {
		if next[Status](t, e).Text == text {
			return
		}
	}
}

// gatedDecoder 按 WAV 解码 .gated 文件，gate 非空时等待其关闭
type gatedDecoder struct {
	gate    chan struct{}
	entered chan struct{}
}

func (d gatedDecoder) SupportedFormats() []string {
	return []string{"gated"}
}

func (d gatedDecoder) Decode(path string) (types.AudioFile, error) {
	if d.gate != nil {
		close(d.entered)
		<-d.gate
	}
	return (&decoder.WAVDecoder{}).Decode(path)
}

func writeSine(t *testing.T, frames int, amp float32) string {
	t.Helper()
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = amp * float32(math.Sin(2*math.Pi*float64(i)/40))
	}
	path := filepath.Join(t.TempDir(), "sine.wav")
	require.NoError(t, decoder.WriteMonoWAV(path, samples, sampleRate))
	return path
}

func TestOpenLoadsWaveform(t *testing.T) {
	f := newFixture(t)
	path := writeSine(t, sampleRate, 0)

	require.NoError(t, f.engine.Open(path))
	assert.Equal(t, path, f.engine.Current())

	wf := next[WaveformReady](t, f.engine)
	require.True(t, wf.OK)
	assert.NoError(t, wf.Err)
	assert.Equal(t, path, wf.Path)
	assert.Len(t, wf.Samples, 100)
	assert.Len(t, wf.TimePoints, 100)
	assert.InDelta(t, 1.0, wf.Duration, 1e-9)
	assert.Equal(t, sampleRate, wf.SampleRate)
}

func TestOpenBrokenFileReportsError(t *testing.T) {
	f := newFixture(t)
	path := filepath.Join(t.TempDir(), "broken.wav")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o644))

	require.NoError(t, f.engine.Open(path))
	wf := next[WaveformReady](t, f.engine)
	assert.False(t, wf.OK)
	assert.Error(t, wf.Err)
}

func TestCommandValidation(t *testing.T) {
	f := newFixture(t)

	assert.True(t, types.IsKind(f.engine.Open("notes.txt"), types.ValidationError))
	assert.True(t, types.IsKind(f.engine.Play(context.Background()), types.ValidationError))
	assert.True(t, types.IsKind(f.engine.Analyze(model.Heuristic), types.ValidationError))
	assert.True(t, types.IsKind(f.engine.StopRecording(), types.ValidationError))
	assert.True(t, f.engine.ModelAvailable(model.Heuristic))
	assert.False(t, f.engine.ModelAvailable(model.MLP))
}

func TestRecordStopSavesAndOpens(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.StartRecording(context.Background()))

	in := f.backend.LastInput()
	block := make([]float32, 1024)
	for i := range block {
		block[i] = 0.3
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, in.Push(block))
	}

	require.NoError(t, f.engine.StopRecording())
	saved := next[RecordingSaved](t, f.engine)
	require.NoError(t, saved.Err)
	assert.Equal(t, 4096, saved.Outcome.Frames)
	assert.Equal(t, f.dir, filepath.Dir(saved.Outcome.Path))
	assert.FileExists(t, saved.Outcome.Path)

	wf := next[WaveformReady](t, f.engine)
	assert.True(t, wf.OK)
	assert.Equal(t, saved.Outcome.Path, wf.Path)
	assert.Equal(t, saved.Outcome.Path, f.engine.Current())
}

func TestAnalyzeEmitsResultAndStatus(t *testing.T) {
	f := newFixture(t)
	path := writeSine(t, 2*sampleRate, 0)
	require.NoError(t, f.engine.Open(path))
	next[WaveformReady](t, f.engine)

	require.NoError(t, f.engine.Analyze(model.Heuristic))
	done := next[AnalysisComplete](t, f.engine)
	assert.Equal(t, path, done.Path)
	require.True(t, done.Result.OK)
	top, ok := analyzer.TopLabel(done.Result.Summary)
	require.True(t, ok)
	assert.Equal(t, "neutral", top)

	for {
		status := next[Status](t, f.engine)
		if strings.Contains(status.Text, "neutral") {
			assert.Contains(t, status.Text, "100.00%")
			break
		}
	}
}

func TestTickPostsLevelAndPosition(t *testing.T) {
	f := newFixture(t)
	path := writeSine(t, sampleRate, 0.5)
	require.NoError(t, f.engine.Open(path))
	next[WaveformReady](t, f.engine)

	require.NoError(t, f.engine.Play(context.Background()))
	waitStatus(t, f.engine, "正在播放")
	_, err := f.backend.LastOutput().Pull(800)
	require.NoError(t, err)

	f.engine.tick()
	level := next[Level](t, f.engine)
	require.Len(t, level.Values, 2)
	for _, v := range level.Values {
		assert.Greater(t, v, 0.0)
	}
	pos := next[PlaybackPosition](t, f.engine)
	assert.InDelta(t, 0.1, pos.Seconds, 1e-9)

	f.engine.Pause()
	f.engine.tick()
	level = next[Level](t, f.engine)
	assert.Less(t, level.Values[0], 1.0)
}

func TestPlaybackFinishedEvent(t *testing.T) {
	f := newFixture(t)
	path := writeSine(t, 100, 0.2)
	require.NoError(t, f.engine.Open(path))
	next[WaveformReady](t, f.engine)

	require.NoError(t, f.engine.Play(context.Background()))
	waitStatus(t, f.engine, "正在播放")
	stream := f.backend.LastOutput()
	_, _ = stream.Pull(256)
	f.engine.tick()
	assert.Greater(t, f.engine.meter.Values()[0], 0.0)
	_, _ = stream.Pull(256)

	next[PlaybackFinished](t, f.engine)
	pos := next[PlaybackPosition](t, f.engine)
	assert.Zero(t, pos.Seconds)
	assert.Equal(t, []float64{0, 0}, f.engine.meter.Values())
	assert.Equal(t, player.Stopped, f.engine.player.State())
}

func TestStopResetsPositionAndMeter(t *testing.T) {
	f := newFixture(t)
	path := writeSine(t, sampleRate, 0.5)
	require.NoError(t, f.engine.Open(path))
	next[WaveformReady](t, f.engine)

	require.NoError(t, f.engine.Play(context.Background()))
	waitStatus(t, f.engine, "正在播放")
	_, err := f.backend.LastOutput().Pull(800)
	require.NoError(t, err)
	f.engine.tick()
	next[PlaybackPosition](t, f.engine)

	f.engine.Stop()
	pos := next[PlaybackPosition](t, f.engine)
	assert.Zero(t, pos.Seconds)
	assert.Equal(t, []float64{0, 0}, f.engine.meter.Values())
	waitStatus(t, f.engine, "已停止")
}

func TestTickNotBlockedByPlaybackDecode(t *testing.T) {
	gated := gatedDecoder{gate: make(chan struct{}), entered: make(chan struct{})}
	registry := decoder.NewDecoderRegistry()
	registry.Register(gated)
	f := newFixtureWithRegistry(t, registry, Options{WaveformPoints: 100})
	f.engine.analyzer.Registry().Register(gatedDecoder{})

	wav := writeSine(t, sampleRate, 0.5)
	path := strings.TrimSuffix(wav, ".wav") + ".gated"
	require.NoError(t, os.Rename(wav, path))
	require.NoError(t, f.engine.Open(path))
	require.True(t, next[WaveformReady](t, f.engine).OK)

	require.NoError(t, f.engine.Play(context.Background()))
	<-gated.entered

	ticked := make(chan struct{})
	go func() {
		f.engine.tick()
		_ = f.engine.player.State()
		close(ticked)
	}()
	select {
	case <-ticked:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("解码期间 tick 被阻塞")
	}

	close(gated.gate)
	waitStatus(t, f.engine, "正在播放")
	assert.Equal(t, player.Playing, f.engine.player.State())
}

func TestStopCancelsPendingPlay(t *testing.T) {
	gated := gatedDecoder{gate: make(chan struct{}), entered: make(chan struct{})}
	registry := decoder.NewDecoderRegistry()
	registry.Register(gated)
	f := newFixtureWithRegistry(t, registry, Options{WaveformPoints: 100, Workers: 1})
	f.engine.analyzer.Registry().Register(gatedDecoder{})

	wav := writeSine(t, sampleRate, 0.5)
	path := strings.TrimSuffix(wav, ".wav") + ".gated"
	require.NoError(t, os.Rename(wav, path))
	require.NoError(t, f.engine.Open(path))
	next[WaveformReady](t, f.engine)

	require.NoError(t, f.engine.Play(context.Background()))
	<-gated.entered
	f.engine.Stop()
	close(gated.gate)

	// 单个工作协程按提交顺序执行，分析完成时被取消的播放已经结束
	require.NoError(t, f.engine.Analyze(model.Heuristic))
	next[AnalysisComplete](t, f.engine)
	assert.Equal(t, player.Stopped, f.engine.player.State())
	assert.Zero(t, f.backend.OutputCount())
}

func TestTickReportsRecordingDrops(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.engine.StartRecording(ctx))
	// 排空协程随 ctx 退出，之后队列满即丢块
	cancel()
	time.Sleep(20 * time.Millisecond)

	in := f.backend.LastInput()
	for i := 0; i < 200; i++ {
		require.NoError(t, in.Push(make([]float32, 256)))
	}
	require.Positive(t, f.engine.recorder.Dropped())

	f.engine.tick()
	for {
		status := next[Status](t, f.engine)
		if strings.Contains(status.Text, "已丢弃") {
			assert.Contains(t, status.Text, fmt.Sprintf("%d", f.engine.recorder.Dropped()))
			break
		}
	}

	f.engine.tick()
	select {
	case ev := <-f.engine.Events():
		_, isStatus := ev.(Status)
		assert.False(t, isStatus, "丢块数未变化时不应重复提示")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRunPostsLevels(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(stopped)
	}()

	level := next[Level](t, f.engine)
	assert.Len(t, level.Values, 2)
	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run 未在 ctx 取消后退出")
	}
}

func TestCloseSavesRecordingAndRejectsWork(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.StartRecording(context.Background()))
	require.NoError(t, f.backend.LastInput().Push(make([]float32, 256)))

	require.NoError(t, f.engine.Close(context.Background()))
	require.NoError(t, f.engine.Close(context.Background()))
	<-f.engine.Done()

	entries, err := os.ReadDir(f.dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	path := writeSine(t, 100, 0.1)
	assert.ErrorIs(t, f.engine.Open(path), worker.ErrClosed)
}
