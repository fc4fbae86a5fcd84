package player

import (
	"context"
	"sync"
	"sync/atomic"

	"wavemood/internal/decoder"
	"wavemood/internal/device"
	"wavemood/internal/meter"
	"wavemood/internal/observe"
	"wavemood/internal/types"

	"github.com/sirupsen/logrus"
)

// State 播放会话状态
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "stopped"
	}
}

const levelGain = 20

// Options 播放参数
type Options struct {
	SampleRate   int // 0 表示使用文件采样率
	BufferFrames int
}

// Session 播放会话。
//
// 帧游标由 cursorMu 保护：Playing 时只有设备回调写入；
// 其余状态下只有 Stop、Seek 与文件切换写入。
type Session struct {
	backend  device.Backend
	load     func(path string) (*types.SampleMatrix, types.AudioFile, error)
	opts     Options
	logger   logrus.FieldLogger
	metrics  *observe.Metrics

	mu         sync.Mutex // 保护以下会话字段
	state      State
	stream     device.Stream
	path       string
	matrix     *types.SampleMatrix
	generation uint64
	onFinished func()

	cursorMu sync.Mutex
	cursor   int

	level      meter.Snapshot
	eofPending atomic.Bool
}

// New 创建播放会话
func New(backend device.Backend, registry *decoder.DecoderRegistry, opts Options, logger logrus.FieldLogger, metrics *observe.Metrics) *Session {
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = 1024
	}
	if registry == nil {
		registry = decoder.NewDecoderRegistry()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Session{
		backend:  backend,
		load:     registry.LoadMatrix,
		opts:     opts,
		logger:   logger.WithField("component", "player"),
		metrics:  metrics,
	}
}

// OnFinished 设置自然播放结束时的回调，回调在独立协程中执行
func (s *Session) OnFinished(fn func()) {
	s.mu.Lock()
	s.onFinished = fn
	s.mu.Unlock()
}

// Play 播放文件。同一文件暂停后再次调用从暂停处继续；
// 正在播放同一文件时不做任何事；切换文件时游标归零。
// 解码在锁外进行，期间状态查询与 Pause、Stop 不受影响。
func (s *Session) Play(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var m *types.SampleMatrix
	if s.Path() != path {
		var err error
		if m, err = s.Decode(path); err != nil {
			return err
		}
	}
	return s.PlayMatrix(ctx, path, m)
}

// Decode 解码文件并按输出采样率重采样，不修改会话状态
func (s *Session) Decode(path string) (*types.SampleMatrix, error) {
	matrix, _, err := s.load(path)
	if err != nil {
		s.logger.WithError(err).WithField("path", path).Error("加载音频失败")
		return nil, err
	}
	return resample(matrix, s.opts.SampleRate), nil
}

// PlayMatrix 播放已解码的音频。path 与当前文件相同时沿用已加载的数据与游标，
// 此时 m 可以为 nil；否则换上 m 并将游标归零。
func (s *Session) PlayMatrix(ctx context.Context, path string, m *types.SampleMatrix) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Playing && path == s.path {
		return nil
	}
	if s.state == Playing {
		s.closeStream()
		s.setCursor(0)
		s.level.Store(0)
		s.state = Stopped
	}

	if path != s.path || s.matrix == nil {
		if m == nil {
			return types.Errorf(types.ValidationError, "play", "尚未加载音频: %s", path)
		}
		s.matrix = m
		s.path = path
		s.setCursor(0)
	}

	m = s.matrix
	if m.Frames() == 0 {
		return types.Errorf(types.ValidationError, "play", "音频没有任何采样: %s", path)
	}

	s.generation++
	gen := s.generation
	s.eofPending.Store(false)

	stream, err := s.backend.OpenOutput(float64(m.SampleRate), m.Channels, s.opts.BufferFrames, func(out []float32) {
		s.fill(m, gen, out)
	})
	if err != nil {
		s.logger.WithError(err).Error("打开输出流失败")
		return asDeviceError("play", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		s.logger.WithError(err).Error("启动输出流失败")
		return asDeviceError("play", err)
	}

	s.stream = stream
	s.state = Playing
	s.logger.WithFields(logrus.Fields{
		"path":        path,
		"sample_rate": m.SampleRate,
		"channels":    m.Channels,
		"from_frame":  s.Cursor(),
	}).Info("开始播放")
	return nil
}

// fill 运行在设备回调中，任何异常都退化为输出静音
func (s *Session) fill(m *types.SampleMatrix, gen uint64, out []float32) {
	defer func() {
		if r := recover(); r != nil {
			clear(out)
			s.level.Store(0)
		}
	}()

	ch := m.Channels
	requested := len(out) / ch
	total := m.Frames()

	s.cursorMu.Lock()
	start := s.cursor
	n := min(requested, total-start)
	if n <= 0 {
		s.cursorMu.Unlock()
		clear(out)
		s.level.Store(0)
		s.metrics.PlaybackUnderruns.Add(context.Background(), 1)
		if s.eofPending.CompareAndSwap(false, true) {
			go s.finish(gen)
		}
		return
	}
	copy(out, m.Data[start*ch:(start+n)*ch])
	s.cursor = start + n
	s.cursorMu.Unlock()

	clear(out[n*ch:])
	s.level.Store(meter.RMSLevel(out[:n*ch], levelGain))
}

// finish 自然结束：与 Stop 相同的复位，然后通知回调
func (s *Session) finish(gen uint64) {
	s.mu.Lock()
	if gen != s.generation || s.state != Playing {
		s.mu.Unlock()
		return
	}
	s.closeStream()
	s.setCursor(0)
	s.level.Store(0)
	s.state = Stopped
	fn := s.onFinished
	path := s.path
	s.mu.Unlock()

	s.logger.WithField("path", path).Info("播放结束")
	if fn != nil {
		fn()
	}
}

// Pause 停止并关闭输出流，保留游标
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing {
		return
	}
	s.closeStream()
	s.level.Store(0)
	s.state = Paused
}

// Stop 关闭输出流并将游标归零
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Stopped {
		return
	}
	s.closeStream()
	s.setCursor(0)
	s.level.Store(0)
	s.state = Stopped
}

// Seek 移动游标到指定帧（裁剪到 [0, 总帧数]），播放中不允许
func (s *Session) Seek(frame int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Playing {
		return types.Errorf(types.ValidationError, "seek", "播放中不能移动游标")
	}
	if s.matrix == nil {
		return types.Errorf(types.ValidationError, "seek", "尚未加载音频")
	}
	s.setCursor(max(0, min(frame, s.matrix.Frames())))
	return nil
}

// State 返回当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Path 返回当前加载的文件
func (s *Session) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Cursor 返回当前帧游标
func (s *Session) Cursor() int {
	s.cursorMu.Lock()
	defer s.cursorMu.Unlock()
	return s.cursor
}

// TotalFrames 返回已加载音频的总帧数
func (s *Session) TotalFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.matrix.Frames()
}

// Position 返回已播放的秒数
func (s *Session) Position() float64 {
	s.mu.Lock()
	m := s.matrix
	s.mu.Unlock()
	if m == nil || m.SampleRate <= 0 {
		return 0
	}
	return float64(s.Cursor()) / float64(m.SampleRate)
}

// Level 返回输出信号的瞬时电平
func (s *Session) Level() float64 {
	return s.level.Load()
}

func (s *Session) setCursor(frame int) {
	s.cursorMu.Lock()
	s.cursor = frame
	s.cursorMu.Unlock()
}

// closeStream 需持有 mu
func (s *Session) closeStream() {
	if s.stream == nil {
		return
	}
	if err := s.stream.Stop(); err != nil {
		s.logger.WithError(err).Warn("停止输出流失败")
	}
	if err := s.stream.Close(); err != nil {
		s.logger.WithError(err).Warn("关闭输出流失败")
	}
	s.stream = nil
}

func asDeviceError(op string, err error) error {
	if types.IsKind(err, types.DeviceError) {
		return err
	}
	return types.NewError(types.DeviceError, op, err)
}
