package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"wavemood/internal/decoder"
	"wavemood/internal/device"
	"wavemood/internal/meter"
	"wavemood/internal/observe"
	"wavemood/internal/types"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State 录音会话状态
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// levelGain 电平表增益，RMS 乘以该值后裁剪到 [0, 1]
const levelGain = 20

// Options 录音参数
type Options struct {
	SampleRate   int
	BufferFrames int
	QueueSize    int
	JoinTimeout  time.Duration
	Dir          string // 录音文件目录
}

// DefaultOptions 返回默认录音参数，Dir 需由调用方填写
func DefaultOptions() Options {
	return Options{
		SampleRate:   22050,
		BufferFrames: 1024,
		QueueSize:    64,
		JoinTimeout:  3 * time.Second,
	}
}

// Session 录音会话：采集回调 → 有界队列 → 排空协程 → 采样缓冲 → WAV 文件
type Session struct {
	backend device.Backend
	opts    Options
	logger  logrus.FieldLogger
	metrics *observe.Metrics

	mu     sync.Mutex // 保护以下会话字段
	state  State
	stream device.Stream
	queue  chan []float32
	buf    *sampleBuffer
	stop   chan struct{}
	done   chan struct{}

	recording atomic.Bool
	dropped   atomic.Int64
	reported  atomic.Int64 // 已上报到指标的丢块数
	level     meter.Snapshot

	now      func() time.Time
	newToken func() string
}

// New 创建录音会话
func New(backend device.Backend, opts Options, logger logrus.FieldLogger, metrics *observe.Metrics) *Session {
	def := DefaultOptions()
	if opts.SampleRate <= 0 {
		opts.SampleRate = def.SampleRate
	}
	if opts.BufferFrames <= 0 {
		opts.BufferFrames = def.BufferFrames
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.JoinTimeout <= 0 {
		opts.JoinTimeout = def.JoinTimeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Session{
		backend:  backend,
		opts:     opts,
		logger:   logger.WithField("component", "recorder"),
		metrics:  metrics,
		now:      time.Now,
		newToken: func() string { return uuid.NewString() },
	}
}

// State 返回当前状态
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Level 返回采集信号的瞬时电平
func (s *Session) Level() float64 {
	return s.level.Load()
}

// Dropped 返回本次录音因队列满而丢弃的块数
func (s *Session) Dropped() int64 {
	return s.dropped.Load()
}

// Start 打开输入流开始录音。ctx 结束时排空协程退出，仍需调用 Stop 落盘。
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Recording {
		return types.Errorf(types.ValidationError, "start recording", "已在录音中")
	}
	if s.opts.Dir == "" {
		return types.Errorf(types.ValidationError, "start recording", "未设置录音目录")
	}

	queue := make(chan []float32, s.opts.QueueSize)
	s.queue = queue
	s.buf = newSampleBuffer(s.opts.SampleRate)
	s.dropped.Store(0)
	s.reported.Store(0)
	s.recording.Store(true)

	stream, err := s.backend.OpenInput(float64(s.opts.SampleRate), 1, s.opts.BufferFrames, func(in []float32) {
		s.capture(queue, in)
	})
	if err != nil {
		s.recording.Store(false)
		s.logger.WithError(err).Error("打开输入流失败")
		return asDeviceError("start recording", err)
	}
	if err := stream.Start(); err != nil {
		s.recording.Store(false)
		stream.Close()
		s.logger.WithError(err).Error("启动输入流失败")
		return asDeviceError("start recording", err)
	}

	s.stream = stream
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.state = Recording
	go s.drain(ctx, queue, s.buf, s.stop, s.done)

	s.logger.WithFields(logrus.Fields{
		"sample_rate": s.opts.SampleRate,
		"queue_size":  s.opts.QueueSize,
	}).Info("开始录音")
	return nil
}

// capture 运行在设备回调中：复制输入块并非阻塞入队，队列满或出现异常时丢弃该块
func (s *Session) capture(queue chan<- []float32, in []float32) {
	defer func() {
		if r := recover(); r != nil {
			s.dropped.Add(1)
		}
	}()
	if !s.recording.Load() {
		return
	}
	block := make([]float32, len(in))
	copy(block, in)
	s.level.Store(meter.RMSLevel(block, levelGain))

	select {
	case queue <- block:
	default:
		s.dropped.Add(1)
	}
}

// drain 将队列中的块按顺序移入采样缓冲，并上报丢块数
func (s *Session) drain(ctx context.Context, queue <-chan []float32, buf *sampleBuffer, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case block := <-queue:
			buf.append(block)
			s.metrics.CapturedFrames.Add(ctx, int64(len(block)))
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		s.reportDrops(ctx)
	}
}

func (s *Session) reportDrops(ctx context.Context) {
	total := s.dropped.Load()
	prev := s.reported.Swap(total)
	if delta := total - prev; delta > 0 {
		s.metrics.DroppedBlocks.Add(ctx, delta)
		s.logger.WithFields(logrus.Fields{"dropped": delta, "total": total}).Warn("采集队列已满，丢弃音频块")
	}
}

// Stop 结束录音并写出 WAV 文件。等待排空协程超时不会阻止落盘。
func (s *Session) Stop() (types.RecordingOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Recording {
		return types.RecordingOutcome{}, types.Errorf(types.ValidationError, "stop recording", "当前没有在录音")
	}

	s.recording.Store(false)
	close(s.stop)
	select {
	case <-s.done:
	case <-time.After(s.opts.JoinTimeout):
		s.logger.WithField("timeout", s.opts.JoinTimeout).Warn("等待排空协程超时，继续落盘")
	}

	// 最后一次非阻塞排空
	for drained := false; !drained; {
		select {
		case block := <-s.queue:
			s.buf.append(block)
			s.metrics.CapturedFrames.Add(context.Background(), int64(len(block)))
		default:
			drained = true
		}
	}
	s.reportDrops(context.Background())

	if err := s.stream.Stop(); err != nil {
		s.logger.WithError(err).Warn("停止输入流失败")
	}
	if err := s.stream.Close(); err != nil {
		s.logger.WithError(err).Warn("关闭输入流失败")
	}

	buf := s.buf
	s.stream = nil
	s.queue = nil
	s.buf = nil
	s.state = Idle
	s.level.Store(0)

	return s.flush(buf)
}

// flush 拼接、裁剪、量化并写出单声道 16 位 WAV
func (s *Session) flush(buf *sampleBuffer) (types.RecordingOutcome, error) {
	dropped := s.dropped.Load()
	samples := buf.concat()
	if len(samples) == 0 {
		s.logger.WithField("dropped", dropped).Warn("没有采集到音频，不写文件")
		return types.RecordingOutcome{Dropped: dropped}, types.Errorf(types.ValidationError, "stop recording", "没有采集到音频")
	}

	name := fmt.Sprintf("recording_%s_%d.wav", s.newToken(), s.now().Unix())
	path := filepath.Join(s.opts.Dir, name)
	if err := decoder.WriteMonoWAV(path, samples, buf.sampleRate); err != nil {
		s.logger.WithError(err).WithField("path", path).Error("写入录音文件失败")
		return types.RecordingOutcome{Dropped: dropped}, err
	}

	outcome := types.RecordingOutcome{
		Path:       path,
		Frames:     len(samples),
		Dropped:    dropped,
		SampleRate: buf.sampleRate,
		Duration:   time.Duration(float64(len(samples)) / float64(buf.sampleRate) * float64(time.Second)),
	}
	s.logger.WithFields(logrus.Fields{
		"path":    path,
		"frames":  outcome.Frames,
		"dropped": dropped,
	}).Info("录音已保存")
	return outcome, nil
}

func asDeviceError(op string, err error) error {
	if types.IsKind(err, types.DeviceError) {
		return err
	}
	return types.NewError(types.DeviceError, op, err)
}
