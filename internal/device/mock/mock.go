// Package mock 提供无需硬件的设备后端，由测试代码手动驱动回调
package mock

import (
	"errors"
	"sync"

	"wavemood/internal/device"
	"wavemood/internal/types"
)

// Backend 记录打开的流，回调由测试代码调用
type Backend struct {
	mu      sync.Mutex
	inputs  []*Stream
	outputs []*Stream

	// FailOpen 非空时打开任何流都返回该错误
	FailOpen error
}

var _ device.Backend = (*Backend)(nil)

// New 创建模拟后端
func New() *Backend {
	return &Backend{}
}

// OpenInput 打开模拟输入流
func (b *Backend) OpenInput(sampleRate float64, channels, framesPerBuffer int, fn device.InputFunc) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOpen != nil {
		return nil, types.NewError(types.DeviceError, "open input", b.FailOpen)
	}
	s := &Stream{SampleRate: sampleRate, Channels: channels, FramesPerBuffer: framesPerBuffer, input: fn}
	b.inputs = append(b.inputs, s)
	return s, nil
}

// OpenOutput 打开模拟输出流
func (b *Backend) OpenOutput(sampleRate float64, channels, framesPerBuffer int, fn device.OutputFunc) (device.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.FailOpen != nil {
		return nil, types.NewError(types.DeviceError, "open output", b.FailOpen)
	}
	s := &Stream{SampleRate: sampleRate, Channels: channels, FramesPerBuffer: framesPerBuffer, output: fn}
	b.outputs = append(b.outputs, s)
	return s, nil
}

// LastInput 返回最近打开的输入流
func (b *Backend) LastInput() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return nil
	}
	return b.inputs[len(b.inputs)-1]
}

// LastOutput 返回最近打开的输出流
func (b *Backend) LastOutput() *Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.outputs) == 0 {
		return nil
	}
	return b.outputs[len(b.outputs)-1]
}

// OutputCount 返回累计打开的输出流数量
func (b *Backend) OutputCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.outputs)
}

// ErrNotRunning 流未启动或已关闭
var ErrNotRunning = errors.New("mock: stream not running")

// Stream 模拟音频流
type Stream struct {
	SampleRate      float64
	Channels        int
	FramesPerBuffer int

	mu      sync.Mutex
	input   device.InputFunc
	output  device.OutputFunc
	started bool
	closed  bool
}

// Start 启动流
func (s *Stream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrNotRunning
	}
	s.started = true
	return nil
}

// Stop 停止流
func (s *Stream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// Close 关闭流
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	s.closed = true
	return nil
}

// Running 流是否处于运行状态
func (s *Stream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started && !s.closed
}

// Closed 流是否已关闭
func (s *Stream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Push 以一个输入块调用采集回调，流未运行时返回 ErrNotRunning
func (s *Stream) Push(block []float32) error {
	if !s.Running() || s.input == nil {
		return ErrNotRunning
	}
	s.input(block)
	return nil
}

// Pull 调用播放回调请求 frames 帧，返回回调填充的交错缓冲
func (s *Stream) Pull(frames int) ([]float32, error) {
	if !s.Running() || s.output == nil {
		return nil, ErrNotRunning
	}
	out := make([]float32, frames*s.Channels)
	s.output(out)
	return out, nil
}
