// Package pa 提供基于 PortAudio 的音频设备后端
package pa

import (
	"fmt"
	"sync"

	"wavemood/internal/device"
	"wavemood/internal/types"

	"github.com/gordonklaus/portaudio"
)

// Backend 基于 PortAudio 默认设备的后端
type Backend struct {
	mu     sync.Mutex
	closed bool
}

var _ device.Backend = (*Backend)(nil)

// New 初始化 PortAudio，使用完毕后必须调用 Close
func New() (*Backend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, types.NewError(types.DeviceError, "init", fmt.Errorf("初始化PortAudio失败: %w", err))
	}
	return &Backend{}, nil
}

// OpenInput 打开默认输入设备
func (p *Backend) OpenInput(sampleRate float64, channels, framesPerBuffer int, fn device.InputFunc) (device.Stream, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(channels, 0, sampleRate, framesPerBuffer, func(in []float32) {
		fn(in)
	})
	if err != nil {
		return nil, types.NewError(types.DeviceError, "open input", fmt.Errorf("打开输入流失败: %w", err))
	}
	return &paStream{stream: stream}, nil
}

// OpenOutput 打开默认输出设备
func (p *Backend) OpenOutput(sampleRate float64, channels, framesPerBuffer int, fn device.OutputFunc) (device.Stream, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	stream, err := portaudio.OpenDefaultStream(0, channels, sampleRate, framesPerBuffer, func(out []float32) {
		fn(out)
	})
	if err != nil {
		return nil, types.NewError(types.DeviceError, "open output", fmt.Errorf("打开输出流失败: %w", err))
	}
	return &paStream{stream: stream}, nil
}

// Close 释放 PortAudio，仍打开的流会被一并关闭
func (p *Backend) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return portaudio.Terminate()
}

func (p *Backend) check() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return types.Errorf(types.DeviceError, "open", "PortAudio 已关闭")
	}
	return nil
}

type paStream struct {
	stream *portaudio.Stream
}

func (s *paStream) Start() error {
	if err := s.stream.Start(); err != nil {
		return types.NewError(types.DeviceError, "start", err)
	}
	return nil
}

func (s *paStream) Stop() error {
	if err := s.stream.Stop(); err != nil {
		return types.NewError(types.DeviceError, "stop", err)
	}
	return nil
}

func (s *paStream) Close() error {
	if err := s.stream.Close(); err != nil {
		return types.NewError(types.DeviceError, "close", err)
	}
	return nil
}
