package types

import "time"

// SampleMatrix 解码后的采样矩阵（帧 × 声道），按帧交错存储
type SampleMatrix struct {
	Data       []float32
	Channels   int
	SampleRate int
}

// Frames 返回总帧数
func (m *SampleMatrix) Frames() int {
	if m == nil || m.Channels <= 0 {
		return 0
	}
	return len(m.Data) / m.Channels
}

// Duration 返回时长
func (m *SampleMatrix) Duration() time.Duration {
	if m == nil || m.SampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(m.Frames()) / float64(m.SampleRate) * float64(time.Second))
}

// Seconds 返回以秒计的时长
func (m *SampleMatrix) Seconds() float64 {
	if m == nil || m.SampleRate <= 0 {
		return 0
	}
	return float64(m.Frames()) / float64(m.SampleRate)
}

// Mono 对各声道取平均，得到单声道信号
func (m *SampleMatrix) Mono() []float64 {
	frames := m.Frames()
	out := make([]float64, frames)
	if frames == 0 {
		return out
	}
	if m.Channels == 1 {
		for i, s := range m.Data[:frames] {
			out[i] = float64(s)
		}
		return out
	}
	inv := 1.0 / float64(m.Channels)
	for i := 0; i < frames; i++ {
		sum := 0.0
		for ch := 0; ch < m.Channels; ch++ {
			sum += float64(m.Data[i*m.Channels+ch])
		}
		out[i] = sum * inv
	}
	return out
}

// NewSampleMatrix 由交错的 float64 采样构建矩阵
func NewSampleMatrix(interleaved []float64, channels, sampleRate int) *SampleMatrix {
	if channels <= 0 {
		channels = 1
	}
	frames := len(interleaved) / channels
	data := make([]float32, frames*channels)
	for i := range data {
		data[i] = float32(interleaved[i])
	}
	return &SampleMatrix{Data: data, Channels: channels, SampleRate: sampleRate}
}
