package analyzer

import (
	"math"

	"wavemood/internal/types"

	"gonum.org/v1/gonum/floats"
)

// Waveform 解码文件并生成单声道波形，points > 0 时按峰值降采样
func (a *Analyzer) Waveform(filePath string, points int) (*types.Waveform, error) {
	matrix, _, err := a.decoderRegistry.LoadMatrix(filePath)
	if err != nil {
		return nil, err
	}
	return NewWaveform(matrix, points), nil
}

// NewWaveform 由采样矩阵生成波形
func NewWaveform(matrix *types.SampleMatrix, points int) *types.Waveform {
	mono := matrix.Mono()
	duration := matrix.Seconds()
	if points > 0 && points < len(mono) {
		mono = peaks(mono, points)
	}
	return &types.Waveform{
		Samples:    mono,
		TimePoints: linspace(0, duration, len(mono)),
		Duration:   duration,
		SampleRate: matrix.SampleRate,
	}
}

// peaks 将信号切成 n 段，每段保留绝对值最大的采样 (保留符号)
func peaks(sig []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		lo := i * len(sig) / n
		hi := (i + 1) * len(sig) / n
		best := 0.0
		for _, v := range sig[lo:hi] {
			if math.Abs(v) > math.Abs(best) {
				best = v
			}
		}
		out[i] = best
	}
	return out
}

// linspace 返回 [start, stop] 上 n 个等距点，包含两端
func linspace(start, stop float64, n int) []float64 {
	out := make([]float64, n)
	switch n {
	case 0:
		return out
	case 1:
		out[0] = start
		return out
	}
	return floats.Span(out, start, stop)
}
