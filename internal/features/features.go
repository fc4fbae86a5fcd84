package features

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Size 特征向量维度
const Size = 8

// 特征向量中各统计量的位置
const (
	F0Mean = iota
	F0Var
	F0Max
	F0Min
	EnergyMean
	EnergyVar
	EnergyMax
	EnergyMin
)

const (
	defaultFMin     = 50.0
	defaultFMax     = 800.0
	defaultFrameSec = 0.06

	// 子帧过短时退回的固定帧长与步长
	fallbackFrameLen = 256
	fallbackFrameHop = 128
)

// Vector 8维特征：基频与能量各自的 [均值, 方差, 最大值, 最小值]
type Vector [Size]float64

// Extractor 特征提取器
type Extractor struct {
	FMin     float64 // 基频搜索下限 (Hz)
	FMax     float64 // 基频搜索上限 (Hz)
	FrameSec float64 // 子帧长度 (秒)，步长为其一半
}

// NewExtractor 创建默认参数的特征提取器
func NewExtractor() *Extractor {
	return &Extractor{FMin: defaultFMin, FMax: defaultFMax, FrameSec: defaultFrameSec}
}

// Extract 计算一个单声道窗口的特征向量
func (e *Extractor) Extract(window []float64, sampleRate int) Vector {
	if len(window) == 0 || sampleRate <= 0 {
		return Vector{}
	}
	sig := Sanitize(append([]float64(nil), window...))
	f0s, energies := e.Contours(sig, sampleRate)
	return Aggregate(f0s, energies)
}

// Contours 将窗口切分为重叠子帧，返回逐帧的基频与 RMS 能量
func (e *Extractor) Contours(sig []float64, sampleRate int) (f0s, energies []float64) {
	frameLen, hop := e.frameGeometry(sampleRate)

	last := len(sig) - frameLen + 1
	if last < 1 {
		last = 1
	}
	for start := 0; start < last; start += hop {
		end := start + frameLen
		if end > len(sig) {
			end = len(sig)
		}
		frame := sig[start:end]
		if len(frame) == 0 {
			f0s = append(f0s, 0)
			energies = append(energies, 0)
			continue
		}
		energies = append(energies, rms(frame))
		f0s = append(f0s, e.EstimateF0(frame, sampleRate))
	}
	return f0s, energies
}

func (e *Extractor) frameGeometry(sampleRate int) (int, int) {
	frameSec := e.FrameSec
	if frameSec <= 0 {
		frameSec = defaultFrameSec
	}
	frameLen := int(float64(sampleRate) * frameSec)
	hop := frameLen / 2
	if frameLen < 16 {
		return fallbackFrameLen, fallbackFrameHop
	}
	return frameLen, hop
}

// EstimateF0 用自相关估计一个短帧的基频，无有效峰值时返回 0
func (e *Extractor) EstimateF0(frame []float64, sampleRate int) float64 {
	n := len(frame)
	if n < 3 || sampleRate <= 0 {
		return 0
	}

	mean := floats.Sum(frame) / float64(n)
	x := make([]float64, n)
	for i, v := range frame {
		x[i] = v - mean
	}

	corr := Autocorrelation(x)
	if corr[0] <= silenceFloor {
		return 0
	}
	corr[0] = 0

	sr := float64(sampleRate)
	minLag := 1
	if e.FMax > 0 {
		minLag = int(sr / e.FMax)
	}
	maxLag := n - 1
	if e.FMin > 0 {
		maxLag = int(sr / e.FMin)
	}
	if maxLag > n-1 {
		maxLag = n - 1
	}
	if maxLag <= minLag {
		return 0
	}

	peak := minLag + floats.MaxIdx(corr[minLag:maxLag+1])
	if corr[peak] <= 0 || peak <= 0 {
		return 0
	}
	return sr / float64(peak)
}

// silenceFloor 零延迟自相关低于该值视为静音帧
const silenceFloor = 1e-10

// Aggregate 汇总逐帧数组为特征向量，任一数组为空时返回全零
func Aggregate(f0s, energies []float64) Vector {
	var v Vector
	if len(f0s) == 0 || len(energies) == 0 {
		return v
	}
	f0s = Sanitize(append([]float64(nil), f0s...))
	energies = Sanitize(append([]float64(nil), energies...))

	v[F0Mean], v[F0Var] = stat.PopMeanVariance(f0s, nil)
	v[F0Max], v[F0Min] = floats.Max(f0s), floats.Min(f0s)
	v[EnergyMean], v[EnergyVar] = stat.PopMeanVariance(energies, nil)
	v[EnergyMax], v[EnergyMin] = floats.Max(energies), floats.Min(energies)

	Sanitize(v[:])
	return v
}

// Sanitize 将 NaN 与 ±Inf 原地替换为 0
func Sanitize(x []float64) []float64 {
	for i, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			x[i] = 0
		}
	}
	return x
}

func rms(frame []float64) float64 {
	sum := 0.0
	for _, v := range frame {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
