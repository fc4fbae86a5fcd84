package features

import (
	"github.com/mjibson/go-dsp/fft"
)

// Autocorrelation 计算非负延迟 0..n-1 的线性自相关。
// 通过 FFT 计算功率谱再逆变换，补零到不小于 2n-1 以避免循环卷绕。
func Autocorrelation(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return nil
	}

	size := nearestPowerOf2(2*n - 1)
	padded := make([]float64, size)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}

	inv := fft.IFFT(spectrum)
	corr := make([]float64, n)
	for i := range corr {
		corr[i] = real(inv[i])
	}
	return corr
}

// nearestPowerOf2 找到不小于 n 的最小 2 的幂
func nearestPowerOf2(n int) int {
	power := 1
	for power < n {
		power <<= 1
	}
	return power
}
