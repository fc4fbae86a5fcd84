package player

import "wavemood/internal/types"

// resample 用线性插值将交错采样矩阵转换到目标采样率
func resample(m *types.SampleMatrix, toRate int) *types.SampleMatrix {
	if toRate <= 0 || m.SampleRate == toRate || m.Frames() == 0 {
		return m
	}

	ch := m.Channels
	frames := m.Frames()
	ratio := float64(m.SampleRate) / float64(toRate)
	newFrames := int(float64(frames) / ratio)
	out := make([]float32, newFrames*ch)

	for i := 0; i < newFrames; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := float32(pos - float64(idx))
		for c := 0; c < ch; c++ {
			switch {
			case idx+1 < frames:
				a := m.Data[idx*ch+c]
				b := m.Data[(idx+1)*ch+c]
				out[i*ch+c] = a*(1-frac) + b*frac
			case idx < frames:
				out[i*ch+c] = m.Data[idx*ch+c]
			default:
				out[i*ch+c] = m.Data[(frames-1)*ch+c]
			}
		}
	}

	return &types.SampleMatrix{Data: out, Channels: ch, SampleRate: toRate}
}
