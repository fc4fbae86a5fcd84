package device

// InputFunc 采集回调，in 为交错存储的采样，仅在回调期间有效
type InputFunc func(in []float32)

// OutputFunc 播放回调，需要填满 out（交错存储，长度 = 帧数 × 声道数）
type OutputFunc func(out []float32)

// Stream 已打开的音频流
type Stream interface {
	Start() error
	Stop() error
	Close() error
}

// Backend 音频设备后端，便于在没有硬件的环境中替换
type Backend interface {
	OpenInput(sampleRate float64, channels, framesPerBuffer int, fn InputFunc) (Stream, error)
	OpenOutput(sampleRate float64, channels, framesPerBuffer int, fn OutputFunc) (Stream, error)
}
