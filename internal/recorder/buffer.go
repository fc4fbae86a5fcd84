package recorder

import "sync"

// sampleBuffer 一次录音累积的单声道采样块，按到达顺序保存
type sampleBuffer struct {
	mu         sync.Mutex
	blocks     [][]float32
	frames     int
	sampleRate int
}

func newSampleBuffer(sampleRate int) *sampleBuffer {
	return &sampleBuffer{sampleRate: sampleRate}
}

func (b *sampleBuffer) append(block []float32) {
	b.mu.Lock()
	b.blocks = append(b.blocks, block)
	b.frames += len(block)
	b.mu.Unlock()
}

// concat 拼接全部采样块
func (b *sampleBuffer) concat() []float32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]float32, 0, b.frames)
	for _, block := range b.blocks {
		out = append(out, block...)
	}
	return out
}
