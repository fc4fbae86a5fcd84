package decoder

import (
	"fmt"
	"os"
	"path/filepath"

	"wavemood/internal/types"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	pcmBitDepth    = 16
	pcmAudioFormat = 1 // WAV PCM 格式标记
	pcmMaxValue    = 32767.0
)

// QuantizePCM16 将浮点采样裁剪到 [-1, 1] 并量化为 16 位整数
func QuantizePCM16(samples []float32) []int {
	out := make([]int, len(samples))
	for i, s := range samples {
		v := float64(s)
		if v != v { // NaN
			v = 0
		}
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		out[i] = int(v * pcmMaxValue)
	}
	return out
}

// WriteMonoWAV 将单声道采样写为 16 位 PCM WAV 文件
func WriteMonoWAV(filePath string, samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return types.Errorf(types.ValidationError, "write wav", "无效的采样率: %d", sampleRate)
	}

	if dir := filepath.Dir(filePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return types.NewError(types.IOError, "write wav", fmt.Errorf("创建目录失败: %w", err))
		}
	}

	file, err := os.Create(filePath)
	if err != nil {
		return types.NewError(types.IOError, "write wav", fmt.Errorf("创建文件失败: %w", err))
	}

	encoder := wav.NewEncoder(file, sampleRate, pcmBitDepth, 1, pcmAudioFormat)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           QuantizePCM16(samples),
		SourceBitDepth: pcmBitDepth,
	}

	if err := encoder.Write(buf); err != nil {
		file.Close()
		os.Remove(filePath)
		return types.NewError(types.IOError, "write wav", fmt.Errorf("写入PCM数据失败: %w", err))
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		os.Remove(filePath)
		return types.NewError(types.IOError, "write wav", fmt.Errorf("写入WAV头失败: %w", err))
	}
	if err := file.Close(); err != nil {
		return types.NewError(types.IOError, "write wav", fmt.Errorf("关闭文件失败: %w", err))
	}
	return nil
}
