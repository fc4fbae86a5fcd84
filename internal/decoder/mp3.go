package decoder

import (
	"fmt"
	"os"
	"time"

	"wavemood/internal/types"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
)

// mp3ChunkFrames 每次从解码流读取的帧数
const mp3ChunkFrames = 4096

// MP3Decoder MP3格式解码器
type MP3Decoder struct{}

// MP3File MP3文件实现
type MP3File struct {
	stream   beep.StreamSeekCloser
	format   beep.Format
	duration time.Duration
	samples  []float64
}

// SupportedFormats 返回支持的格式
func (d *MP3Decoder) SupportedFormats() []string {
	return []string{"mp3"}
}

// Decode 解码MP3文件
func (d *MP3Decoder) Decode(filePath string) (types.AudioFile, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, types.NewError(types.IOError, "decode", fmt.Errorf("打开MP3文件失败: %w", err))
	}

	// 解码流接管文件句柄，Close 时一并关闭
	stream, format, err := mp3.Decode(file)
	if err != nil {
		file.Close()
		return nil, types.NewError(types.IOError, "decode", fmt.Errorf("解析MP3文件失败: %w", err))
	}

	return &MP3File{
		stream:   stream,
		format:   format,
		duration: format.SampleRate.D(stream.Len()),
	}, nil
}

// GetFormat 获取格式名称
func (m *MP3File) GetFormat() string {
	return "MP3"
}

// GetSampleRate 获取采样率
func (m *MP3File) GetSampleRate() int {
	return int(m.format.SampleRate)
}

// GetBitDepth 获取位深度
func (m *MP3File) GetBitDepth() int {
	return m.format.Precision * 8
}

// GetChannels 获取声道数
func (m *MP3File) GetChannels() int {
	return m.format.NumChannels
}

// GetDuration 获取时长
func (m *MP3File) GetDuration() time.Duration {
	return m.duration
}

// GetSamples 获取音频采样数据
func (m *MP3File) GetSamples() ([]float64, error) {
	if m.samples != nil {
		return m.samples, nil
	}

	channels := m.format.NumChannels
	if channels < 1 || channels > 2 {
		return nil, fmt.Errorf("不支持的MP3声道数: %d", channels)
	}

	samples := make([]float64, 0, m.stream.Len()*channels)
	buf := make([][2]float64, mp3ChunkFrames)
	for {
		n, ok := m.stream.Stream(buf)
		for _, frame := range buf[:n] {
			samples = append(samples, frame[:channels]...)
		}
		if !ok {
			break
		}
	}
	if err := m.stream.Err(); err != nil {
		return nil, fmt.Errorf("读取MP3音频帧失败: %w", err)
	}

	m.samples = samples
	return samples, nil
}

// GetMetadata 获取元数据
func (m *MP3File) GetMetadata() types.AudioMetadata {
	return types.AudioMetadata{
		Duration: m.duration.String(),
	}
}

// Close 关闭文件
func (m *MP3File) Close() error {
	if m.stream != nil {
		return m.stream.Close()
	}
	return nil
}
