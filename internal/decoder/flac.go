package decoder

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"wavemood/internal/types"

	"github.com/mewkiz/flac"
	"github.com/mewkiz/flac/frame"
	"github.com/mewkiz/flac/meta"
)

// FLACDecoder FLAC格式解码器
type FLACDecoder struct{}

// FLACFile FLAC文件实现
type FLACFile struct {
	stream  *flac.Stream
	info    *meta.StreamInfo
	tags    map[string]string
	samples []float64
}

// SupportedFormats 返回支持的格式
func (d *FLACDecoder) SupportedFormats() []string {
	return []string{"flac"}
}

// Decode 解码FLAC文件，流持有文件句柄，Close 时一并关闭
func (d *FLACDecoder) Decode(filePath string) (types.AudioFile, error) {
	stream, err := flac.ParseFile(filePath)
	if err != nil {
		return nil, types.NewError(types.IOError, "decode", fmt.Errorf("解析FLAC文件失败: %w", err))
	}
	if stream.Info == nil || stream.Info.SampleRate == 0 || stream.Info.NChannels == 0 || stream.Info.BitsPerSample == 0 {
		stream.Close()
		return nil, types.Errorf(types.IOError, "decode", "无法读取FLAC信息: %s", filePath)
	}

	return &FLACFile{
		stream: stream,
		info:   stream.Info,
		tags:   vorbisTags(stream.Blocks),
	}, nil
}

// vorbisTags 收集 VorbisComment 标签，键统一为大写
func vorbisTags(blocks []*meta.Block) map[string]string {
	tags := map[string]string{}
	for _, block := range blocks {
		comment, ok := block.Body.(*meta.VorbisComment)
		if !ok {
			continue
		}
		for _, field := range comment.Tags {
			key := strings.ToUpper(field[0])
			if _, seen := tags[key]; !seen {
				tags[key] = field[1]
			}
		}
	}
	return tags
}

// GetFormat 获取格式名称
func (f *FLACFile) GetFormat() string {
	return "FLAC"
}

// GetSampleRate 获取采样率
func (f *FLACFile) GetSampleRate() int {
	return int(f.info.SampleRate)
}

// GetBitDepth 获取位深度
func (f *FLACFile) GetBitDepth() int {
	return int(f.info.BitsPerSample)
}

// GetChannels 获取声道数
func (f *FLACFile) GetChannels() int {
	return int(f.info.NChannels)
}

// GetDuration 获取时长
func (f *FLACFile) GetDuration() time.Duration {
	return time.Duration(f.info.NSamples) * time.Second / time.Duration(f.info.SampleRate)
}

// GetSamples 获取音频采样数据
func (f *FLACFile) GetSamples() ([]float64, error) {
	if f.samples != nil {
		return f.samples, nil
	}

	channels := f.GetChannels()
	scale := 1 / float64(int64(1)<<(f.info.BitsPerSample-1))
	samples := make([]float64, 0, int(f.info.NSamples)*channels)
	for {
		fr, err := f.stream.ParseNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, types.NewError(types.IOError, "decode", fmt.Errorf("解析FLAC音频帧失败: %w", err))
		}
		if len(fr.Subframes) != channels {
			return nil, types.Errorf(types.IOError, "decode", "FLAC帧声道数不一致: %d != %d", len(fr.Subframes), channels)
		}
		samples = interleaveFrame(samples, fr.Subframes, scale)
	}

	f.samples = samples
	return samples, nil
}

// interleaveFrame 把一帧各声道的整数采样按帧交错追加到 dst
func interleaveFrame(dst []float64, subframes []*frame.Subframe, scale float64) []float64 {
	n := len(subframes[0].Samples)
	for _, sub := range subframes[1:] {
		n = min(n, len(sub.Samples))
	}
	for i := 0; i < n; i++ {
		for _, sub := range subframes {
			dst = append(dst, float64(sub.Samples[i])*scale)
		}
	}
	return dst
}

// GetMetadata 获取元数据
func (f *FLACFile) GetMetadata() types.AudioMetadata {
	return types.AudioMetadata{
		Title:    f.tags["TITLE"],
		Artist:   f.tags["ARTIST"],
		Album:    f.tags["ALBUM"],
		Year:     f.tags["DATE"],
		Genre:    f.tags["GENRE"],
		Duration: f.GetDuration().String(),
	}
}

// Close 关闭文件
func (f *FLACFile) Close() error {
	return f.stream.Close()
}
