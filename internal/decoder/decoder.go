package decoder

import (
	"fmt"
	"path/filepath"
	"strings"

	"wavemood/internal/types"
)

// AudioDecoder 音频解码器接口
type AudioDecoder interface {
	Decode(filePath string) (types.AudioFile, error)
	SupportedFormats() []string
}

// DecoderRegistry 解码器注册表
type DecoderRegistry struct {
	decoders map[string]AudioDecoder
}

// NewDecoderRegistry 创建新的解码器注册表
func NewDecoderRegistry() *DecoderRegistry {
	registry := &DecoderRegistry{
		decoders: make(map[string]AudioDecoder),
	}

	// 注册支持的解码器
	registry.Register(&WAVDecoder{})
	registry.Register(&FLACDecoder{})
	registry.Register(&MP3Decoder{})

	return registry
}

// Register 注册解码器
func (r *DecoderRegistry) Register(decoder AudioDecoder) {
	for _, format := range decoder.SupportedFormats() {
		r.decoders[strings.ToLower(format)] = decoder
	}
}

// Supports 判断文件扩展名是否受支持
func (r *DecoderRegistry) Supports(filePath string) bool {
	_, err := r.GetDecoder(filePath)
	return err == nil
}

// GetDecoder 根据文件扩展名获取解码器
func (r *DecoderRegistry) GetDecoder(filePath string) (AudioDecoder, error) {
	ext := strings.ToLower(filepath.Ext(filePath))
	if ext == "" {
		return nil, types.Errorf(types.ValidationError, "decode", "无法确定文件格式: %s", filePath)
	}

	// 移除点号
	ext = ext[1:]

	decoder, exists := r.decoders[ext]
	if !exists {
		return nil, types.Errorf(types.ValidationError, "decode", "不支持的音频格式: %s", ext)
	}

	return decoder, nil
}

// DecodeFile 解码音频文件
func (r *DecoderRegistry) DecodeFile(filePath string) (types.AudioFile, error) {
	decoder, err := r.GetDecoder(filePath)
	if err != nil {
		return nil, err
	}

	return decoder.Decode(filePath)
}

// LoadMatrix 解码整个文件为采样矩阵，并返回文件格式与元数据
func (r *DecoderRegistry) LoadMatrix(filePath string) (*types.SampleMatrix, types.AudioFile, error) {
	audioFile, err := r.DecodeFile(filePath)
	if err != nil {
		return nil, nil, err
	}
	defer audioFile.Close()

	samples, err := audioFile.GetSamples()
	if err != nil {
		return nil, nil, types.NewError(types.IOError, "decode", fmt.Errorf("读取音频数据失败: %w", err))
	}
	if audioFile.GetSampleRate() <= 0 {
		return nil, nil, types.Errorf(types.IOError, "decode", "无效的采样率: %d", audioFile.GetSampleRate())
	}

	return types.NewSampleMatrix(samples, audioFile.GetChannels(), audioFile.GetSampleRate()), audioFile, nil
}
