package types

import "time"

// AnalyzerConfig 分析器配置
type AnalyzerConfig struct {
	WindowSec   float64 // 分析窗口长度 (秒)
	HopSec      float64 // 窗口步长 (秒)
	FMin        float64 // 基频搜索下限 (Hz)
	FMax        float64 // 基频搜索上限 (Hz)
	Concurrency int     // 并发数
	Quiet       bool    // 静默模式
	JSONOutput  bool    // JSON输出格式
}

// DefaultAnalyzerConfig 返回默认分析配置
func DefaultAnalyzerConfig() *AnalyzerConfig {
	return &AnalyzerConfig{
		WindowSec:   1.0,
		HopSec:      0.5,
		FMin:        50,
		FMax:        800,
		Concurrency: 1,
	}
}

// AudioMetadata 音频元数据
type AudioMetadata struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Year     string `json:"year,omitempty"`
	Genre    string `json:"genre,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// AnalysisWindow 单个滑动窗口的分析结果，构建后不再修改
type AnalysisWindow struct {
	Start    float64            `json:"start"`
	End      float64            `json:"end"`
	Features [8]float64         `json:"features"`
	Label    string             `json:"label"`
	Probs    map[string]float64 `json:"probs"` // nil 表示模型未给出概率
}

// LabelSummary 单个情绪标签的汇总
type LabelSummary struct {
	DurationS float64  `json:"duration_s"`
	Pct       float64  `json:"pct"`
	AvgProb   *float64 `json:"avg_prob"`
}

// AnalysisResult 一次完整文件分析的结果
type AnalysisResult struct {
	FilePath   string                  `json:"filePath,omitempty"`
	Format     string                  `json:"format,omitempty"`
	Metadata   AudioMetadata           `json:"metadata"`
	Model      string                  `json:"model,omitempty"`
	Fallback   bool                    `json:"fallback,omitempty"` // 请求的模型不可用，使用了启发式模型
	SampleRate int                     `json:"sampleRate,omitempty"`
	Duration   float64                 `json:"duration"`
	OK         bool                    `json:"ok"`
	Error      string                  `json:"error,omitempty"`
	Timeline   []AnalysisWindow        `json:"timeline"`
	Summary    map[string]LabelSummary `json:"summary"`
}

// RecordingOutcome 一次录音落盘的结果
type RecordingOutcome struct {
	Path       string        `json:"path"`
	Frames     int           `json:"frames"`
	Dropped    int64         `json:"dropped"` // 因队列满而丢弃的块数
	SampleRate int           `json:"sampleRate"`
	Duration   time.Duration `json:"duration"`
}

// AudioFile 音频文件接口
type AudioFile interface {
	GetFormat() string
	GetSampleRate() int
	GetBitDepth() int
	GetChannels() int
	GetDuration() time.Duration
	GetSamples() ([]float64, error) // 交错存储的归一化采样
	GetMetadata() AudioMetadata
	Close() error
}

// Waveform 用于波形预览的单声道数据
type Waveform struct {
	Samples    []float64 `json:"samples"`
	TimePoints []float64 `json:"timePoints"` // 与 Samples 一一对应的时间 (秒)
	Duration   float64   `json:"duration"`
	SampleRate int       `json:"sampleRate"`
}
