package engine

import "wavemood/internal/types"

// Event 引擎发往界面的事件，发送后不再修改
type Event interface {
	event()
}

// WaveformReady 波形解码完成
type WaveformReady struct {
	Path       string
	OK         bool
	Samples    []float64
	TimePoints []float64
	Duration   float64
	SampleRate int
	Err        error
}

// AnalysisComplete 情绪分析完成，失败信息在 Result 中
type AnalysisComplete struct {
	Path   string
	Result *types.AnalysisResult
}

// PlaybackPosition 当前播放位置
type PlaybackPosition struct {
	Seconds float64
}

// Level 电平表显示值
type Level struct {
	Values []float64
}

// RecordingSaved 录音落盘结果
type RecordingSaved struct {
	Outcome types.RecordingOutcome
	Err     error
}

// PlaybackFinished 播放自然结束
type PlaybackFinished struct{}

// Status 状态栏文本
type Status struct {
	Text string
}

func (WaveformReady) event()    {}
func (AnalysisComplete) event() {}
func (PlaybackPosition) event() {}
func (Level) event()            {}
func (RecordingSaved) event()   {}
func (PlaybackFinished) event() {}
func (Status) event()           {}
