package meter

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
)

// DefaultDecay 每次刷新时的回落量
const DefaultDecay = 0.06

// LevelMeter 电平表：瞬时上升，按固定速率回落
type LevelMeter struct {
	mu        sync.Mutex
	decay     float64
	displayed []float64
}

// NewLevelMeter 创建指定条数的电平表，decay <= 0 时使用默认回落量
func NewLevelMeter(bars int, decay float64) *LevelMeter {
	if bars < 1 {
		bars = 1
	}
	if decay <= 0 {
		decay = DefaultDecay
	}
	return &LevelMeter{decay: decay, displayed: make([]float64, bars)}
}

// Update 输入新的原始电平并返回显示值的副本。
// 输入不足条数时按 0 补齐，超出部分丢弃。
func (m *LevelMeter) Update(raw []float64) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.displayed {
		v := 0.0
		if i < len(raw) {
			v = clamp01(raw[i])
		}
		m.displayed[i] = clamp01(math.Max(v, math.Max(0, m.displayed[i]-m.decay)))
	}
	return append([]float64(nil), m.displayed...)
}

// Values 返回当前显示值
func (m *LevelMeter) Values() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.displayed...)
}

// Len 返回电平条数
func (m *LevelMeter) Len() int {
	return len(m.displayed)
}

// Reset 清零所有电平条
func (m *LevelMeter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.displayed {
		m.displayed[i] = 0
	}
}

// Bars 将单个电平值展开为 n 条略有差异的原始电平（系数 0.7~0.9）
func Bars(level float64, n int, rng *rand.Rand) []float64 {
	out := make([]float64, n)
	level = clamp01(level)
	for i := range out {
		f := 0.8
		if rng != nil {
			f = 0.7 + 0.2*rng.Float64()
		}
		out[i] = clamp01(level * f)
	}
	return out
}

// Snapshot 单槽电平快照：一个写者、一个读者，后写覆盖先写
type Snapshot struct {
	bits atomic.Uint64
}

// Store 写入电平，自动裁剪到 [0, 1]
func (s *Snapshot) Store(level float64) {
	s.bits.Store(math.Float64bits(clamp01(level)))
}

// Load 读取最近一次写入的电平
func (s *Snapshot) Load() float64 {
	return math.Float64frombits(s.bits.Load())
}

// RMSLevel 计算采样的均方根并乘以增益，结果裁剪到 [0, 1]
func RMSLevel(samples []float32, gain float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		v := float64(s)
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v * v
	}
	return clamp01(math.Sqrt(sum/float64(len(samples))) * gain)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
