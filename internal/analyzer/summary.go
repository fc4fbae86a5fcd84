package analyzer

import (
	"math"
	"sort"

	"wavemood/internal/types"

	"gonum.org/v1/gonum/floats"
)

// Summarize 按标签汇总时间线。
//
// 相邻窗口互相重叠，每个窗口只计入到下一个窗口起点为止的时长，
// 最后一个窗口计入其完整剩余时长，因此各标签时长之和等于总时长。
func Summarize(timeline []types.AnalysisWindow, total float64) map[string]types.LabelSummary {
	durations := make(map[string]float64)
	probs := make(map[string][]float64)

	for i, w := range timeline {
		end := w.End
		if i+1 < len(timeline) {
			end = math.Min(end, timeline[i+1].Start)
		}
		durations[w.Label] += math.Max(0, end-w.Start)
		for k, v := range w.Probs {
			probs[k] = append(probs[k], v)
		}
	}

	summary := make(map[string]types.LabelSummary, len(durations))
	for label, dur := range durations {
		pct := 0.0
		if total > 1e-6 {
			pct = dur / total * 100
		}
		s := types.LabelSummary{
			DurationS: round(dur, 3),
			Pct:       round(pct, 2),
		}
		if ps := probs[label]; len(ps) > 0 {
			avg := round(floats.Sum(ps)/float64(len(ps)), 4)
			s.AvgProb = &avg
		}
		summary[label] = s
	}
	return summary
}

// TopLabel 返回时长最长的标签，时长相同时取字典序较小者
func TopLabel(summary map[string]types.LabelSummary) (string, bool) {
	if len(summary) == 0 {
		return "", false
	}
	labels := make([]string, 0, len(summary))
	for label := range summary {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	top := labels[0]
	for _, label := range labels[1:] {
		if summary[label].DurationS > summary[top].DurationS {
			top = label
		}
	}
	return top, true
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
