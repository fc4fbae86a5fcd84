package model

import (
	"fmt"
	"sort"

	"wavemood/internal/features"

	"gonum.org/v1/gonum/floats"
)

// knnArtifact knn.yaml 的结构
type knnArtifact struct {
	K             int         `yaml:"k"`
	Labels        []string    `yaml:"labels"`
	Probabilities bool        `yaml:"probabilities"`
	Scaler        *scalerSpec `yaml:"scaler"`
	Samples       []knnSample `yaml:"samples"`
}

type knnSample struct {
	Features []float64 `yaml:"features"`
	Label    string    `yaml:"label"`
}

// KNNModel K近邻分类器
type KNNModel struct {
	k             int
	labels        []string
	probabilities bool
	scaler        *standardScaler
	points        [][]float64
	pointLabels   []string
}

func newKNN(a *knnArtifact) (*KNNModel, error) {
	if len(a.Samples) == 0 {
		return nil, fmt.Errorf("训练样本为空")
	}
	scaler, err := newScaler(a.Scaler)
	if err != nil {
		return nil, err
	}

	m := &KNNModel{
		k:             a.K,
		probabilities: a.Probabilities,
		scaler:        scaler,
	}
	if m.k <= 0 {
		m.k = 5
	}
	if m.k > len(a.Samples) {
		m.k = len(a.Samples)
	}

	known := make(map[string]bool)
	for i, s := range a.Samples {
		if len(s.Features) != features.Size {
			return nil, fmt.Errorf("第 %d 个样本维度应为 %d，实际 %d", i, features.Size, len(s.Features))
		}
		if s.Label == "" {
			return nil, fmt.Errorf("第 %d 个样本缺少标签", i)
		}
		var v features.Vector
		copy(v[:], s.Features)
		m.points = append(m.points, scaler.transform(v))
		m.pointLabels = append(m.pointLabels, s.Label)
		known[s.Label] = true
	}

	m.labels = a.Labels
	if len(m.labels) == 0 {
		for label := range known {
			m.labels = append(m.labels, label)
		}
		sort.Strings(m.labels)
	}
	for label := range known {
		if !contains(m.labels, label) {
			return nil, fmt.Errorf("样本标签 %q 不在标签集中", label)
		}
	}
	return m, nil
}

// Kind 返回模型种类
func (m *KNNModel) Kind() Kind { return KNN }

// Predict 取欧氏距离最近的 k 个样本投票，票数相同时取最近邻所属标签
func (m *KNNModel) Predict(x features.Vector) (Prediction, error) {
	q := m.scaler.transform(x)

	order := make([]int, len(m.points))
	dist := make([]float64, len(m.points))
	for i, p := range m.points {
		order[i] = i
		dist[i] = floats.Distance(q, p, 2)
	}
	sort.SliceStable(order, func(a, b int) bool { return dist[order[a]] < dist[order[b]] })

	votes := make(map[string]int)
	firstSeen := make(map[string]int)
	for rank, idx := range order[:m.k] {
		label := m.pointLabels[idx]
		if _, ok := firstSeen[label]; !ok {
			firstSeen[label] = rank
		}
		votes[label]++
	}

	best := ""
	for label, n := range votes {
		if best == "" || n > votes[best] || (n == votes[best] && firstSeen[label] < firstSeen[best]) {
			best = label
		}
	}

	pred := Prediction{Label: best}
	if m.probabilities {
		pred.Probs = make(map[string]float64, len(m.labels))
		for _, label := range m.labels {
			pred.Probs[label] = float64(votes[label]) / float64(m.k)
		}
	}
	return pred, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
