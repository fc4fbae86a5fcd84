package model

import (
	"fmt"
	"strings"

	"wavemood/internal/features"
	"wavemood/internal/types"
)

// Kind 情绪模型种类
type Kind int

const (
	Heuristic Kind = iota
	MLP
	KNN
)

// String 返回模型名称
func (k Kind) String() string {
	switch k {
	case MLP:
		return "mlp"
	case KNN:
		return "knn"
	case Heuristic:
		return "heuristic"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind 解析模型名称（不区分大小写）
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mlp":
		return MLP, nil
	case "knn":
		return KNN, nil
	case "heuristic", "":
		return Heuristic, nil
	default:
		return Heuristic, types.Errorf(types.ValidationError, "parse model", "未知的模型: %q", s)
	}
}

// Prediction 单个窗口的预测结果
type Prediction struct {
	Label string
	Probs map[string]float64 // nil 表示模型不提供概率
}

// Model 情绪分类器
type Model interface {
	Kind() Kind
	Predict(x features.Vector) (Prediction, error)
}

// 启发式模型的平均能量阈值
const (
	neutralEnergy = 0.02
	calmEnergy    = 0.08
)

// HeuristicModel 仅依据平均能量分类，不需要任何模型文件
type HeuristicModel struct{}

// Kind 返回模型种类
func (HeuristicModel) Kind() Kind { return Heuristic }

// Predict 按平均能量划分 neutral / calm / excited
func (HeuristicModel) Predict(x features.Vector) (Prediction, error) {
	energy := x[features.EnergyMean]
	label := "excited"
	switch {
	case energy < neutralEnergy:
		label = "neutral"
	case energy < calmEnergy:
		label = "calm"
	}
	return Prediction{Label: label, Probs: map[string]float64{label: 1.0}}, nil
}
