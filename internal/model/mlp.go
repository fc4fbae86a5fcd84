package model

import (
	"fmt"
	"math"

	"wavemood/internal/features"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// mlpArtifact mlp.yaml 的结构
type mlpArtifact struct {
	Labels []string    `yaml:"labels"`
	Scaler *scalerSpec `yaml:"scaler"`
	Layers []layerSpec `yaml:"layers"`
}

type scalerSpec struct {
	Mean  []float64 `yaml:"mean"`
	Scale []float64 `yaml:"scale"`
}

// layerSpec 全连接层，weights 为 输入×输出
type layerSpec struct {
	Weights    [][]float64 `yaml:"weights"`
	Bias       []float64   `yaml:"bias"`
	Activation string      `yaml:"activation"`
}

type denseLayer struct {
	weights    *mat.Dense
	bias       *mat.VecDense
	activation string
}

// MLPModel 前馈神经网络分类器
type MLPModel struct {
	labels []string
	scaler *standardScaler
	layers []denseLayer
}

// standardScaler 标准化：(x - mean) / scale
type standardScaler struct {
	mean  []float64
	scale []float64
}

func newScaler(spec *scalerSpec) (*standardScaler, error) {
	if spec == nil {
		return nil, nil
	}
	if len(spec.Mean) != features.Size || len(spec.Scale) != features.Size {
		return nil, fmt.Errorf("scaler 维度应为 %d，实际 mean=%d scale=%d",
			features.Size, len(spec.Mean), len(spec.Scale))
	}
	return &standardScaler{mean: spec.Mean, scale: spec.Scale}, nil
}

func (s *standardScaler) transform(x features.Vector) []float64 {
	out := make([]float64, features.Size)
	copy(out, x[:])
	if s == nil {
		return out
	}
	for i := range out {
		scale := s.scale[i]
		if scale == 0 {
			scale = 1
		}
		out[i] = (out[i] - s.mean[i]) / scale
	}
	return out
}

func newMLP(a *mlpArtifact) (*MLPModel, error) {
	if len(a.Layers) == 0 {
		return nil, fmt.Errorf("网络没有任何层")
	}
	scaler, err := newScaler(a.Scaler)
	if err != nil {
		return nil, err
	}

	m := &MLPModel{labels: a.Labels, scaler: scaler}
	in := features.Size
	for i, spec := range a.Layers {
		if len(spec.Weights) != in {
			return nil, fmt.Errorf("第 %d 层输入维度应为 %d，实际 %d", i, in, len(spec.Weights))
		}
		out := len(spec.Bias)
		if out == 0 {
			return nil, fmt.Errorf("第 %d 层缺少 bias", i)
		}
		data := make([]float64, 0, in*out)
		for r, row := range spec.Weights {
			if len(row) != out {
				return nil, fmt.Errorf("第 %d 层第 %d 行权重长度应为 %d，实际 %d", i, r, out, len(row))
			}
			data = append(data, row...)
		}
		if !isKnownActivation(spec.Activation) {
			return nil, fmt.Errorf("第 %d 层使用了未知的激活函数 %q", i, spec.Activation)
		}
		m.layers = append(m.layers, denseLayer{
			weights:    mat.NewDense(in, out, data),
			bias:       mat.NewVecDense(out, append([]float64(nil), spec.Bias...)),
			activation: spec.Activation,
		})
		in = out
	}

	if len(m.labels) == 0 {
		m.labels = make([]string, in)
		for i := range m.labels {
			m.labels[i] = fmt.Sprint(i)
		}
	}
	if len(m.labels) != in {
		return nil, fmt.Errorf("标签数 %d 与输出维度 %d 不一致", len(m.labels), in)
	}
	return m, nil
}

// Kind 返回模型种类
func (m *MLPModel) Kind() Kind { return MLP }

// Predict 标准化后前向传播，输出 softmax 概率
func (m *MLPModel) Predict(x features.Vector) (Prediction, error) {
	v := mat.NewVecDense(features.Size, m.scaler.transform(x))
	for i, layer := range m.layers {
		_, out := layer.weights.Dims()
		next := mat.NewVecDense(out, nil)
		next.MulVec(layer.weights.T(), v)
		next.AddVec(next, layer.bias)

		act := layer.activation
		if act == "" && i == len(m.layers)-1 {
			act = "softmax"
		}
		activate(act, next.RawVector().Data)
		v = next
	}

	probs := v.RawVector().Data
	for _, p := range probs {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Prediction{}, fmt.Errorf("网络输出包含非法数值")
		}
	}

	result := Prediction{
		Label: m.labels[floats.MaxIdx(probs)],
		Probs: make(map[string]float64, len(probs)),
	}
	for i, p := range probs {
		result.Probs[m.labels[i]] = p
	}
	return result, nil
}

func isKnownActivation(name string) bool {
	switch name {
	case "", "linear", "relu", "tanh", "sigmoid", "softmax":
		return true
	}
	return false
}

func activate(name string, x []float64) {
	switch name {
	case "relu":
		for i, v := range x {
			x[i] = math.Max(0, v)
		}
	case "tanh":
		for i, v := range x {
			x[i] = math.Tanh(v)
		}
	case "sigmoid":
		for i, v := range x {
			x[i] = 1 / (1 + math.Exp(-v))
		}
	case "softmax":
		maxV := floats.Max(x)
		sum := 0.0
		for i, v := range x {
			x[i] = math.Exp(v - maxV)
			sum += x[i]
		}
		floats.Scale(1/sum, x)
	}
}
