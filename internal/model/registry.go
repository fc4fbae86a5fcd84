package model

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"wavemood/internal/types"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// 模型文件名
const (
	MLPFile = "mlp.yaml"
	KNNFile = "knn.yaml"
)

// Registry 按需加载模型文件，每个进程只加载一次，加载后不再修改
type Registry struct {
	dir    string
	logger logrus.FieldLogger

	once   sync.Once
	models map[Kind]Model
	errs   map[Kind]error
}

// NewRegistry 创建模型注册表，dir 为模型文件所在目录
func NewRegistry(dir string, logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{dir: dir, logger: logger}
}

// Load 加载全部模型文件。失败的模型被禁用，启发式模型始终可用。
func (r *Registry) Load() {
	r.once.Do(func() {
		r.models = map[Kind]Model{Heuristic: HeuristicModel{}}
		r.errs = make(map[Kind]error)

		if m, err := loadArtifact(filepath.Join(r.dir, MLPFile), func(a *mlpArtifact) (Model, error) {
			return newMLP(a)
		}); err != nil {
			r.errs[MLP] = err
		} else {
			r.models[MLP] = m
		}

		if m, err := loadArtifact(filepath.Join(r.dir, KNNFile), func(a *knnArtifact) (Model, error) {
			return newKNN(a)
		}); err != nil {
			r.errs[KNN] = err
		} else {
			r.models[KNN] = m
		}

		for kind, err := range r.errs {
			r.logger.WithFields(logrus.Fields{
				"model": kind.String(),
				"dir":   r.dir,
			}).WithError(err).Warn("模型不可用，将回退到启发式模型")
		}
	})
}

// Get 返回指定模型；不可用时返回启发式模型，fallback 为 true
func (r *Registry) Get(kind Kind) (m Model, fallback bool) {
	r.Load()
	if m, ok := r.models[kind]; ok {
		return m, false
	}
	return r.models[Heuristic], true
}

// Available 判断指定模型是否已成功加载
func (r *Registry) Available(kind Kind) bool {
	r.Load()
	_, ok := r.models[kind]
	return ok
}

// Err 返回指定模型的加载错误
func (r *Registry) Err(kind Kind) error {
	r.Load()
	return r.errs[kind]
}

func loadArtifact[T any](path string, build func(*T) (Model, error)) (Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ModelLoadError, "load model", fmt.Errorf("读取模型文件失败: %w", err))
	}

	var artifact T
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, types.NewError(types.ModelLoadError, "load model", fmt.Errorf("解析模型文件 %s 失败: %w", path, err))
	}

	m, err := build(&artifact)
	if err != nil {
		return nil, types.NewError(types.ModelLoadError, "load model", fmt.Errorf("模型文件 %s 无效: %w", path, err))
	}
	return m, nil
}
