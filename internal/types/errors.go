package types

import (
	"errors"
	"fmt"
)

// ErrorKind 错误分类
type ErrorKind int

const (
	DeviceError ErrorKind = iota + 1
	IOError
	ModelLoadError
	DataError
	ValidationError
)

// String 返回错误分类名称
func (k ErrorKind) String() string {
	switch k {
	case DeviceError:
		return "DeviceError"
	case IOError:
		return "IOError"
	case ModelLoadError:
		return "ModelLoadError"
	case DataError:
		return "DataError"
	case ValidationError:
		return "ValidationError"
	default:
		return "UnknownError"
	}
}

// Error 带分类的错误
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewError 创建分类错误
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf 以格式化消息创建分类错误
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind 判断 err 链中是否存在指定分类的错误
func IsKind(err error, kind ErrorKind) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind == kind
	}
	return false
}
