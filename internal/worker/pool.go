// Package worker 提供由调用方持有的后台任务池，
// 用于解码、分析与录音落盘等不能阻塞界面的工作。
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	// ErrClosed 任务池已关闭
	ErrClosed = errors.New("任务池已关闭")
	// ErrQueueFull 任务队列已满
	ErrQueueFull = errors.New("任务队列已满")
)

// Task 后台任务，ctx 在任务池关闭超时后被取消
type Task func(ctx context.Context)

// Pool 固定数量的工作协程共享一个有界任务队列
type Pool struct {
	tasks  chan Task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	logger logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
}

// New 创建并启动任务池
func New(size, queue int, logger logrus.FieldLogger) *Pool {
	if size <= 0 {
		size = 1
	}
	if queue < size {
		queue = size
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan Task, queue),
		ctx:    ctx,
		cancel: cancel,
		logger: logger.WithField("component", "worker"),
	}

	// 启动工作协程
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				p.run(task)
			}
		}()
	}
	return p
}

// Submit 提交任务，不阻塞调用方
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("panic", fmt.Sprint(r)).Error("后台任务异常退出")
		}
	}()
	task(p.ctx)
}

// Close 停止接收任务并等待队列中的任务完成。
// ctx 结束时取消仍在运行的任务并立即返回 ctx 的错误，不再等待它们退出。
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
