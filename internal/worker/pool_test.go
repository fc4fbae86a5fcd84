package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsAllTasks(t *testing.T) {
	p := New(3, 16, nil)
	var count atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, p.Submit(func(context.Context) { count.Add(1) }))
	}
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, int32(10), count.Load())
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(1, 1, nil)
	require.NoError(t, p.Close(context.Background()))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrClosed)
	require.NoError(t, p.Close(context.Background()))
}

func TestSubmitQueueFull(t *testing.T) {
	p := New(1, 1, nil)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Submit(func(context.Context) {}))
	assert.ErrorIs(t, p.Submit(func(context.Context) {}), ErrQueueFull)

	close(release)
	require.NoError(t, p.Close(context.Background()))
}

func TestPanicIsRecovered(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := New(1, 4, logger)

	var wg sync.WaitGroup
	wg.Add(1)
	require.NoError(t, p.Submit(func(context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(context.Context) { wg.Done() }))
	wg.Wait()

	require.NoError(t, p.Close(context.Background()))
	require.NotEmpty(t, hook.AllEntries())
	assert.Equal(t, "boom", hook.LastEntry().Data["panic"])
}

func TestCloseTimeoutCancelsRunningTasks(t *testing.T) {
	p := New(1, 1, nil)
	started := make(chan struct{})
	exited := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(exited)
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)

	select {
	case <-exited:
	case <-time.After(time.Second):
		t.Fatal("任务未收到取消")
	}
}

func TestCloseTimeoutDoesNotWaitForStuckTask(t *testing.T) {
	p := New(1, 1, nil)
	started := make(chan struct{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, p.Submit(func(context.Context) {
		close(started)
		<-release
	}))
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	begin := time.Now()
	assert.ErrorIs(t, p.Close(ctx), context.DeadlineExceeded)
	assert.Less(t, time.Since(begin), 500*time.Millisecond)
}
