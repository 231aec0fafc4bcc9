package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/bitrixbot/core/bitrix/netutil"
)

func TestQueueRunsJobs(t *testing.T) {
	q := NewQueue(Options{Workers: 2, QueueSize: 8})
	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), "imbot.message.add", func(context.Context) error {
			ran.Add(1)
			return nil
		}))
	}
	q.Close()

	assert.Equal(t, int32(5), ran.Load())
	assert.Equal(t, uint64(5), q.DoneCount())
	assert.Zero(t, q.ErrorCount())
}

func TestQueueRetriesTransientErrors(t *testing.T) {
	q := NewQueue(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, q.Enqueue(context.Background(), "imbot.message.update", func(context.Context) error {
		if calls.Add(1) < 3 {
			return &netutil.StatusError{Code: 503}
		}
		return nil
	}))
	q.Close()

	assert.Equal(t, int32(3), calls.Load())
	assert.Zero(t, q.ErrorCount())
}

func TestQueueGivesUpOnPermanentErrors(t *testing.T) {
	q := NewQueue(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, q.Enqueue(context.Background(), "imbot.message.add", func(context.Context) error {
		calls.Add(1)
		return errors.New("ACCESS_DENIED")
	}))
	q.Close()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, uint64(1), q.ErrorCount())
}

func TestQueueDetachesCancellation(t *testing.T) {
	q := NewQueue(Options{Workers: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var cancelled, ran atomic.Bool
	require.NoError(t, q.Enqueue(ctx, "imbot.message.add", func(jobCtx context.Context) error {
		ran.Store(true)
		cancelled.Store(jobCtx.Err() != nil)
		return nil
	}))
	q.Close()
	assert.True(t, ran.Load())
	assert.False(t, cancelled.Load())
}

func TestQueueClosedAndFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue(Options{Workers: 1, QueueSize: 1})
	started := make(chan struct{})

	require.NoError(t, q.Enqueue(context.Background(), "a", func(context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.NoError(t, q.Enqueue(context.Background(), "b", func(context.Context) error { return nil }))
	assert.ErrorIs(t, q.Enqueue(context.Background(), "c", func(context.Context) error { return nil }), ErrQueueFull)

	close(block)
	q.Close()
	assert.ErrorIs(t, q.Enqueue(context.Background(), "d", func(context.Context) error { return nil }), ErrQueueClosed)
	assert.Error(t, q.Enqueue(context.Background(), "e", nil))
}

func TestClassifyError(t *testing.T) {
	assert.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	assert.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	assert.Equal(t, "rate_limited", classifyError(&netutil.StatusError{Code: 429}))
	assert.Equal(t, "http_5xx", classifyError(&netutil.StatusError{Code: 502}))
	assert.Equal(t, "http_4xx", classifyError(&netutil.StatusError{Code: 404}))
	assert.Equal(t, "unknown", classifyError(errors.New("x")))
}

func TestSanitizeErrorMessage(t *testing.T) {
	err := errors.New(`Post "https://portal.example.com/rest/1/abc123xyz/imbot.message.add": EOF`)
	msg := sanitizeErrorMessage(err)
	assert.NotContains(t, msg, "abc123xyz")
	assert.Contains(t, msg, "/rest/1/<redacted>/imbot.message.add")
}
