package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_RunsTasks(t *testing.T) {
	p := NewPool(3, 16, logging.NewNop())

	var n atomic.Int32
	for range 10 {
		require.NoError(t, p.Submit("inc", func(context.Context) error {
			n.Add(1)
			return nil
		}))
	}
	require.NoError(t, p.Shutdown(context.Background()))
	assert.EqualValues(t, 10, n.Load())

	done, failed := p.Stats()
	assert.EqualValues(t, 10, done)
	assert.Zero(t, failed)
}

func TestPool_RecoversPanicsAndCountsErrors(t *testing.T) {
	p := NewPool(1, 4, logging.NewNop())

	require.NoError(t, p.Submit("boom", func(context.Context) error { panic("boom") }))
	require.NoError(t, p.Submit("fail", func(context.Context) error { return errors.New("nope") }))
	require.NoError(t, p.Submit("ok", func(context.Context) error { return nil }))
	require.NoError(t, p.Shutdown(context.Background()))

	done, failed := p.Stats()
	assert.EqualValues(t, 1, done)
	assert.EqualValues(t, 2, failed)
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	p := NewPool(1, 1, logging.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, p.Submit("hold", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started
	require.NoError(t, p.Submit("queued", func(context.Context) error { return nil }))
	assert.ErrorIs(t, p.Submit("overflow", func(context.Context) error { return nil }), ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
	assert.ErrorIs(t, p.Submit("late", func(context.Context) error { return nil }), ErrClosed)
}

func TestPool_ShutdownDeadlineCancelsTasks(t *testing.T) {
	p := NewPool(1, 1, logging.NewNop())
	var cancelled atomic.Bool

	require.NoError(t, p.Submit("slow", func(ctx context.Context) error {
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Shutdown(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, cancelled.Load())
	require.NoError(t, p.Shutdown(context.Background()))
}
