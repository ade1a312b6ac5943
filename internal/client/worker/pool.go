// Package worker runs fire-and-forget tasks, such as background cache
// refreshes, on a fixed set of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/dmitrijs2005/marketkeeper/internal/logging"
)

// ErrClosed is returned by Submit after Shutdown.
var ErrClosed = errors.New("worker pool closed")

// ErrQueueFull is returned by Submit when the queue has no room.
var ErrQueueFull = errors.New("worker queue full")

// Task is a unit of background work. Its ctx is cancelled on Shutdown
// once the drain deadline passes.
type Task func(ctx context.Context) error

type job struct {
	name string
	fn   Task
}

// Pool is a bounded set of workers with a bounded queue.
type Pool struct {
	log   logging.Logger
	queue chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	done   atomic.Int64
	failed atomic.Int64
}

// NewPool starts n workers sharing a queue of size queue.
func NewPool(n, queue int, log logging.Logger) *Pool {
	if n <= 0 {
		n = 1
	}
	if queue <= 0 {
		queue = 64
	}
	if log == nil {
		log = logging.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		log:    log.With("component", "worker"),
		queue:  make(chan job, queue),
		ctx:    ctx,
		cancel: cancel,
	}

	p.wg.Add(n)
	for range n {
		go func() {
			defer p.wg.Done()
			for j := range p.queue {
				p.run(j)
			}
		}()
	}
	return p
}

func (p *Pool) run(j job) {
	defer func() {
		if r := recover(); r != nil {
			p.failed.Add(1)
			p.log.Error(p.ctx, "task panicked", "task", j.name, "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
		}
	}()

	if err := j.fn(p.ctx); err != nil {
		p.failed.Add(1)
		p.log.Warn(p.ctx, "task failed", "task", j.name, "error", err)
		return
	}
	p.done.Add(1)
}

// Submit queues fn without blocking.
func (p *Pool) Submit(name string, fn Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- job{name: name, fn: fn}:
		return nil
	default:
		p.log.Warn(p.ctx, "task dropped, queue full", "task", name)
		return ErrQueueFull
	}
}

// Stats returns how many tasks finished cleanly and how many failed.
func (p *Pool) Stats() (done, failed int64) {
	return p.done.Load(), p.failed.Load()
}

// Shutdown stops accepting tasks and waits for queued ones. When ctx ends
// first, running tasks see their context cancelled and ctx.Err() is
// returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-drained
		return ctx.Err()
	}
}
