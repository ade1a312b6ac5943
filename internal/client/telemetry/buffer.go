// Package telemetry queues analytics events on disk and delivers them in
// batches. Delivery is at-least-once: an event leaves the queue only after
// the backend accepted the batch that carried it.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/models"
	"github.com/dmitrijs2005/marketkeeper/internal/client/repositories/events"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/google/uuid"
)

// Sender delivers one batch. Any error means none of it was accepted.
type Sender interface {
	SendEvents(ctx context.Context, batch []models.EventPayload) error
}

type Options struct {
	// FlushThreshold pending events trigger a flush, 20.
	FlushThreshold int
	// MaxBatch bounds one request, 50.
	MaxBatch int
	// FlushInterval is the timer period, 30s.
	FlushInterval time.Duration
	// RetentionCap is the most undelivered events kept; older ones are
	// dropped, 5000.
	RetentionCap int
}

func (o *Options) defaults() {
	if o.FlushThreshold <= 0 {
		o.FlushThreshold = 20
	}
	if o.MaxBatch <= 0 {
		o.MaxBatch = 50
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = 30 * time.Second
	}
	if o.RetentionCap <= 0 {
		o.RetentionCap = 5000
	}
}

// Event is what callers track.
type Event struct {
	Type       string
	Properties map[string]any
	// SessionID defaults to the buffer's session.
	SessionID string
	// UserID defaults to the user set with SetUser.
	UserID string
}

// FlushReport describes one Flush call.
type FlushReport struct {
	// Skipped is set when another flush was already running.
	Skipped   bool
	Sent      int
	Batches   int
	Remaining int
}

// Buffer is the telemetry queue.
type Buffer struct {
	repo   events.Repository
	sender Sender
	opts   Options
	log    logging.Logger
	now    func() time.Time

	sessionID string
	mu        sync.RWMutex
	userID    string

	flushing atomic.Bool
	kick     chan struct{}
	// failing is set by a failed flush and cleared by a successful one.
	// While set, threshold requests wait for the next timer tick.
	failing atomic.Bool

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewBuffer(repo events.Repository, sender Sender, opts Options, log logging.Logger) *Buffer {
	opts.defaults()
	if log == nil {
		log = logging.NewNop()
	}
	return &Buffer{
		repo:      repo,
		sender:    sender,
		opts:      opts,
		log:       log.With("component", "telemetry"),
		now:       time.Now,
		sessionID: uuid.NewString(),
		kick:      make(chan struct{}, 1),
	}
}

// SessionID identifies this run of the client.
func (b *Buffer) SessionID() string { return b.sessionID }

// SetUser attributes later events to id. Empty clears it.
func (b *Buffer) SetUser(id string) {
	b.mu.Lock()
	b.userID = id
	b.mu.Unlock()
}

func (b *Buffer) user() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.userID
}

// Enqueue persists e and, once FlushThreshold events are pending, asks the
// running loop for a flush.
func (b *Buffer) Enqueue(ctx context.Context, e Event) (int64, error) {
	if e.Type == "" {
		return 0, errors.New("telemetry event without type")
	}
	ev := &models.TelemetryEvent{
		EventType:  e.Type,
		SessionID:  e.SessionID,
		UserID:     e.UserID,
		Properties: e.Properties,
		EnqueuedAt: b.now().UTC(),
	}
	if ev.SessionID == "" {
		ev.SessionID = b.sessionID
	}
	if ev.UserID == "" {
		ev.UserID = b.user()
	}

	id, err := b.repo.Insert(ctx, ev)
	if err != nil {
		return 0, fmt.Errorf("queue %s event: %w", e.Type, err)
	}

	dropped, err := b.repo.TrimOldest(ctx, b.opts.RetentionCap)
	if err != nil {
		b.log.Warn(ctx, "retention trim failed", "error", err)
	} else if dropped > 0 {
		b.log.Warn(ctx, "telemetry queue full, dropped oldest events", "dropped", dropped)
	}

	n, err := b.repo.Count(ctx)
	if err != nil {
		b.log.Warn(ctx, "count pending events", "error", err)
		return id, nil
	}
	if n >= b.opts.FlushThreshold {
		b.requestFlush()
	}
	return id, nil
}

func (b *Buffer) requestFlush() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of undelivered events.
func (b *Buffer) Pending(ctx context.Context) (int, error) {
	return b.repo.Count(ctx)
}

// Flush sends every pending event in batches of MaxBatch, oldest first.
// A delivered batch is removed at once; the first failed batch ends the
// flush and leaves it and everything after it queued. When a flush is
// already running the call returns immediately with Skipped set.
func (b *Buffer) Flush(ctx context.Context) (FlushReport, error) {
	if !b.flushing.CompareAndSwap(false, true) {
		return FlushReport{Skipped: true}, nil
	}
	defer b.flushing.Store(false)

	var rep FlushReport
	// delivered rows left behind by an interrupted acknowledgement
	if _, err := b.repo.PurgeDelivered(ctx); err != nil {
		b.log.Warn(ctx, "purge delivered events", "error", err)
	}

	pending, err := b.repo.Pending(ctx, 0)
	if err != nil {
		return rep, err
	}

	for start := 0; start < len(pending); start += b.opts.MaxBatch {
		end := min(start+b.opts.MaxBatch, len(pending))
		batch := pending[start:end]

		payload := make([]models.EventPayload, len(batch))
		ids := make([]int64, len(batch))
		for i, e := range batch {
			payload[i] = e.Payload()
			ids[i] = e.LocalID
		}

		if err := b.sender.SendEvents(ctx, payload); err != nil {
			b.failing.Store(true)
			rep.Remaining = len(pending) - start
			b.log.Warn(ctx, "telemetry batch rejected, keeping it queued", "batch", rep.Batches+1, "size", len(batch), "error", err)
			return rep, fmt.Errorf("send telemetry batch: %w", err)
		}
		if err := b.repo.Acknowledge(ctx, ids); err != nil {
			rep.Remaining = len(pending) - start
			return rep, fmt.Errorf("acknowledge telemetry batch: %w", err)
		}
		rep.Sent += len(batch)
		rep.Batches++
	}
	b.failing.Store(false)

	if rep.Sent > 0 {
		b.log.Debug(ctx, "telemetry flushed", "sent", rep.Sent, "batches", rep.Batches)
	}
	return rep, nil
}

// Start runs the flush loop: one flush per FlushInterval and one per
// threshold request from Enqueue. After a failed flush, threshold requests
// are ignored until a flush succeeds, so a backend outage costs one attempt
// per tick. Calling Start twice is a no-op.
func (b *Buffer) Start(ctx context.Context) {
	b.loopMu.Lock()
	defer b.loopMu.Unlock()
	if b.cancel != nil {
		return
	}
	ctx, b.cancel = context.WithCancel(ctx)
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		t := time.NewTicker(b.opts.FlushInterval)
		defer t.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				b.flushInBackground(ctx, "timer")
			case <-b.kick:
				if b.failing.Load() {
					b.log.Debug(ctx, "last flush failed, threshold flush deferred to timer")
					continue
				}
				b.flushInBackground(ctx, "threshold")
			}
		}
	}()
}

func (b *Buffer) flushInBackground(ctx context.Context, trigger string) {
	if _, err := b.Flush(ctx); err != nil && ctx.Err() == nil {
		b.log.Warn(ctx, "background flush failed", "trigger", trigger, "error", err)
	}
}

// Shutdown stops the loop and makes a last flush attempt bounded by ctx.
// Undelivered events stay queued for the next run.
func (b *Buffer) Shutdown(ctx context.Context) error {
	b.loopMu.Lock()
	cancel, done := b.cancel, b.done
	b.cancel = nil
	b.loopMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}

	if _, err := b.Flush(ctx); err != nil {
		b.log.Info(ctx, "final flush incomplete, events kept", "error", err)
		return err
	}
	return nil
}
