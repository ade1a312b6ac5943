// Package connectivity tells whether the backend is reachable.
package connectivity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/marketkeeper/internal/client/notify"
	"github.com/dmitrijs2005/marketkeeper/internal/logging"
	"github.com/dmitrijs2005/marketkeeper/internal/netx"
	"github.com/sethvargo/go-retry"
)

// Topic carries Status changes on the bus.
const Topic = "connectivity"

// Checker answers whether the backend is currently reachable.
type Checker interface {
	Online(ctx context.Context) bool
}

// Status is published whenever reachability flips.
type Status struct {
	Online bool
	At     time.Time
}

// Static is a Checker with a fixed answer, for tests and forced offline mode.
type Static struct {
	online atomic.Bool
}

func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

func (s *Static) Set(online bool)               { s.online.Store(online) }
func (s *Static) Online(_ context.Context) bool { return s.online.Load() }

// ProbeFunc reports nil when the backend at baseURL accepts connections.
type ProbeFunc func(ctx context.Context, baseURL string) error

// Monitor probes the backend periodically and caches the answer.
type Monitor struct {
	baseURL  string
	interval time.Duration
	timeout  time.Duration
	probe    ProbeFunc
	bus      *notify.Bus[Status]
	log      logging.Logger

	known  atomic.Bool
	online atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor builds a Monitor dialing baseURL every interval. bus may be
// nil.
func NewMonitor(baseURL string, interval time.Duration, bus *notify.Bus[Status], log logging.Logger) *Monitor {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	if log == nil {
		log = logging.NewNop()
	}
	return &Monitor{
		baseURL:  baseURL,
		interval: interval,
		timeout:  time.Second,
		probe:    netx.Reachable,
		bus:      bus,
		log:      log.With("component", "connectivity"),
	}
}

// WithProbe replaces the TCP dial, for tests.
func (m *Monitor) WithProbe(p ProbeFunc) *Monitor {
	m.probe = p
	return m
}

// Online returns the last probe result. Before the first probe it probes
// synchronously.
func (m *Monitor) Online(ctx context.Context) bool {
	if m.known.Load() {
		return m.online.Load()
	}
	return m.Check(ctx)
}

// Check probes now and records the result. A probe is retried once before
// the backend counts as unreachable.
func (m *Monitor) Check(ctx context.Context) bool {
	b := retry.WithMaxRetries(1, retry.NewConstant(100*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		pctx, cancel := context.WithTimeout(ctx, m.timeout)
		defer cancel()
		if err := m.probe(pctx, m.baseURL); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})

	online := err == nil
	m.record(ctx, online, err)
	return online
}

func (m *Monitor) record(ctx context.Context, online bool, err error) {
	first := !m.known.Swap(true)
	prev := m.online.Swap(online)
	if !first && prev == online {
		return
	}
	if online {
		m.log.Info(ctx, "backend reachable")
	} else {
		m.log.Info(ctx, "backend unreachable", "error", err)
	}
	if m.bus != nil {
		m.bus.Publish(Topic, Status{Online: online, At: time.Now()})
	}
}

// Start launches the probe loop. It stops when ctx is done or Stop is
// called. Calling Start twice is a no-op.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	go func() {
		defer close(m.done)
		t := time.NewTicker(m.interval)
		defer t.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				m.Check(ctx)
			}
		}
	}()
}

// Stop ends the probe loop and waits for it.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
