// Package monitor tracks backend reachability and model readiness.
// It is the single writer of the tri-state connection status; everyone
// else observes through Snapshot or Subscribe.
package monitor

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/gstredny/flux-image-generator/internal/flux"
)

// Status is the process-wide connection state.
type Status int

const (
	StatusChecking Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusChecking:
		return "checking"
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Snapshot is the result of the most recent check cycle. Notice carries
// a human-readable supplement ("model is loading...") when the backend
// is reachable but not yet able to generate.
type Snapshot struct {
	Status      Status
	ModelLoaded bool
	Notice      string
	CheckedAt   time.Time
}

const defaultCheckInterval = 30 * time.Second

// Monitor polls the health and status endpoints on a timer and
// broadcasts transitions. One check cycle is one health call plus one
// status call; retries within a call belong to the transport.
type Monitor struct {
	api      flux.API
	interval time.Duration

	mu   sync.Mutex
	snap Snapshot
	subs []func(Snapshot)

	kick chan struct{}
}

// New builds a Monitor in the checking state. interval <= 0 uses the
// default 30-second period.
func New(api flux.API, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = defaultCheckInterval
	}
	return &Monitor{
		api:      api,
		interval: interval,
		snap:     Snapshot{Status: StatusChecking},
		kick:     make(chan struct{}, 1),
	}
}

// Snapshot returns the latest check result.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// Connected reports whether the backend was reachable at the last check.
func (m *Monitor) Connected() bool {
	return m.Snapshot().Status == StatusConnected
}

// Subscribe registers fn to receive every published snapshot. Callbacks
// run on the monitor's goroutine and should return quickly.
func (m *Monitor) Subscribe(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// ForceCheck requests an immediate check cycle, ahead of the next timer
// tick. The settings surface calls this after the endpoint changes.
func (m *Monitor) ForceCheck() {
	select {
	case m.kick <- struct{}{}:
	default: // a check is already pending
	}
}

// Start launches the check loop and returns immediately. The loop stops
// when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.check(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.kick:
				m.check(ctx)
			case <-ticker.C:
				m.check(ctx)
			}
		}
	}()
}

// check runs one cycle and publishes the outcome. Probe failures are
// swallowed into the disconnected state, never surfaced as errors.
func (m *Monitor) check(ctx context.Context) {
	health, err := m.api.Health(ctx)
	if err != nil {
		log.Printf("[monitor] health probe failed: %v", err)
		m.publish(Snapshot{Status: StatusDisconnected, Notice: flux.UserMessage(err), CheckedAt: time.Now()})
		return
	}
	if !health.Healthy() {
		m.publish(Snapshot{Status: StatusDisconnected, Notice: "backend reports " + health.Status, CheckedAt: time.Now()})
		return
	}

	snap := Snapshot{Status: StatusConnected, CheckedAt: time.Now()}
	status, err := m.api.Status(ctx)
	switch {
	case err != nil:
		// Reachable but the status endpoint is unhappy; stay connected.
		log.Printf("[monitor] status probe failed: %v", err)
	case status.ModelLoaded:
		snap.ModelLoaded = true
	default:
		snap.Notice = status.Message
		if snap.Notice == "" {
			snap.Notice = "model is still loading"
		}
	}
	m.publish(snap)
}

func (m *Monitor) publish(snap Snapshot) {
	m.mu.Lock()
	prev := m.snap.Status
	m.snap = snap
	subs := make([]func(Snapshot), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if prev != snap.Status {
		log.Printf("[monitor] %s -> %s", prev, snap.Status)
	}
	for _, fn := range subs {
		fn(snap)
	}
}
