package operator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"theiacloud/pkg/logging"
)

// IdleMonitor remembers when each watch last delivered an event. A watch
// that stays silent for longer than maxIdle is assumed to be broken.
type IdleMonitor struct {
	mu       sync.Mutex
	last     map[string]time.Time
	maxIdle  time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewIdleMonitor creates a monitor checking every interval. A nil now uses time.Now.
func NewIdleMonitor(maxIdle, interval time.Duration, now func() time.Time) *IdleMonitor {
	if now == nil {
		now = time.Now
	}
	return &IdleMonitor{
		last:     make(map[string]time.Time),
		maxIdle:  maxIdle,
		interval: interval,
		now:      now,
	}
}

// Touch records that the watch for kind delivered an event.
func (m *IdleMonitor) Touch(kind string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.last[kind] = m.now()
}

// LastEvent returns when the watch for kind last delivered an event.
func (m *IdleMonitor) LastEvent(kind string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.last[kind]
	return t, ok
}

// Check returns a *FatalError naming the first watch idle for longer than
// the maximum. Watches that never delivered an event are not tracked yet.
func (m *IdleMonitor) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.maxIdle <= 0 {
		return nil
	}

	kinds := make([]string, 0, len(m.last))
	for kind := range m.last {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	now := m.now()
	for _, kind := range kinds {
		idle := now.Sub(m.last[kind])
		logging.Debug("IdleMonitor", "%s watch idle for %s", kind, idle.Truncate(time.Second))
		if idle > m.maxIdle {
			return fatalf(nil, "%s watch delivered no event for %s (max %s)", kind, idle.Truncate(time.Second), m.maxIdle)
		}
	}
	return nil
}

// Run checks every interval until ctx is cancelled or a watch is found idle.
func (m *IdleMonitor) Run(ctx context.Context) error {
	if m.maxIdle <= 0 || m.interval <= 0 {
		logging.Info("IdleMonitor", "Idle watch detection disabled")
		<-ctx.Done()
		return nil
	}
	logging.Info("IdleMonitor", "Checking watches every %s, max idle time %s", m.interval, m.maxIdle)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := m.Check(); err != nil {
				logging.Error("IdleMonitor", err, "Watch seems to be disconnected, stopping so another replica can take over")
				return err
			}
		}
	}
}

// Healthy adapts Check for the health endpoint.
func (m *IdleMonitor) Healthy() error {
	if err := m.Check(); err != nil {
		return fmt.Errorf("unhealthy: %w", err)
	}
	return nil
}
