// Package monitor decides when the billing processor's due sweep actually
// runs: on start, on foreground resume, on a repeating in-app timer, and
// via the background executor, all behind one minimum-interval throttle.
package monitor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"tally/internal/clock"
	"tally/internal/services"
)

// Sweeper runs one due sweep.
type Sweeper interface {
	RunDueSweep(ctx context.Context, asOf time.Time) (services.SweepResult, error)
}

// Monitor throttles sweep triggers to at most one per interval. The clock
// is injected so throttle behavior is testable without waiting.
type Monitor struct {
	sweeper  Sweeper
	clk      clock.Clock
	throttle time.Duration
	tick     time.Duration

	mu        sync.Mutex
	lastCheck time.Time
}

func New(sweeper Sweeper, clk clock.Clock, throttle, tick time.Duration) *Monitor {
	if clk == nil {
		clk = clock.System{}
	}
	if throttle <= 0 {
		throttle = 30 * time.Minute
	}
	if tick <= 0 {
		tick = time.Hour
	}
	return &Monitor{
		sweeper:  sweeper,
		clk:      clk,
		throttle: throttle,
		tick:     tick,
	}
}

// MaybeCheck runs a due sweep unless one ran within the throttle interval.
// Reports whether a sweep ran.
func (m *Monitor) MaybeCheck(ctx context.Context) (services.SweepResult, bool) {
	now := m.clk.Now()

	m.mu.Lock()
	if !m.lastCheck.IsZero() && now.Sub(m.lastCheck) < m.throttle {
		m.mu.Unlock()
		slog.DebugContext(ctx, "Sweep throttled",
			"last_check", m.lastCheck,
			"throttle", m.throttle)
		return services.SweepResult{}, false
	}
	m.lastCheck = now
	m.mu.Unlock()

	result, err := m.sweeper.RunDueSweep(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "Due sweep failed", "as_of", now, "error", err)
		return services.SweepResult{}, true
	}
	return result, true
}

// Resume is the app-lifecycle hook for background-to-active transitions.
func (m *Monitor) Resume(ctx context.Context) {
	m.MaybeCheck(ctx)
}

// Run checks once immediately, then on every tick until ctx ends. The
// throttle still applies inside each check.
func (m *Monitor) Run(ctx context.Context) error {
	m.MaybeCheck(ctx)

	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.MaybeCheck(ctx)
		}
	}
}
