package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/sonicshare/sonicshare/internal/session"
)

// Monitor reaps sessions with no activity past the idle timeout. It runs
// independently of per-connection traffic; per-connection keepalive lives in
// the transport shell.
type Monitor struct {
	reg      *session.Registry
	interval time.Duration
	idle     time.Duration
	log      *slog.Logger
}

// NewMonitor creates a monitor that sweeps reg every interval, deleting
// sessions idle longer than idle.
func NewMonitor(reg *session.Registry, interval, idle time.Duration, log *slog.Logger) *Monitor {
	return &Monitor{reg: reg, interval: interval, idle: idle, log: log}
}

// Run sweeps until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := m.reg.Sweep(now, m.idle); n > 0 {
				m.log.Info("idle sessions reaped", "count", n, "remaining", m.reg.Count())
			}
		}
	}
}
