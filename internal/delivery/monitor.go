package delivery

import (
	"context"
	"time"

	"github.com/reachcraft/deliverability/internal/pkg/logger"
)

// Monitor periodically recomputes metrics for every active account so
// cached rates stay fresh even when no events arrive, and the auto-pause
// rule keeps firing for accounts that went quiet after a bad streak.
type Monitor struct {
	service      *Service
	interval     time.Duration
	initialDelay time.Duration
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewMonitor creates a monitor that ticks at the given interval.
func NewMonitor(service *Service, interval time.Duration) *Monitor {
	return &Monitor{service: service, interval: interval, initialDelay: 10 * time.Second}
}

// Start begins the monitor loop.
func (m *Monitor) Start() {
	m.ctx, m.cancel = context.WithCancel(context.Background())
	go func() {
		logger.Info("account metrics monitor started", "interval", m.interval.String())

		delay := time.NewTimer(m.initialDelay)
		select {
		case <-delay.C:
			m.tick()
		case <-m.ctx.Done():
			delay.Stop()
			logger.Info("account metrics monitor stopped")
			return
		}

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				m.tick()
			case <-m.ctx.Done():
				logger.Info("account metrics monitor stopped")
				return
			}
		}
	}()
}

// Stop halts the monitor.
func (m *Monitor) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
}

func (m *Monitor) tick() {
	ctx, cancel := context.WithTimeout(m.ctx, 2*time.Minute)
	defer cancel()

	ids, err := m.service.repo.ListActiveAccountIDs(ctx)
	if err != nil {
		logger.Error("monitor: list accounts failed", "err", err)
		return
	}

	asOf := time.Now().UTC()
	refreshed, failed := 0, 0
	for _, id := range ids {
		if _, err := m.service.UpdateAccountMetrics(ctx, id, asOf); err != nil {
			logger.Error("monitor: recompute failed", "account_id", id, "err", err)
			failed++
			continue
		}
		refreshed++
	}
	logger.Debug("monitor tick complete", "refreshed", refreshed, "failed", failed)
}
