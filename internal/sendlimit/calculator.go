package sendlimit

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/reachcraft/deliverability/internal/domain"
)

// Store is the read side the calculator needs: delivered-event counts
// and timestamps for one account.
type Store interface {
	// CountDelivered returns the number of delivered events for the
	// account in (since, until].
	CountDelivered(ctx context.Context, accountID string, since, until time.Time) (int, error)

	// NthRecentDeliveredAt returns the timestamp of the nth most recent
	// delivered event at or before until (n is 1-based), or nil when the
	// account has fewer than n delivered events.
	NthRecentDeliveredAt(ctx context.Context, accountID string, n int, until time.Time) (*time.Time, error)
}

// Limits is the effective sending allowance for an account at a point
// in time.
type Limits struct {
	AccountID   string `json:"account_id"`
	DailyLimit  int    `json:"daily_limit"`
	HourlyLimit int    `json:"hourly_limit"`
	DailySent   int    `json:"daily_sent"`
	HourlySent  int    `json:"hourly_sent"`
	CanSend     bool   `json:"can_send"`

	// NextAvailableAt and EstimatedWaitMinutes are set when CanSend is
	// false because a window is exhausted. Both are best-effort
	// estimates, not reservations.
	NextAvailableAt      *time.Time `json:"next_available_at,omitempty"`
	EstimatedWaitMinutes *int       `json:"estimated_wait_minutes,omitempty"`

	WarmupActive bool `json:"warmup_active"`
	WarmupDay    int  `json:"warmup_day,omitempty"`

	AsOf time.Time `json:"as_of"`
}

// Calculator derives effective sending limits, applying the warmup
// schedule when one is active.
type Calculator struct {
	store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// EffectiveDailyLimit returns the account's daily allowance at now.
// During warmup the allowance ramps by the daily increment, capped at
// the warmup max volume, and never exceeds the configured static limit.
func EffectiveDailyLimit(acct *domain.EmailAccount, now time.Time) (limit int, warmupDay int) {
	limit = acct.DailySendingLimit

	day := acct.WarmupDay(now)
	if day == 0 {
		return limit, 0
	}

	ramp := day * acct.WarmupDailyIncrement
	if acct.WarmupMaxVolume > 0 && ramp > acct.WarmupMaxVolume {
		ramp = acct.WarmupMaxVolume
	}
	if limit == 0 || ramp < limit {
		limit = ramp
	}
	return limit, day
}

// HourlyFromDaily spreads a daily allowance across a working day of
// eight hours, rounding up so a small daily limit still permits at
// least one send per hour.
func HourlyFromDaily(daily int) int {
	if daily <= 0 {
		return 0
	}
	return int(math.Ceil(float64(daily) / 8))
}

// GetSendingLimits computes the account's current allowance and usage.
// Usage is counted from delivered events: the daily window starts at
// UTC midnight, the hourly window is the trailing 60 minutes.
func (c *Calculator) GetSendingLimits(ctx context.Context, acct *domain.EmailAccount, now time.Time) (*Limits, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	now = now.UTC()

	daily, warmupDay := EffectiveDailyLimit(acct, now)
	hourly := HourlyFromDaily(daily)
	if acct.HourlySendingLimit > 0 && acct.HourlySendingLimit < hourly {
		hourly = acct.HourlySendingLimit
	}

	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	dailySent, err := c.store.CountDelivered(ctx, acct.ID, midnight, now)
	if err != nil {
		return nil, fmt.Errorf("count daily sends: %w", err)
	}
	hourlySent, err := c.store.CountDelivered(ctx, acct.ID, now.Add(-time.Hour), now)
	if err != nil {
		return nil, fmt.Errorf("count hourly sends: %w", err)
	}

	l := &Limits{
		AccountID:    acct.ID,
		DailyLimit:   daily,
		HourlyLimit:  hourly,
		DailySent:    dailySent,
		HourlySent:   hourlySent,
		WarmupActive: warmupDay > 0,
		WarmupDay:    warmupDay,
		AsOf:         now,
	}

	dailyOK := daily == 0 || dailySent < daily
	hourlyOK := hourly == 0 || hourlySent < hourly
	l.CanSend = acct.Status == domain.AccountActive && dailyOK && hourlyOK

	if acct.Status != domain.AccountActive || l.CanSend {
		return l, nil
	}

	if !dailyOK {
		l.setNextAvailable(midnight.Add(24*time.Hour), now)
		return l, nil
	}

	// Hourly window exhausted: a slot frees up one hour after the send
	// that currently anchors the window.
	at, err := c.store.NthRecentDeliveredAt(ctx, acct.ID, hourly, now)
	if err != nil {
		return nil, fmt.Errorf("find next available slot: %w", err)
	}
	if at != nil {
		l.setNextAvailable(at.Add(time.Hour), now)
	}
	return l, nil
}

func (l *Limits) setNextAvailable(next, now time.Time) {
	l.NextAvailableAt = &next
	minutes := int(math.Ceil(next.Sub(now).Minutes()))
	if minutes < 0 {
		minutes = 0
	}
	l.EstimatedWaitMinutes = &minutes
}
