package delivery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/reachcraft/deliverability/internal/domain"
	"github.com/reachcraft/deliverability/internal/pkg/logger"
)

// MetricsWindow is the trailing window over which account rates are
// derived.
const MetricsWindow = 30 * 24 * time.Hour

// PauseThresholds holds the auto-pause business rule. An account is
// paused when bounce or complaint rate breaches its threshold and the
// sample is large enough to trust. There is no automatic un-pause.
type PauseThresholds struct {
	BounceRate    float64 // percent, default 5.0
	ComplaintRate float64 // percent, default 0.1
	MinSent       int     // default 50
}

// DefaultPauseThresholds are the stock auto-pause limits.
var DefaultPauseThresholds = PauseThresholds{
	BounceRate:    5.0,
	ComplaintRate: 0.1,
	MinSent:       50,
}

// AccountMetrics is one recompute result: the raw window counts and the
// derived two-decimal percentage rates.
type AccountMetrics struct {
	AccountID     string    `json:"account_id"`
	TotalSent     int       `json:"total_sent"`
	Opened        int       `json:"opened"`
	Clicked       int       `json:"clicked"`
	Replied       int       `json:"replied"`
	Bounced       int       `json:"bounced"`
	Complained    int       `json:"complained"`
	OpenRate      float64   `json:"open_rate"`
	ClickRate     float64   `json:"click_rate"`
	ReplyRate     float64   `json:"reply_rate"`
	BounceRate    float64   `json:"bounce_rate"`
	ComplaintRate float64   `json:"complaint_rate"`
	Paused        bool      `json:"paused"`
	AsOf          time.Time `json:"as_of"`
}

// Service implements delivery event ingestion and metrics maintenance.
type Service struct {
	repo       Repository
	thresholds PauseThresholds
	weights    ScoreWeights
}

// NewService creates a delivery service with default thresholds and
// score weights.
func NewService(repo Repository) *Service {
	return &Service{
		repo:       repo,
		thresholds: DefaultPauseThresholds,
		weights:    DefaultScoreWeights,
	}
}

// NewServiceWithThresholds overrides the auto-pause thresholds.
func NewServiceWithThresholds(repo Repository, t PauseThresholds) *Service {
	s := NewService(repo)
	s.thresholds = t
	return s
}

// RecordEvent validates and appends one delivery event, advances the
// parent email's status when an email id is attached, and recomputes the
// account's cached rates. The same event recorded twice produces two
// rows; rates are recomputed over both.
func (s *Service) RecordEvent(ctx context.Context, ev *domain.DeliveryEvent) (*AccountMetrics, error) {
	if ev.AccountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidEvent)
	}
	if !domain.ValidEventType(ev.EventType) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidEvent, ev.EventType)
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}

	if ev.EmailID != "" {
		status, ok := domain.StatusForEvent(ev.EventType)
		if ok {
			if err := s.repo.AdvanceEmailStatus(ctx, ev.EmailID, status, ev.CreatedAt); err != nil {
				return nil, fmt.Errorf("advance email %s: %w", ev.EmailID, err)
			}
		}
	}

	metrics, err := s.UpdateAccountMetrics(ctx, ev.AccountID, ev.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("recompute metrics for %s: %w", ev.AccountID, err)
	}
	return metrics, nil
}

// UpdateAccountMetrics recomputes the cached rates for one account over
// the trailing 30 days ending at asOf, atomically with the conditional
// auto-pause. It returns (nil, nil) when the account has no delivered
// events in the window, so callers can distinguish "no data yet" from an
// actual failure, which is returned as a non-nil error.
func (s *Service) UpdateAccountMetrics(ctx context.Context, accountID string, asOf time.Time) (*AccountMetrics, error) {
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}
	windowStart := asOf.Add(-MetricsWindow)

	var metrics *AccountMetrics
	err := s.repo.RecomputeMetricsTx(ctx, accountID, windowStart, asOf,
		func(counts EventCounts, acct *domain.EmailAccount) (*MetricsUpdate, error) {
			if counts.Delivered == 0 {
				return nil, nil
			}

			total := counts.Delivered
			m := &AccountMetrics{
				AccountID:     accountID,
				TotalSent:     total,
				Opened:        counts.Opened,
				Clicked:       counts.Clicked,
				Replied:       counts.Replied,
				Bounced:       counts.Bounced,
				Complained:    counts.Complained,
				OpenRate:      percentRate(counts.Opened, total),
				ClickRate:     percentRate(counts.Clicked, total),
				ReplyRate:     percentRate(counts.Replied, total),
				BounceRate:    percentRate(counts.Bounced, total),
				ComplaintRate: percentRate(counts.Complained, total),
				AsOf:          asOf,
			}

			update := &MetricsUpdate{
				OpenRate:        m.OpenRate,
				ClickRate:       m.ClickRate,
				ReplyRate:       m.ReplyRate,
				BounceRate:      m.BounceRate,
				ComplaintRate:   m.ComplaintRate,
				LastHealthCheck: asOf,
			}

			breach := m.BounceRate > s.thresholds.BounceRate || m.ComplaintRate > s.thresholds.ComplaintRate
			if breach && total > s.thresholds.MinSent && acct.Status == domain.AccountActive {
				update.Pause = true
				update.PauseNote = fmt.Sprintf("[%s] auto-paused: bounce rate %.2f%%, complaint rate %.2f%% over %d sends",
					asOf.Format(time.RFC3339), m.BounceRate, m.ComplaintRate, total)
				m.Paused = true
				logger.Warn("account auto-paused",
					"account_id", accountID,
					"bounce_rate", fmt.Sprintf("%.2f", m.BounceRate),
					"complaint_rate", fmt.Sprintf("%.2f", m.ComplaintRate),
					"total_sent", total)
			} else if acct.Status == domain.AccountPaused {
				// Already paused accounts keep their rates fresh but the
				// status never flips back here.
				m.Paused = true
			}

			metrics = m
			return update, nil
		})
	if err != nil {
		return nil, err
	}
	return metrics, nil
}

// GetAccountHealth returns the current account row together with its
// health score and band.
func (s *Service) GetAccountHealth(ctx context.Context, accountID string) (*AccountHealth, error) {
	acct, err := s.repo.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	score := HealthScoreWith(acct, s.weights)
	return &AccountHealth{
		AccountID:     acct.ID,
		Email:         acct.Email,
		Status:        acct.Status,
		OpenRate:      acct.OpenRate,
		ClickRate:     acct.ClickRate,
		ReplyRate:     acct.ReplyRate,
		BounceRate:    acct.BounceRate,
		ComplaintRate: acct.ComplaintRate,
		HealthScore:   score,
		HealthBand:    HealthBand(score),
		LastChecked:   acct.LastHealthCheck,
	}, nil
}

// AccountHealth is the API-facing health summary for one account.
type AccountHealth struct {
	AccountID     string               `json:"account_id"`
	Email         string               `json:"email"`
	Status        domain.AccountStatus `json:"status"`
	OpenRate      float64              `json:"open_rate"`
	ClickRate     float64              `json:"click_rate"`
	ReplyRate     float64              `json:"reply_rate"`
	BounceRate    float64              `json:"bounce_rate"`
	ComplaintRate float64              `json:"complaint_rate"`
	HealthScore   float64              `json:"health_score"`
	HealthBand    string               `json:"health_band"`
	LastChecked   *time.Time           `json:"last_checked,omitempty"`
}

// percentRate converts a count into a two-decimal percentage of total:
// round(count/total × 10000) / 100.
func percentRate(count, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(count)/float64(total)*10000) / 100
}
