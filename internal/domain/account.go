package domain

import "time"

// AccountStatus is the lifecycle state of a sending account.
type AccountStatus string

const (
	AccountActive AccountStatus = "active"
	AccountPaused AccountStatus = "paused"
)

// EmailAccount is a configured sending identity. The rolling rate fields
// are a cache derived from delivery_events; they are recomputed by the
// delivery service and must never be treated as an independent source
// of truth.
type EmailAccount struct {
	ID       string `json:"id" db:"id"`
	Email    string `json:"email" db:"email"`
	Provider string `json:"provider" db:"provider"`

	SMTPHost string `json:"smtp_host" db:"smtp_host"`
	SMTPPort int    `json:"smtp_port" db:"smtp_port"`
	SMTPUser string `json:"-" db:"smtp_username"`
	SMTPPass string `json:"-" db:"smtp_password"`

	Status AccountStatus `json:"status" db:"status"`
	Notes  string        `json:"notes,omitempty" db:"notes"`

	// Rolling 30-day rates, two-decimal percentages.
	OpenRate      float64 `json:"open_rate" db:"open_rate"`
	ClickRate     float64 `json:"click_rate" db:"click_rate"`
	ReplyRate     float64 `json:"reply_rate" db:"reply_rate"`
	BounceRate    float64 `json:"bounce_rate" db:"bounce_rate"`
	ComplaintRate float64 `json:"complaint_rate" db:"complaint_rate"`

	// Warmup configuration. When enabled, the effective sending limits
	// are derived from the schedule and only ever tighten the static ones.
	WarmupEnabled        bool       `json:"warmup_enabled" db:"warmup_enabled"`
	WarmupStartedAt      *time.Time `json:"warmup_started_at,omitempty" db:"warmup_started_at"`
	WarmupDailyIncrement int        `json:"warmup_daily_increment" db:"warmup_daily_increment"`
	WarmupMaxVolume      int        `json:"warmup_max_volume" db:"warmup_max_volume"`

	DailySendingLimit  int `json:"daily_sending_limit" db:"daily_sending_limit"`
	HourlySendingLimit int `json:"hourly_sending_limit" db:"hourly_sending_limit"`

	LastHealthCheck *time.Time `json:"last_health_check,omitempty" db:"last_health_check"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// WarmupDay returns the 1-based day of warmup as of the given time, or 0
// when warmup is disabled or not yet started.
func (a *EmailAccount) WarmupDay(now time.Time) int {
	if !a.WarmupEnabled || a.WarmupStartedAt == nil || now.Before(*a.WarmupStartedAt) {
		return 0
	}
	return int(now.Sub(*a.WarmupStartedAt).Hours()/24) + 1
}
