package delivery

import (
	"context"
	"time"

	"github.com/reachcraft/deliverability/internal/domain"
)

// EventCounts holds per-type event counts for one account within a
// window.
type EventCounts struct {
	Delivered  int
	Opened     int
	Clicked    int
	Replied    int
	Bounced    int
	Complained int
}

// MetricsUpdate is the write half of a metrics recompute: the new cached
// rates and, when the pause rule fires, the status flip and its note.
type MetricsUpdate struct {
	OpenRate        float64
	ClickRate       float64
	ReplyRate       float64
	BounceRate      float64
	ComplaintRate   float64
	LastHealthCheck time.Time
	Pause           bool
	PauseNote       string
}

// Repository defines the data access contract for delivery events and
// account metrics.
type Repository interface {
	// InsertEvent appends one delivery event. Events are never updated
	// or deduplicated.
	InsertEvent(ctx context.Context, ev *domain.DeliveryEvent) error

	// AdvanceEmailStatus moves an email to the given status and stamps
	// the matching transition timestamp. Bounced emails additionally get
	// delivery_status set.
	AdvanceEmailStatus(ctx context.Context, emailID string, status domain.EmailStatus, at time.Time) error

	// GetAccount returns an account by id, or ErrAccountNotFound.
	GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error)

	// RecomputeMetricsTx runs one atomic recompute for an account: it
	// locks the account row, counts events in [windowStart, asOf], and
	// invokes apply with the counts and the current account. A nil
	// update from apply means nothing is written (the no-data case).
	// The whole sequence commits or rolls back as a unit.
	RecomputeMetricsTx(ctx context.Context, accountID string, windowStart, asOf time.Time,
		apply func(counts EventCounts, acct *domain.EmailAccount) (*MetricsUpdate, error)) error

	// ListActiveAccountIDs returns the ids of all accounts with status
	// active, for the background monitor.
	ListActiveAccountIDs(ctx context.Context) ([]string, error)
}
