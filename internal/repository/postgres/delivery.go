package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/reachcraft/deliverability/internal/delivery"
	"github.com/reachcraft/deliverability/internal/domain"
)

// DeliveryRepo implements delivery.Repository and the sendlimit read
// side against PostgreSQL.
type DeliveryRepo struct{ db *sql.DB }

// NewDeliveryRepo creates a Postgres-backed delivery repository.
func NewDeliveryRepo(db *sql.DB) *DeliveryRepo { return &DeliveryRepo{db: db} }

func (r *DeliveryRepo) InsertEvent(ctx context.Context, ev *domain.DeliveryEvent) error {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO delivery_events (id, account_id, email_id, event_type, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5)
	`, ev.ID, ev.AccountID, ev.EmailID, ev.EventType, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert delivery event: %w", err)
	}
	return nil
}

// statusColumn maps an email status to the timestamp column its
// transition stamps.
var statusColumn = map[domain.EmailStatus]string{
	domain.EmailSent:       "sent_at",
	domain.EmailOpened:     "opened_at",
	domain.EmailClicked:    "clicked_at",
	domain.EmailReplied:    "replied_at",
	domain.EmailBounced:    "bounced_at",
	domain.EmailComplained: "complained_at",
}

func (r *DeliveryRepo) AdvanceEmailStatus(ctx context.Context, emailID string, status domain.EmailStatus, at time.Time) error {
	col, ok := statusColumn[status]
	if !ok {
		return fmt.Errorf("no timestamp column for email status %q", status)
	}

	query := fmt.Sprintf(`UPDATE emails SET status = $1, %s = $2 WHERE id = $3`, col)
	if status == domain.EmailBounced {
		query = fmt.Sprintf(`UPDATE emails SET status = $1, %s = $2, delivery_status = 'bounced' WHERE id = $3`, col)
	}
	if _, err := r.db.ExecContext(ctx, query, status, at, emailID); err != nil {
		return fmt.Errorf("advance email status: %w", err)
	}
	return nil
}

const accountColumns = `
	id, email, provider, smtp_host, smtp_port, smtp_username, smtp_password,
	status, COALESCE(notes, ''),
	open_rate, click_rate, reply_rate, bounce_rate, complaint_rate,
	warmup_enabled, warmup_started_at, warmup_daily_increment, warmup_max_volume,
	daily_sending_limit, hourly_sending_limit,
	last_health_check, created_at, updated_at`

func scanAccount(row *sql.Row) (*domain.EmailAccount, error) {
	var a domain.EmailAccount
	err := row.Scan(
		&a.ID, &a.Email, &a.Provider, &a.SMTPHost, &a.SMTPPort, &a.SMTPUser, &a.SMTPPass,
		&a.Status, &a.Notes,
		&a.OpenRate, &a.ClickRate, &a.ReplyRate, &a.BounceRate, &a.ComplaintRate,
		&a.WarmupEnabled, &a.WarmupStartedAt, &a.WarmupDailyIncrement, &a.WarmupMaxVolume,
		&a.DailySendingLimit, &a.HourlySendingLimit,
		&a.LastHealthCheck, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, delivery.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", err)
	}
	return &a, nil
}

func (r *DeliveryRepo) GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error) {
	return scanAccount(r.db.QueryRowContext(ctx,
		`SELECT`+accountColumns+` FROM email_accounts WHERE id = $1`, id))
}

// RecomputeMetricsTx locks the account row, counts events in the
// window, and applies the caller's update inside one transaction. The
// row lock serializes concurrent recomputes for the same account so a
// stale read can never overwrite a fresher write.
func (r *DeliveryRepo) RecomputeMetricsTx(ctx context.Context, accountID string, windowStart, asOf time.Time,
	apply func(delivery.EventCounts, *domain.EmailAccount) (*delivery.MetricsUpdate, error)) error {

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer tx.Rollback()

	var a domain.EmailAccount
	err = tx.QueryRowContext(ctx,
		`SELECT`+accountColumns+` FROM email_accounts WHERE id = $1 FOR UPDATE`, accountID,
	).Scan(
		&a.ID, &a.Email, &a.Provider, &a.SMTPHost, &a.SMTPPort, &a.SMTPUser, &a.SMTPPass,
		&a.Status, &a.Notes,
		&a.OpenRate, &a.ClickRate, &a.ReplyRate, &a.BounceRate, &a.ComplaintRate,
		&a.WarmupEnabled, &a.WarmupStartedAt, &a.WarmupDailyIncrement, &a.WarmupMaxVolume,
		&a.DailySendingLimit, &a.HourlySendingLimit,
		&a.LastHealthCheck, &a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return delivery.ErrAccountNotFound
	}
	if err != nil {
		return fmt.Errorf("lock account: %w", err)
	}

	var counts delivery.EventCounts
	err = tx.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE event_type = 'delivered'),
			COUNT(*) FILTER (WHERE event_type = 'opened'),
			COUNT(*) FILTER (WHERE event_type = 'clicked'),
			COUNT(*) FILTER (WHERE event_type = 'replied'),
			COUNT(*) FILTER (WHERE event_type = 'bounce'),
			COUNT(*) FILTER (WHERE event_type = 'complaint')
		FROM delivery_events
		WHERE account_id = $1 AND created_at >= $2 AND created_at <= $3
	`, accountID, windowStart, asOf).Scan(
		&counts.Delivered, &counts.Opened, &counts.Clicked,
		&counts.Replied, &counts.Bounced, &counts.Complained,
	)
	if err != nil {
		return fmt.Errorf("count events: %w", err)
	}

	update, err := apply(counts, &a)
	if err != nil {
		return err
	}
	if update == nil {
		return tx.Commit()
	}

	if update.Pause {
		_, err = tx.ExecContext(ctx, `
			UPDATE email_accounts SET
				open_rate = $2, click_rate = $3, reply_rate = $4,
				bounce_rate = $5, complaint_rate = $6,
				last_health_check = $7,
				status = 'paused',
				notes = TRIM(BOTH E'\n' FROM COALESCE(notes, '') || E'\n' || $8),
				updated_at = NOW()
			WHERE id = $1
		`, accountID, update.OpenRate, update.ClickRate, update.ReplyRate,
			update.BounceRate, update.ComplaintRate, update.LastHealthCheck, update.PauseNote)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE email_accounts SET
				open_rate = $2, click_rate = $3, reply_rate = $4,
				bounce_rate = $5, complaint_rate = $6,
				last_health_check = $7,
				updated_at = NOW()
			WHERE id = $1
		`, accountID, update.OpenRate, update.ClickRate, update.ReplyRate,
			update.BounceRate, update.ComplaintRate, update.LastHealthCheck)
	}
	if err != nil {
		return fmt.Errorf("write account metrics: %w", err)
	}
	return tx.Commit()
}

func (r *DeliveryRepo) ListActiveAccountIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM email_accounts WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active accounts: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountDelivered returns delivered events for the account in
// (since, until], for the sending-limit calculator.
func (r *DeliveryRepo) CountDelivered(ctx context.Context, accountID string, since, until time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM delivery_events
		WHERE account_id = $1 AND event_type = 'delivered'
		  AND created_at > $2 AND created_at <= $3
	`, accountID, since, until).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count delivered: %w", err)
	}
	return n, nil
}

// NthRecentDeliveredAt returns the timestamp of the nth most recent
// delivered event at or before until, or nil when there are fewer
// than n.
func (r *DeliveryRepo) NthRecentDeliveredAt(ctx context.Context, accountID string, n int, until time.Time) (*time.Time, error) {
	if n < 1 {
		return nil, nil
	}
	var at time.Time
	err := r.db.QueryRowContext(ctx, `
		SELECT created_at FROM delivery_events
		WHERE account_id = $1 AND event_type = 'delivered' AND created_at <= $2
		ORDER BY created_at DESC
		OFFSET $3 LIMIT 1
	`, accountID, until, n-1).Scan(&at)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("nth delivered at: %w", err)
	}
	return &at, nil
}
