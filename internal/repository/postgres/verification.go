package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/reachcraft/deliverability/internal/dnscheck"
	"github.com/reachcraft/deliverability/internal/domain"
)

// VerificationRepo implements dnscheck.Repository against PostgreSQL.
type VerificationRepo struct{ db *sql.DB }

// NewVerificationRepo creates a Postgres-backed verification repository.
func NewVerificationRepo(db *sql.DB) *VerificationRepo { return &VerificationRepo{db: db} }

func (r *VerificationRepo) Get(ctx context.Context, dom string) (*domain.DomainVerification, error) {
	var v domain.DomainVerification
	err := r.db.QueryRowContext(ctx, `
		SELECT domain, COALESCE(dkim_selector, ''),
			spf_status, COALESCE(spf_record, ''), COALESCE(spf_recommended, ''),
			dkim_status, COALESCE(dkim_record, ''), COALESCE(dkim_recommended, ''),
			dmarc_status, COALESCE(dmarc_record, ''), COALESCE(dmarc_recommended, ''),
			blacklisted, blacklists, errors, last_checked
		FROM domain_verifications
		WHERE domain = $1
	`, dom).Scan(
		&v.Domain, &v.DKIMSelector,
		&v.SPF.Status, &v.SPF.Record, &v.SPF.Recommended,
		&v.DKIM.Status, &v.DKIM.Record, &v.DKIM.Recommended,
		&v.DMARC.Status, &v.DMARC.Record, &v.DMARC.Recommended,
		&v.Blacklisted, pq.Array(&v.Blacklists), pq.Array(&v.Errors), &v.LastChecked,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dnscheck.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get domain verification: %w", err)
	}
	return &v, nil
}

func (r *VerificationRepo) Upsert(ctx context.Context, v *domain.DomainVerification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO domain_verifications (
			domain, dkim_selector,
			spf_status, spf_record, spf_recommended,
			dkim_status, dkim_record, dkim_recommended,
			dmarc_status, dmarc_record, dmarc_recommended,
			blacklisted, blacklists, errors, last_checked
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (domain) DO UPDATE SET
			dkim_selector = $2,
			spf_status = $3, spf_record = $4, spf_recommended = $5,
			dkim_status = $6, dkim_record = $7, dkim_recommended = $8,
			dmarc_status = $9, dmarc_record = $10, dmarc_recommended = $11,
			blacklisted = $12, blacklists = $13, errors = $14,
			last_checked = $15
	`, v.Domain, v.DKIMSelector,
		v.SPF.Status, v.SPF.Record, v.SPF.Recommended,
		v.DKIM.Status, v.DKIM.Record, v.DKIM.Recommended,
		v.DMARC.Status, v.DMARC.Record, v.DMARC.Recommended,
		v.Blacklisted, pq.Array(v.Blacklists), pq.Array(v.Errors), v.LastChecked)
	if err != nil {
		return fmt.Errorf("upsert domain verification: %w", err)
	}
	return nil
}
