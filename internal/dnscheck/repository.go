package dnscheck

import (
	"context"
	"errors"

	"github.com/reachcraft/deliverability/internal/domain"
)

// ErrNotFound is returned by Get when no verification row exists yet.
var ErrNotFound = errors.New("domain verification not found")

// Repository defines the data access contract for domain verifications.
type Repository interface {
	// Get returns the stored verification for a domain, or ErrNotFound.
	Get(ctx context.Context, dom string) (*domain.DomainVerification, error)

	// Upsert writes the verification row, creating it if needed.
	// Rows are never deleted automatically.
	Upsert(ctx context.Context, v *domain.DomainVerification) error
}
