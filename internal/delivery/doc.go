// Package delivery ingests delivery events and maintains the derived
// health state of sending accounts.
//
// Delivery events are append-only facts; every displayed rate is
// derivable by replaying the events in the trailing 30-day window. The
// stored rate columns on an account are a cache maintained by
// UpdateAccountMetrics, which runs its read-counts/write-rates/pause
// sequence inside one repository transaction so concurrent recomputes
// for the same account cannot lose updates.
//
// The service layer contains the business rules and depends only on the
// Repository interface; it never imports net/http or database/sql.
package delivery
