package domain

import "time"

// RecordStatus is the verification state of one DNS mechanism.
type RecordStatus string

const (
	RecordNotChecked RecordStatus = "not_checked"
	RecordValid      RecordStatus = "valid"
	RecordInvalid    RecordStatus = "invalid"
	RecordFailed     RecordStatus = "failed"
)

// RecordCheck holds the outcome of verifying a single mechanism (SPF,
// DKIM, or DMARC): the raw record found (if any) and, when invalid or
// absent, a recommended replacement the caller can publish.
type RecordCheck struct {
	Status      RecordStatus `json:"status" db:"status"`
	Record      string       `json:"record,omitempty" db:"record"`
	Recommended string       `json:"recommended,omitempty" db:"recommended"`
}

// DomainVerification is the per-domain verification row, upserted on
// every run and never deleted automatically.
type DomainVerification struct {
	Domain       string      `json:"domain" db:"domain"`
	DKIMSelector string      `json:"dkim_selector,omitempty" db:"dkim_selector"`
	SPF          RecordCheck `json:"spf"`
	DKIM         RecordCheck `json:"dkim"`
	DMARC        RecordCheck `json:"dmarc"`
	Blacklisted  bool        `json:"blacklisted" db:"blacklisted"`
	Blacklists   []string    `json:"blacklists,omitempty"`
	Errors       []string    `json:"errors,omitempty"`
	LastChecked  time.Time   `json:"last_checked" db:"last_checked"`
}
