// Package dnscheck verifies the DNS posture of a sending domain: SPF,
// DKIM, and DMARC TXT records, plus domain-based blacklist (DNSBL)
// lookups. Every check produces an actionable recommendation when the
// record is absent or malformed, so the caller always has something to
// show the user. Results are upserted per domain through the Repository
// interface; one mechanism failing never aborts the others.
package dnscheck
