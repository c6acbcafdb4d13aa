package dnscheck

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/reachcraft/deliverability/internal/domain"
	"github.com/reachcraft/deliverability/internal/pkg/logger"
)

// Checker verifies SPF, DKIM, and DMARC records for sending domains.
type Checker struct {
	repo    Repository
	timeout time.Duration

	// injectable for testability
	lookupTXT func(ctx context.Context, name string) ([]string, error)
}

// NewChecker creates a DNS checker backed by the given repository.
// timeout bounds each individual TXT lookup.
func NewChecker(repo Repository, timeout time.Duration) *Checker {
	c := &Checker{repo: repo, timeout: timeout}
	resolver := &net.Resolver{PreferGo: true}
	c.lookupTXT = func(ctx context.Context, name string) ([]string, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return resolver.LookupTXT(lookupCtx, name)
	}
	return c
}

// NewCheckerWithLookup is a test-oriented constructor that overrides the
// TXT lookup function.
func NewCheckerWithLookup(repo Repository, fn func(context.Context, string) ([]string, error)) *Checker {
	c := NewChecker(repo, 10*time.Second)
	c.lookupTXT = fn
	return c
}

// VerifyDomain runs SPF and DMARC checks (and DKIM when a selector is
// configured on the stored row), merges the results into the per-domain
// verification record, and upserts it. A failure in one mechanism never
// aborts the others.
func (c *Checker) VerifyDomain(ctx context.Context, dom string) (*domain.DomainVerification, error) {
	dom = strings.ToLower(strings.TrimSpace(dom))
	if dom == "" {
		return nil, fmt.Errorf("domain is required")
	}

	v, err := c.repo.Get(ctx, dom)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("load verification for %s: %w", dom, err)
		}
		v = &domain.DomainVerification{
			Domain: dom,
			SPF:    domain.RecordCheck{Status: domain.RecordNotChecked},
			DKIM:   domain.RecordCheck{Status: domain.RecordNotChecked},
			DMARC:  domain.RecordCheck{Status: domain.RecordNotChecked},
		}
	}
	v.Errors = nil

	v.SPF = c.CheckSPF(ctx, dom, &v.Errors)
	v.DMARC = c.CheckDMARC(ctx, dom, &v.Errors)
	if v.DKIMSelector != "" {
		v.DKIM = c.CheckDKIM(ctx, dom, v.DKIMSelector, &v.Errors)
	}
	v.LastChecked = time.Now().UTC()

	if err := c.repo.Upsert(ctx, v); err != nil {
		return nil, fmt.Errorf("store verification for %s: %w", dom, err)
	}

	logger.Info("domain verified",
		"domain", dom,
		"spf", string(v.SPF.Status),
		"dkim", string(v.DKIM.Status),
		"dmarc", string(v.DMARC.Status))
	return v, nil
}

// CheckSPF validates the domain's SPF posture. Exactly one v=spf1 record
// must exist and it must cover the mail provider; anything else is
// invalid with a recommended replacement. Lookup failures other than
// "record absent" are reported as failed rather than invalid.
func (c *Checker) CheckSPF(ctx context.Context, dom string, errs *[]string) domain.RecordCheck {
	records, err := c.lookupTXT(ctx, dom)
	if err != nil {
		return c.lookupFailure("SPF", dom, err, DefaultSPFRecord, errs)
	}

	var spfRecords []string
	for _, r := range records {
		if strings.HasPrefix(strings.TrimSpace(r), "v=spf1") {
			spfRecords = append(spfRecords, strings.TrimSpace(r))
		}
	}

	switch {
	case len(spfRecords) == 0:
		appendErr(errs, fmt.Sprintf("SPF: no v=spf1 record found for %s", dom))
		return domain.RecordCheck{
			Status:      domain.RecordInvalid,
			Recommended: DefaultSPFRecord,
		}
	case len(spfRecords) > 1:
		// Multiple SPF records are a permanent error per RFC 7208
		appendErr(errs, fmt.Sprintf("SPF: %d v=spf1 records found for %s, exactly one is allowed", len(spfRecords), dom))
		return domain.RecordCheck{
			Status:      domain.RecordInvalid,
			Record:      strings.Join(spfRecords, "\n"),
			Recommended: recommendSPF(spfRecords[0]),
		}
	}

	record := spfRecords[0]
	if !hasProviderInclude(record) {
		appendErr(errs, fmt.Sprintf("SPF: record for %s does not authorize the mail provider", dom))
		return domain.RecordCheck{
			Status:      domain.RecordInvalid,
			Record:      record,
			Recommended: MergeSPFRecord(record, googleSPFIncludes[0]),
		}
	}

	return domain.RecordCheck{Status: domain.RecordValid, Record: record}
}

// CheckDKIM validates the DKIM record at <selector>._domainkey.<domain>.
// The record must declare v=DKIM1 and carry a p= public key tag.
func (c *Checker) CheckDKIM(ctx context.Context, dom, selector string, errs *[]string) domain.RecordCheck {
	name := fmt.Sprintf("%s._domainkey.%s", selector, dom)
	recommended := "v=DKIM1; k=rsa; p=<your-public-key>"

	records, err := c.lookupTXT(ctx, name)
	if err != nil {
		return c.lookupFailure("DKIM", name, err, recommended, errs)
	}

	// DKIM records are often split across multiple strings; DNS TXT
	// lookup joins the fragments of each record, so inspect each.
	for _, r := range records {
		if strings.Contains(r, "v=DKIM1") && hasTag(r, "p") {
			return domain.RecordCheck{Status: domain.RecordValid, Record: r}
		}
	}

	record := strings.Join(records, "\n")
	appendErr(errs, fmt.Sprintf("DKIM: record at %s is missing v=DKIM1 or the p= key", name))
	return domain.RecordCheck{
		Status:      domain.RecordInvalid,
		Record:      record,
		Recommended: recommended,
	}
}

// CheckDMARC validates the DMARC record at _dmarc.<domain>. The record
// must declare v=DMARC1 and carry a p= policy tag.
func (c *Checker) CheckDMARC(ctx context.Context, dom string, errs *[]string) domain.RecordCheck {
	name := "_dmarc." + dom
	recommended := fmt.Sprintf("v=DMARC1; p=none; rua=mailto:dmarc@%s", dom)

	records, err := c.lookupTXT(ctx, name)
	if err != nil {
		return c.lookupFailure("DMARC", name, err, recommended, errs)
	}

	for _, r := range records {
		if strings.Contains(r, "v=DMARC1") && hasTag(r, "p") {
			return domain.RecordCheck{Status: domain.RecordValid, Record: r}
		}
	}

	record := strings.Join(records, "\n")
	appendErr(errs, fmt.Sprintf("DMARC: record at %s is missing v=DMARC1 or the p= policy", name))
	return domain.RecordCheck{
		Status:      domain.RecordInvalid,
		Record:      record,
		Recommended: recommended,
	}
}

// lookupFailure classifies a DNS error: "record absent" (NXDOMAIN/NODATA)
// is an invalid posture the user can fix, any other failure is a check
// error. Both carry the recommended record so the caller always has an
// actionable suggestion.
func (c *Checker) lookupFailure(mechanism, name string, err error, recommended string, errs *[]string) domain.RecordCheck {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		appendErr(errs, fmt.Sprintf("%s: no TXT record found at %s", mechanism, name))
		return domain.RecordCheck{
			Status:      domain.RecordInvalid,
			Recommended: recommended,
		}
	}
	appendErr(errs, fmt.Sprintf("%s: lookup for %s failed: %v", mechanism, name, err))
	return domain.RecordCheck{
		Status:      domain.RecordFailed,
		Recommended: recommended,
	}
}

// hasTag reports whether a semicolon-separated tag list carries the
// given tag. A bare substring match would false-positive on tags like
// sp= when looking for p=.
func hasTag(record, tag string) bool {
	for _, part := range strings.Split(record, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, tag+"=") && len(part) > len(tag)+1 {
			return true
		}
	}
	return false
}

func appendErr(errs *[]string, msg string) {
	if errs != nil {
		*errs = append(*errs, msg)
	}
}
