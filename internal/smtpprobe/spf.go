package smtpprobe

import (
	"context"
	"fmt"
	"strings"
)

// SPFValidationResult is the outcome of checking whether a specific SMTP
// host is authorized by the sender domain's SPF record.
type SPFValidationResult struct {
	Authorized bool     `json:"authorized"`
	Record     string   `json:"record,omitempty"`
	Issues     []string `json:"issues,omitempty"`
}

// ValidateSPFForHost checks the sender domain's SPF record against a
// specific sending host, unlike the generic domain check in dnscheck.
// Authorization is satisfied by an a or mx mechanism, any include:, an
// explicit mention of the host, or the host being a well-known provider.
func (p *Prober) ValidateSPFForHost(ctx context.Context, email, smtpHost string) SPFValidationResult {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return SPFValidationResult{Issues: []string{fmt.Sprintf("cannot derive domain from %q", email)}}
	}
	dom := strings.ToLower(email[at+1:])

	// Major providers publish their own SPF; sending through them is
	// authorized regardless of what the sender domain declares.
	if isWellKnownHost(smtpHost) {
		return SPFValidationResult{Authorized: true}
	}

	records, err := p.lookupTXT(ctx, dom)
	if err != nil {
		return SPFValidationResult{
			Issues: []string{fmt.Sprintf("SPF lookup for %s failed: %v", dom, err)},
		}
	}

	var record string
	for _, r := range records {
		if strings.HasPrefix(strings.TrimSpace(r), "v=spf1") {
			record = strings.TrimSpace(r)
			break
		}
	}
	if record == "" {
		return SPFValidationResult{
			Issues: []string{fmt.Sprintf("no SPF record found for %s", dom)},
		}
	}

	if spfAuthorizesHost(record, smtpHost) {
		return SPFValidationResult{Authorized: true, Record: record}
	}
	return SPFValidationResult{
		Record: record,
		Issues: []string{fmt.Sprintf("SPF record for %s does not authorize %s", dom, smtpHost)},
	}
}

func spfAuthorizesHost(record, smtpHost string) bool {
	host := strings.ToLower(smtpHost)
	for _, field := range strings.Fields(record) {
		mech := strings.TrimLeft(field, "+-~?")
		switch {
		case mech == "a" || strings.HasPrefix(mech, "a:"),
			mech == "mx" || strings.HasPrefix(mech, "mx:"),
			strings.HasPrefix(mech, "include:"):
			return true
		case strings.Contains(strings.ToLower(mech), host):
			return true
		}
	}
	return false
}
