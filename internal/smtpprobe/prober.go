// Package smtpprobe validates sending accounts against their SMTP
// endpoint: raw connectivity, host-keyed SPF authorization, and an
// authenticated transport check when credentials are configured.
// Validation never returns a Go error to the caller; every failure is
// accumulated as an issue on the result so route handlers can render
// the full list at once.
package smtpprobe

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/reachcraft/deliverability/internal/domain"
	"github.com/reachcraft/deliverability/internal/pkg/logger"
)

// ConnectionResult is the outcome of a raw-socket connectivity probe.
type ConnectionResult struct {
	CanConnect bool   `json:"can_connect"`
	Error      string `json:"error,omitempty"`
}

// ValidationResult accumulates every problem found while validating an
// account. The account is valid iff the issue list is empty.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Issues []string `json:"issues"`
}

// Prober runs SMTP-side validation for sending accounts.
type Prober struct {
	connectTimeout time.Duration

	// injectable for testability
	dial       func(network, addr string, timeout time.Duration) (net.Conn, error)
	lookupTXT  func(ctx context.Context, name string) ([]string, error)
	authVerify func(host string, port int, username, password string) error
}

// NewProber creates a prober. connectTimeout bounds the raw socket probe;
// 5 seconds matches typical mail-server accept latency without hanging
// request handlers.
func NewProber(connectTimeout time.Duration) *Prober {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	p := &Prober{connectTimeout: connectTimeout}
	p.dial = net.DialTimeout
	resolver := &net.Resolver{PreferGo: true}
	p.lookupTXT = func(ctx context.Context, name string) ([]string, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		return resolver.LookupTXT(lookupCtx, name)
	}
	p.authVerify = p.smtpAuthVerify
	return p
}

// TestConnection opens a raw socket to the mail server and immediately
// closes it. Timeouts are reported distinctly from refusals.
func (p *Prober) TestConnection(host string, port int) ConnectionResult {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := p.dial("tcp", addr, p.connectTimeout)
	if err != nil {
		var netErr net.Error
		if ok := asNetError(err, &netErr); ok && netErr.Timeout() {
			return ConnectionResult{Error: fmt.Sprintf("connection to %s timed out after %s", addr, p.connectTimeout)}
		}
		return ConnectionResult{Error: fmt.Sprintf("connection to %s failed: %v", addr, err)}
	}
	conn.Close()
	return ConnectionResult{CanConnect: true}
}

// ValidateAccount composes every validation step for a sending account:
// required fields, connectivity, SPF authorization for the configured
// host, and (only when a password is present) an authenticated SMTP
// handshake. Missing required fields short-circuit the network checks.
func (p *Prober) ValidateAccount(ctx context.Context, account *domain.EmailAccount) ValidationResult {
	var issues []string

	if account.Email == "" {
		issues = append(issues, "email address is required")
	}
	if account.SMTPHost == "" {
		issues = append(issues, "SMTP host is required")
	}
	if account.SMTPPort == 0 {
		issues = append(issues, "SMTP port is required")
	}
	if account.SMTPUser == "" {
		issues = append(issues, "SMTP username is required")
	}
	if len(issues) > 0 {
		return ValidationResult{Issues: issues}
	}

	if conn := p.TestConnection(account.SMTPHost, account.SMTPPort); !conn.CanConnect {
		issues = append(issues, conn.Error)
	}

	spf := p.ValidateSPFForHost(ctx, account.Email, account.SMTPHost)
	if !spf.Authorized {
		issues = append(issues, spf.Issues...)
	}

	// Only attempt an authenticated handshake when we actually hold a
	// password; absence of credentials is not an issue by itself.
	if account.SMTPPass != "" {
		if err := p.authVerify(account.SMTPHost, account.SMTPPort, account.SMTPUser, account.SMTPPass); err != nil {
			issues = append(issues, fmt.Sprintf("SMTP authentication failed: %v", err))
		}
	}

	result := ValidationResult{Valid: len(issues) == 0, Issues: issues}
	if len(issues) == 0 {
		result.Issues = []string{}
	}
	logger.Debug("account validated", "account", account.Email, "valid", result.Valid, "issues", len(issues))
	return result
}

// smtpAuthVerify performs a full authenticated handshake: EHLO, STARTTLS
// when offered, then AUTH PLAIN. The connection is closed immediately
// after a successful auth; nothing is sent.
func (p *Prober) smtpAuthVerify(host string, port int, username, password string) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	conn, err := p.dial("tcp", addr, p.connectTimeout)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	// The dial timeout only covers the connect; a silent or stalled
	// server would otherwise hang the greeting, STARTTLS, or AUTH reads.
	_ = conn.SetDeadline(time.Now().Add(3 * p.connectTimeout))

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
			return fmt.Errorf("starttls: %w", err)
		}
	}

	auth := smtp.PlainAuth("", username, password, host)
	if err := client.Auth(auth); err != nil {
		return err
	}
	return client.Quit()
}

func asNetError(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if ok {
		*target = ne
	}
	return ok
}

// wellKnownSMTPHosts are major providers whose sending infrastructure is
// authorized out of band; an SPF record is not expected to name them.
var wellKnownSMTPHosts = []string{
	"smtp.gmail.com",
	"smtp.googlemail.com",
	"smtp-mail.outlook.com",
	"smtp.office365.com",
	"smtp.mail.yahoo.com",
	"smtp.zoho.com",
	"smtp.sendgrid.net",
	"email-smtp.", // AWS SES regional endpoints
}

func isWellKnownHost(host string) bool {
	host = strings.ToLower(host)
	for _, known := range wellKnownSMTPHosts {
		if host == known || strings.HasPrefix(host, known) {
			return true
		}
	}
	return false
}
