package smtpprobe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/reachcraft/deliverability/internal/domain"
)

func TestTestConnectionSuccess(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	p := NewProber(2 * time.Second)
	result := p.TestConnection(host, port)
	if !result.CanConnect {
		t.Errorf("CanConnect = false, error = %q", result.Error)
	}
}

func TestTestConnectionRefused(t *testing.T) {
	// Grab a port that is definitely closed
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)
	ln.Close()

	p := NewProber(2 * time.Second)
	result := p.TestConnection(host, port)
	if result.CanConnect {
		t.Error("CanConnect = true for a closed port")
	}
	if result.Error == "" {
		t.Error("expected a connection error message")
	}
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestTestConnectionTimeout(t *testing.T) {
	p := NewProber(1 * time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, timeoutError{}
	}

	result := p.TestConnection("mail.example.com", 587)
	if result.CanConnect {
		t.Error("CanConnect = true on timeout")
	}
	if !strings.Contains(result.Error, "timed out") {
		t.Errorf("error = %q, want timeout classified distinctly", result.Error)
	}
}

func fakeTXT(records map[string][]string) func(context.Context, string) ([]string, error) {
	return func(_ context.Context, name string) ([]string, error) {
		if recs, ok := records[name]; ok {
			return recs, nil
		}
		return nil, &net.DNSError{Err: "no such host", Name: name, IsNotFound: true}
	}
}

func TestValidateSPFForHost(t *testing.T) {
	p := NewProber(time.Second)
	p.lookupTXT = fakeTXT(map[string][]string{
		"include.example":  {"v=spf1 include:mailgun.org -all"},
		"explicit.example": {"v=spf1 ip4:1.2.3.4 a:mail.explicit.example -all"},
		"mech-a.example":   {"v=spf1 a -all"},
		"nospf.example":    {"some-other-txt-record"},
	})

	tests := []struct {
		name       string
		email      string
		host       string
		authorized bool
	}{
		{"include mechanism", "user@include.example", "mail.include.example", true},
		{"explicit host match", "user@explicit.example", "mail.explicit.example", true},
		{"a mechanism", "user@mech-a.example", "anything.example", true},
		{"well-known provider without spf", "user@nospf.example", "smtp.gmail.com", true},
		{"no spf record", "user@nospf.example", "mail.nospf.example", false},
		{"domain not found", "user@missing.example", "mail.missing.example", false},
		{"malformed email", "not-an-email", "mail.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.ValidateSPFForHost(context.Background(), tt.email, tt.host)
			if got.Authorized != tt.authorized {
				t.Errorf("Authorized = %v, want %v (issues: %v)", got.Authorized, tt.authorized, got.Issues)
			}
			if !got.Authorized && len(got.Issues) == 0 {
				t.Error("unauthorized result must carry at least one issue")
			}
		})
	}
}

func TestValidateSPFWellKnownHostWithRecord(t *testing.T) {
	p := NewProber(time.Second)
	p.lookupTXT = fakeTXT(map[string][]string{
		"corp.example": {"v=spf1 ip4:9.9.9.9 -all"},
	})

	// Record exists but does not name the host; the host being a major
	// provider still authorizes it.
	got := p.ValidateSPFForHost(context.Background(), "user@corp.example", "smtp.gmail.com")
	if !got.Authorized {
		t.Errorf("well-known host should be authorized, issues: %v", got.Issues)
	}
}

func TestAuthVerifyTimesOutOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	// Accept the connection but never send a greeting.
	done := make(chan struct{})
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			defer conn.Close()
		}
		<-done
	}()
	defer close(done)

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	var port int
	fmt.Sscanf(portStr, "%d", &port)

	p := NewProber(100 * time.Millisecond)
	start := time.Now()
	err = p.smtpAuthVerify(host, port, "user", "secret")
	if err == nil {
		t.Fatal("expected an error from a server that never greets")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("auth verify took %v, the connection deadline should have cut it off", elapsed)
	}
}

func TestValidateAccountMissingFields(t *testing.T) {
	p := NewProber(time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		t.Fatal("network checks must not run when required fields are missing")
		return nil, nil
	}

	result := p.ValidateAccount(context.Background(), &domain.EmailAccount{
		Email: "user@example.com",
		// host, port, username all missing
	})
	if result.Valid {
		t.Error("Valid = true with missing required fields")
	}
	if len(result.Issues) != 3 {
		t.Errorf("issues = %v, want 3 missing-field issues", result.Issues)
	}
}

func TestValidateAccountComposes(t *testing.T) {
	account := &domain.EmailAccount{
		Email:    "user@example.com",
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		SMTPUser: "user@example.com",
		SMTPPass: "hunter2",
	}

	p := NewProber(time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		c, s := net.Pipe()
		s.Close()
		return c, nil
	}
	p.lookupTXT = fakeTXT(map[string][]string{
		"example.com": {"v=spf1 a mx -all"},
	})

	authCalled := false
	p.authVerify = func(host string, port int, username, password string) error {
		authCalled = true
		if password != "hunter2" {
			t.Errorf("password = %q", password)
		}
		return nil
	}

	result := p.ValidateAccount(context.Background(), account)
	if !result.Valid {
		t.Errorf("Valid = false, issues: %v", result.Issues)
	}
	if !authCalled {
		t.Error("auth verify should run when a password is present")
	}
}

func TestValidateAccountSkipsAuthWithoutPassword(t *testing.T) {
	account := &domain.EmailAccount{
		Email:    "user@example.com",
		SMTPHost: "mail.example.com",
		SMTPPort: 587,
		SMTPUser: "user@example.com",
	}

	p := NewProber(time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		c, s := net.Pipe()
		s.Close()
		return c, nil
	}
	p.lookupTXT = fakeTXT(map[string][]string{
		"example.com": {"v=spf1 mx -all"},
	})
	p.authVerify = func(string, int, string, string) error {
		t.Fatal("auth verify must not run without a password")
		return nil
	}

	result := p.ValidateAccount(context.Background(), account)
	if !result.Valid {
		t.Errorf("Valid = false, issues: %v", result.Issues)
	}
}

func TestValidateAccountAccumulatesIssues(t *testing.T) {
	account := &domain.EmailAccount{
		Email:    "user@nospf.example",
		SMTPHost: "mail.nospf.example",
		SMTPPort: 587,
		SMTPUser: "user",
		SMTPPass: "bad",
	}

	p := NewProber(time.Second)
	p.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}
	p.lookupTXT = fakeTXT(nil)
	p.authVerify = func(string, int, string, string) error {
		return errors.New("535 authentication failed")
	}

	result := p.ValidateAccount(context.Background(), account)
	if result.Valid {
		t.Error("Valid = true with every check failing")
	}
	// connection + SPF + auth
	if len(result.Issues) != 3 {
		t.Errorf("issues = %v, want all three failures accumulated", result.Issues)
	}
}
