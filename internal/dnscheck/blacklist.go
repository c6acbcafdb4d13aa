package dnscheck

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/reachcraft/deliverability/internal/pkg/logger"
)

// Domain-based DNS blacklists. Unlike IP DNSBLs these are queried with
// the bare domain name prepended to the zone.
var domainBlacklists = []string{
	"dbl.spamhaus.org",
	"multi.surbl.org",
	"multi.uribl.com",
}

// BlacklistResult contains the outcome of checking a sending domain
// against domain-based DNS blacklists.
type BlacklistResult struct {
	Domain     string   `json:"domain"`
	Listed     bool     `json:"listed"`
	Blacklists []string `json:"blacklists,omitempty"`
	Clean      []string `json:"clean"`
	Errors     []string `json:"errors,omitempty"`
	CheckedAt  string   `json:"checked_at"`
}

// BlacklistChecker queries domain DNSBLs and records the result on the
// domain's verification row.
type BlacklistChecker struct {
	repo Repository

	lookupHost func(ctx context.Context, name string) ([]string, error)
}

// NewBlacklistChecker creates a blacklist checker backed by the given
// repository.
func NewBlacklistChecker(repo Repository) *BlacklistChecker {
	resolver := &net.Resolver{PreferGo: true}
	return &BlacklistChecker{
		repo: repo,
		lookupHost: func(ctx context.Context, name string) ([]string, error) {
			lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return resolver.LookupHost(lookupCtx, name)
		},
	}
}

// NewBlacklistCheckerWithLookup overrides the host lookup function for tests.
func NewBlacklistCheckerWithLookup(repo Repository, fn func(context.Context, string) ([]string, error)) *BlacklistChecker {
	c := NewBlacklistChecker(repo)
	c.lookupHost = fn
	return c
}

// Check queries every configured DNSBL for the domain. NXDOMAIN means
// not listed (the normal case); an answer in 127.0.0.0/8 means listed.
func (c *BlacklistChecker) Check(ctx context.Context, dom string) (*BlacklistResult, error) {
	dom = strings.ToLower(strings.TrimSpace(dom))
	if dom == "" {
		return nil, fmt.Errorf("domain is required")
	}

	result := &BlacklistResult{
		Domain:    dom,
		CheckedAt: time.Now().UTC().Format(time.RFC3339),
	}

	for _, bl := range domainBlacklists {
		query := fmt.Sprintf("%s.%s", dom, bl)
		addrs, err := c.lookupHost(ctx, query)
		if err != nil {
			result.Clean = append(result.Clean, bl)
			continue
		}

		listed := false
		for _, addr := range addrs {
			if strings.HasPrefix(addr, "127.") {
				listed = true
				break
			}
		}
		if listed {
			result.Listed = true
			result.Blacklists = append(result.Blacklists, bl)
		} else {
			result.Clean = append(result.Clean, bl)
		}
	}

	if c.repo != nil {
		if v, err := c.repo.Get(ctx, dom); err == nil {
			v.Blacklisted = result.Listed
			v.Blacklists = result.Blacklists
			if err := c.repo.Upsert(ctx, v); err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("store blacklist result: %v", err))
			}
		}
	}

	if result.Listed {
		logger.Warn("sending domain blacklisted", "domain", dom, "blacklists", strings.Join(result.Blacklists, ","))
	}
	return result, nil
}
