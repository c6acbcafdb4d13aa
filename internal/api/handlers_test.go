package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reachcraft/deliverability/internal/delivery"
	"github.com/reachcraft/deliverability/internal/dnscheck"
	"github.com/reachcraft/deliverability/internal/domain"
	"github.com/reachcraft/deliverability/internal/sendlimit"
	"github.com/reachcraft/deliverability/internal/smtpprobe"
	"github.com/reachcraft/deliverability/internal/spamcheck"
)

type fakeDelivery struct {
	metrics *delivery.AccountMetrics
	health  *delivery.AccountHealth
	err     error
}

func (f *fakeDelivery) RecordEvent(_ context.Context, ev *domain.DeliveryEvent) (*delivery.AccountMetrics, error) {
	if ev.ID == "" {
		ev.ID = "ev-1"
	}
	return f.metrics, f.err
}

func (f *fakeDelivery) UpdateAccountMetrics(context.Context, string, time.Time) (*delivery.AccountMetrics, error) {
	return f.metrics, f.err
}

func (f *fakeDelivery) GetAccountHealth(context.Context, string) (*delivery.AccountHealth, error) {
	return f.health, f.err
}

type fakeAccounts struct {
	acct *domain.EmailAccount
	err  error
}

func (f *fakeAccounts) GetAccount(context.Context, string) (*domain.EmailAccount, error) {
	return f.acct, f.err
}

type fakeVerifier struct{ v *domain.DomainVerification }

func (f *fakeVerifier) VerifyDomain(_ context.Context, dom string) (*domain.DomainVerification, error) {
	f.v.Domain = dom
	return f.v, nil
}

type fakeBlacklist struct{ res *dnscheck.BlacklistResult }

func (f *fakeBlacklist) Check(context.Context, string) (*dnscheck.BlacklistResult, error) {
	return f.res, nil
}

type fakeProber struct{ result smtpprobe.ValidationResult }

func (f *fakeProber) ValidateAccount(context.Context, *domain.EmailAccount) smtpprobe.ValidationResult {
	return f.result
}

type fakeStore struct{ count int }

func (f *fakeStore) CountDelivered(context.Context, string, time.Time, time.Time) (int, error) {
	return f.count, nil
}

func (f *fakeStore) NthRecentDeliveredAt(context.Context, string, int, time.Time) (*time.Time, error) {
	return nil, nil
}

func activeAccount() *domain.EmailAccount {
	return &domain.EmailAccount{
		ID:                "acct-1",
		Email:             "sender@example.com",
		Status:            domain.AccountActive,
		DailySendingLimit: 100,
	}
}

func newTestRouter(h *Handlers) http.Handler {
	if h.Scorer == nil {
		h.Scorer = spamcheck.NewScorer(0)
	}
	if h.Calculator == nil {
		h.Calculator = sendlimit.NewCalculator(&fakeStore{})
	}
	return SetupRoutes(h, nil)
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	router := newTestRouter(&Handlers{})
	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPostEvent(t *testing.T) {
	router := newTestRouter(&Handlers{
		Delivery: &fakeDelivery{metrics: &delivery.AccountMetrics{AccountID: "acct-1", BounceRate: 6.0, Paused: true}},
	})

	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]string{
		"account_id": "acct-1",
		"event_type": "bounce",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp eventResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ev-1", resp.EventID)
	require.NotNil(t, resp.Metrics)
	assert.True(t, resp.Metrics.Paused)
}

func TestPostEventInvalid(t *testing.T) {
	router := newTestRouter(&Handlers{
		Delivery: &fakeDelivery{err: delivery.ErrInvalidEvent},
	})
	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]string{"event_type": "forwarded"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPostEventUnknownAccount(t *testing.T) {
	router := newTestRouter(&Handlers{
		Delivery: &fakeDelivery{err: delivery.ErrAccountNotFound},
	})
	rec := doJSON(t, router, http.MethodPost, "/api/events", map[string]string{
		"account_id": "missing",
		"event_type": "delivered",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMetricsNoData(t *testing.T) {
	router := newTestRouter(&Handlers{Delivery: &fakeDelivery{}})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acct-1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["no_data"])
}

func TestGetMetricsRejectsBadAsOf(t *testing.T) {
	router := newTestRouter(&Handlers{Delivery: &fakeDelivery{}})
	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acct-1/metrics?as_of=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetHealth(t *testing.T) {
	router := newTestRouter(&Handlers{
		Delivery: &fakeDelivery{health: &delivery.AccountHealth{
			AccountID: "acct-1", HealthScore: 62.5, HealthBand: "fair",
		}},
	})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acct-1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp delivery.AccountHealth
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "fair", resp.HealthBand)
}

func TestGetLimits(t *testing.T) {
	router := newTestRouter(&Handlers{
		Accounts:   &fakeAccounts{acct: activeAccount()},
		Calculator: sendlimit.NewCalculator(&fakeStore{count: 10}),
	})

	rec := doJSON(t, router, http.MethodGet, "/api/accounts/acct-1/limits", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var limits sendlimit.Limits
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &limits))
	assert.Equal(t, 100, limits.DailyLimit)
	assert.True(t, limits.CanSend)
}

func TestGetLimitsUnknownAccount(t *testing.T) {
	router := newTestRouter(&Handlers{
		Accounts: &fakeAccounts{err: delivery.ErrAccountNotFound},
	})
	rec := doJSON(t, router, http.MethodGet, "/api/accounts/missing/limits", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPostReserveWithoutRedis(t *testing.T) {
	router := newTestRouter(&Handlers{
		Accounts: &fakeAccounts{acct: activeAccount()},
	})
	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/reserve", map[string]int{"count": 1})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPostReserve(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router := newTestRouter(&Handlers{
		Accounts: &fakeAccounts{acct: activeAccount()},
		Reserver: sendlimit.NewReserver(client),
	})

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/reserve", map[string]int{"count": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	var res sendlimit.Reservation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.DailyUsed)
}

func TestPostReservePausedAccount(t *testing.T) {
	acct := activeAccount()
	acct.Status = domain.AccountPaused

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	router := newTestRouter(&Handlers{
		Accounts: &fakeAccounts{acct: acct},
		Reserver: sendlimit.NewReserver(client),
	})
	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/reserve", map[string]int{"count": 1})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPostValidate(t *testing.T) {
	router := newTestRouter(&Handlers{
		Accounts: &fakeAccounts{acct: activeAccount()},
		Prober: &fakeProber{result: smtpprobe.ValidationResult{
			Issues: []string{"SMTP host is required"},
		}},
	})

	rec := doJSON(t, router, http.MethodPost, "/api/accounts/acct-1/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var result smtpprobe.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Valid)
	assert.Len(t, result.Issues, 1)
}

func TestPostVerifyDomain(t *testing.T) {
	router := newTestRouter(&Handlers{
		Verifier: &fakeVerifier{v: &domain.DomainVerification{
			SPF:   domain.RecordCheck{Status: domain.RecordValid},
			DMARC: domain.RecordCheck{Status: domain.RecordInvalid, Recommended: "v=DMARC1; p=none"},
		}},
		Blacklist: &fakeBlacklist{res: &dnscheck.BlacklistResult{
			Listed: true, Blacklists: []string{"dbl.spamhaus.org"},
		}},
	})

	rec := doJSON(t, router, http.MethodPost, "/api/domains/example.com/verify", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp verifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "example.com", resp.Verification.Domain)
	assert.True(t, resp.Verification.Blacklisted)
	require.NotNil(t, resp.Blacklist)
	assert.True(t, resp.Blacklist.Listed)
}

func TestPostSpamCheck(t *testing.T) {
	router := newTestRouter(&Handlers{Scorer: spamcheck.NewScorer(5.0)})

	rec := doJSON(t, router, http.MethodPost, "/api/spam-check", map[string]string{
		"subject": "FREE MONEY!!! Act now",
		"body":    "Buy now! Click here to claim your prize $$$",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result spamcheck.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Passes)
	assert.NotEmpty(t, result.Details)
}

func TestPostSpamCheckEmpty(t *testing.T) {
	router := newTestRouter(&Handlers{Scorer: spamcheck.NewScorer(5.0)})
	rec := doJSON(t, router, http.MethodPost, "/api/spam-check", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
