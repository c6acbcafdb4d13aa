package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/reachcraft/deliverability/internal/delivery"
	"github.com/reachcraft/deliverability/internal/dnscheck"
	"github.com/reachcraft/deliverability/internal/domain"
	"github.com/reachcraft/deliverability/internal/pkg/httputil"
	"github.com/reachcraft/deliverability/internal/sendlimit"
	"github.com/reachcraft/deliverability/internal/smtpprobe"
	"github.com/reachcraft/deliverability/internal/spamcheck"
)

// DeliveryService is the slice of the delivery service the handlers use.
type DeliveryService interface {
	RecordEvent(ctx context.Context, ev *domain.DeliveryEvent) (*delivery.AccountMetrics, error)
	UpdateAccountMetrics(ctx context.Context, accountID string, asOf time.Time) (*delivery.AccountMetrics, error)
	GetAccountHealth(ctx context.Context, accountID string) (*delivery.AccountHealth, error)
}

// AccountGetter loads account rows for the validation and limit routes.
type AccountGetter interface {
	GetAccount(ctx context.Context, id string) (*domain.EmailAccount, error)
}

// DomainVerifier runs DNS record verification for a sending domain.
type DomainVerifier interface {
	VerifyDomain(ctx context.Context, dom string) (*domain.DomainVerification, error)
}

// BlacklistChecker queries domain DNSBLs.
type BlacklistChecker interface {
	Check(ctx context.Context, dom string) (*dnscheck.BlacklistResult, error)
}

// AccountValidator probes an account's SMTP endpoint.
type AccountValidator interface {
	ValidateAccount(ctx context.Context, account *domain.EmailAccount) smtpprobe.ValidationResult
}

// Handlers holds every HTTP handler and its dependencies. The reserver
// is optional; without Redis the reserve route degrades to 503.
type Handlers struct {
	Delivery   DeliveryService
	Accounts   AccountGetter
	Calculator *sendlimit.Calculator
	Reserver   *sendlimit.Reserver
	Verifier   DomainVerifier
	Blacklist  BlacklistChecker
	Prober     AccountValidator
	Scorer     *spamcheck.Scorer
}

// HealthCheck is the liveness probe.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]string{"status": "ok"})
}

// PostEvent ingests one delivery event and returns the recomputed
// account metrics.
func (h *Handlers) PostEvent(w http.ResponseWriter, r *http.Request) {
	var ev domain.DeliveryEvent
	if !httputil.Decode(w, r, &ev) {
		return
	}

	metrics, err := h.Delivery.RecordEvent(r.Context(), &ev)
	switch {
	case errors.Is(err, delivery.ErrInvalidEvent):
		httputil.BadRequest(w, err.Error())
		return
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	httputil.Created(w, eventResponse{EventID: ev.ID, Metrics: metrics})
}

type eventResponse struct {
	EventID string                   `json:"event_id"`
	Metrics *delivery.AccountMetrics `json:"metrics,omitempty"`
}

// GetMetrics recomputes and returns the account's rolling metrics. An
// optional as_of query parameter (RFC 3339) pins the window end.
func (h *Handlers) GetMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	asOf := time.Now().UTC()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.BadRequest(w, "as_of must be RFC 3339")
			return
		}
		asOf = t
	}

	metrics, err := h.Delivery.UpdateAccountMetrics(r.Context(), id, asOf)
	switch {
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	if metrics == nil {
		httputil.OK(w, map[string]any{"account_id": id, "no_data": true})
		return
	}
	httputil.OK(w, metrics)
}

// GetHealth returns the account's health score and band.
func (h *Handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	health, err := h.Delivery.GetAccountHealth(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, health)
}

// GetLimits returns the account's effective sending limits and usage.
func (h *Handlers) GetLimits(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}

	limits, err := h.Calculator.GetSendingLimits(r.Context(), acct, time.Now().UTC())
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, limits)
}

// PostReserve atomically claims send slots against the account's
// current allowance. Returns 429 when a window is exhausted.
func (h *Handlers) PostReserve(w http.ResponseWriter, r *http.Request) {
	if h.Reserver == nil {
		httputil.Error(w, http.StatusServiceUnavailable, "send reservation requires redis")
		return
	}

	var req struct {
		Count int `json:"count"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Count <= 0 {
		req.Count = 1
	}

	acct, err := h.Accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	if acct.Status != domain.AccountActive {
		httputil.Error(w, http.StatusConflict, "account is not active")
		return
	}

	now := time.Now().UTC()
	daily, _ := sendlimit.EffectiveDailyLimit(acct, now)
	hourly := sendlimit.HourlyFromDaily(daily)
	if acct.HourlySendingLimit > 0 && acct.HourlySendingLimit < hourly {
		hourly = acct.HourlySendingLimit
	}

	res, err := h.Reserver.Reserve(r.Context(), acct.ID, req.Count, hourly, daily)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if !res.Allowed {
		httputil.JSON(w, http.StatusTooManyRequests, res)
		return
	}
	httputil.OK(w, res)
}

// PostValidate runs SMTP-side validation for the account.
func (h *Handlers) PostValidate(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Accounts.GetAccount(r.Context(), chi.URLParam(r, "id"))
	switch {
	case errors.Is(err, delivery.ErrAccountNotFound):
		httputil.NotFound(w, "account not found")
		return
	case err != nil:
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, h.Prober.ValidateAccount(r.Context(), acct))
}

// PostVerifyDomain runs DNS record verification and the DNSBL check for
// a sending domain.
func (h *Handlers) PostVerifyDomain(w http.ResponseWriter, r *http.Request) {
	dom := chi.URLParam(r, "domain")
	if dom == "" {
		httputil.BadRequest(w, "domain is required")
		return
	}

	verification, err := h.Verifier.VerifyDomain(r.Context(), dom)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	resp := verifyResponse{Verification: verification}
	if h.Blacklist != nil {
		bl, err := h.Blacklist.Check(r.Context(), dom)
		if err == nil {
			resp.Blacklist = bl
			verification.Blacklisted = bl.Listed
			verification.Blacklists = bl.Blacklists
		}
	}
	httputil.OK(w, resp)
}

type verifyResponse struct {
	Verification *domain.DomainVerification `json:"verification"`
	Blacklist    *dnscheck.BlacklistResult  `json:"blacklist,omitempty"`
}

// PostSpamCheck scores a subject/body pair.
func (h *Handlers) PostSpamCheck(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if !httputil.Decode(w, r, &req) {
		return
	}
	if req.Subject == "" && req.Body == "" {
		httputil.BadRequest(w, "subject or body is required")
		return
	}
	httputil.OK(w, h.Scorer.Score(req.Subject, req.Body))
}
