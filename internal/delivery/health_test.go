package delivery

import (
	"testing"

	"github.com/reachcraft/deliverability/internal/domain"
)

func TestHealthScoreBounds(t *testing.T) {
	// Pathological rates must clamp to [0, 100] at both ends.
	worst := &domain.EmailAccount{BounceRate: 100, ComplaintRate: 100}
	if got := HealthScore(worst); got != 0 {
		t.Errorf("worst-case score = %.1f, want 0", got)
	}

	best := &domain.EmailAccount{OpenRate: 100, ClickRate: 100, ReplyRate: 100}
	if got := HealthScore(best); got < 0 || got > 100 {
		t.Errorf("best-case score = %.1f, want within [0, 100]", got)
	}
}

func TestHealthScoreBaseline(t *testing.T) {
	// An account with no history sits at the neutral base.
	if got := HealthScore(&domain.EmailAccount{}); got != 50 {
		t.Errorf("zero-rate score = %.1f, want 50", got)
	}
}

func TestHealthScoreMonotonicInBounceRate(t *testing.T) {
	// Holding everything else fixed, a higher bounce rate never raises
	// the score.
	prev := 101.0
	for bounce := 0.0; bounce <= 20; bounce += 0.5 {
		acct := &domain.EmailAccount{OpenRate: 25, ClickRate: 3, BounceRate: bounce}
		score := HealthScore(acct)
		if score > prev {
			t.Fatalf("score rose from %.2f to %.2f as bounce rate hit %.1f", prev, score, bounce)
		}
		prev = score
	}
}

func TestHealthScoreMonotonicInComplaintRate(t *testing.T) {
	prev := 101.0
	for complaint := 0.0; complaint <= 5; complaint += 0.1 {
		acct := &domain.EmailAccount{OpenRate: 25, ComplaintRate: complaint}
		score := HealthScore(acct)
		if score > prev {
			t.Fatalf("score rose from %.2f to %.2f as complaint rate hit %.2f", prev, score, complaint)
		}
		prev = score
	}
}

func TestHealthScoreComplaintsOutweighBounces(t *testing.T) {
	bouncy := HealthScore(&domain.EmailAccount{BounceRate: 2})
	complainy := HealthScore(&domain.EmailAccount{ComplaintRate: 2})
	if complainy >= bouncy {
		t.Errorf("complaint penalty (%.1f) should exceed the same bounce penalty (%.1f)", 100-complainy, 100-bouncy)
	}
}

func TestHealthScorePositiveCaps(t *testing.T) {
	// Engagement beyond the cap adds nothing.
	atCap := HealthScore(&domain.EmailAccount{OpenRate: 40})
	beyond := HealthScore(&domain.EmailAccount{OpenRate: 90})
	if atCap != beyond {
		t.Errorf("open rate above cap changed the score: %.1f vs %.1f", atCap, beyond)
	}
}

func TestHealthBand(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{100, "good"},
		{80, "good"},
		{79.9, "fair"},
		{60, "fair"},
		{59.9, "poor"},
		{40, "poor"},
		{39.9, "critical"},
		{0, "critical"},
	}
	for _, tt := range tests {
		if got := HealthBand(tt.score); got != tt.want {
			t.Errorf("HealthBand(%.1f) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
