package delivery

import (
	"math"

	"github.com/reachcraft/deliverability/internal/domain"
)

// ScoreWeights parameterizes the health score. Positive engagement is
// capped at an "ideal" rate so unusually high numbers (often a sign of
// bot traffic anyway) don't over-reward; negative signals are capped and
// multiplied, with complaints weighted far more punitively than bounces.
type ScoreWeights struct {
	Base float64

	OpenCap       float64
	OpenMult      float64
	ClickCap      float64
	ClickMult     float64
	ReplyCap      float64
	ReplyMult     float64
	BounceCap     float64
	BounceMult    float64
	ComplaintCap  float64
	ComplaintMult float64
}

// DefaultScoreWeights is the stock scoring table. With all positives at
// their caps and no negatives the score tops out at 95; penalties at
// their caps drive any account to zero.
var DefaultScoreWeights = ScoreWeights{
	Base:          50,
	OpenCap:       40,
	OpenMult:      0.5,
	ClickCap:      10,
	ClickMult:     1.5,
	ReplyCap:      5,
	ReplyMult:     2.0,
	BounceCap:     10,
	BounceMult:    5,
	ComplaintCap:  2,
	ComplaintMult: 25,
}

// HealthScore computes the account's health score with the default
// weights, clamped to [0, 100].
func HealthScore(acct *domain.EmailAccount) float64 {
	return HealthScoreWith(acct, DefaultScoreWeights)
}

// HealthScoreWith computes the health score with explicit weights.
func HealthScoreWith(acct *domain.EmailAccount, w ScoreWeights) float64 {
	score := w.Base
	score += math.Min(acct.OpenRate, w.OpenCap) * w.OpenMult
	score += math.Min(acct.ClickRate, w.ClickCap) * w.ClickMult
	score += math.Min(acct.ReplyRate, w.ReplyCap) * w.ReplyMult
	score -= math.Min(acct.BounceRate, w.BounceCap) * w.BounceMult
	score -= math.Min(acct.ComplaintRate, w.ComplaintCap) * w.ComplaintMult

	return math.Max(0, math.Min(100, score))
}

// HealthBand maps a score to its reporting band.
func HealthBand(score float64) string {
	switch {
	case score >= 80:
		return "good"
	case score >= 60:
		return "fair"
	case score >= 40:
		return "poor"
	default:
		return "critical"
	}
}
