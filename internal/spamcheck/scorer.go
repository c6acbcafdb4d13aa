// Package spamcheck scores email content against a weighted table of
// spam indicators. Scoring is deterministic and side-effect free: the
// same subject and body always produce the same score. The indicator
// table is data, not control flow, so deployments can tune weights
// without touching the scoring logic.
package spamcheck

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// DefaultThreshold is the score at or above which content fails.
const DefaultThreshold = 5.0

// Indicator is one weighted pattern in the scoring table.
type Indicator struct {
	Name    string
	Pattern *regexp.Regexp
	Weight  float64
}

// DefaultIndicators is the stock pattern table. Weights are calibrated
// so that a handful of promotional phrases alone stays under the
// threshold; failing requires several reinforcing signals.
var DefaultIndicators = []Indicator{
	{"promotional phrase", regexp.MustCompile(`(?i)\b(free money|make money fast|act now|limited time offer|risk[ -]free|100% free|winner|congratulations you|double your|earn extra cash)\b`), 1.5},
	{"call-to-action pressure", regexp.MustCompile(`(?i)\b(buy now|click here|order now|call now|apply now|don't miss|last chance)\b`), 1.5},
	{"prize bait", regexp.MustCompile(`(?i)\b(you (have )?won|claim your|exclusive deal|no obligation|satisfaction guaranteed)\b`), 1.5},
	{"pharma terms", regexp.MustCompile(`(?i)\b(viagra|cialis|weight loss|lose weight|miracle cure)\b`), 2.0},
	{"inline script", regexp.MustCompile(`(?i)<script\b`), 2.5},
	{"hidden text", regexp.MustCompile(`(?i)(display\s*:\s*none|visibility\s*:\s*hidden|font-size\s*:\s*0)`), 2.0},
}

// StructuralWeights parameterizes the non-regex heuristics.
type StructuralWeights struct {
	LongSubject        float64 // subject longer than 80 characters
	ShortBody          float64 // body shorter than 50 characters
	MissingUnsubscribe float64
	MissingPrivacy     float64
	ExcessCaps         float64 // two or more ALL-CAPS words
	ExcessExclamation  float64 // three or more exclamation marks
	ExcessCurrency     float64 // three or more currency symbols
	ImageHeavy         float64 // image-to-text ratio above 0.3
}

// DefaultStructuralWeights is the stock structural heuristic table.
var DefaultStructuralWeights = StructuralWeights{
	LongSubject:        1.0,
	ShortBody:          1.0,
	MissingUnsubscribe: 0.5,
	MissingPrivacy:     0.5,
	ExcessCaps:         1.0,
	ExcessExclamation:  1.0,
	ExcessCurrency:     1.0,
	ImageHeavy:         1.5,
}

// Result is the verdict for one subject/body pair.
type Result struct {
	Score     float64  `json:"score"`
	Threshold float64  `json:"threshold"`
	Passes    bool     `json:"passes"`
	Details   []string `json:"details"`
}

// Scorer scores email content. Safe for concurrent use.
type Scorer struct {
	threshold  float64
	indicators []Indicator
	structural StructuralWeights
}

// NewScorer creates a scorer with the default indicator table.
func NewScorer(threshold float64) *Scorer {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Scorer{
		threshold:  threshold,
		indicators: DefaultIndicators,
		structural: DefaultStructuralWeights,
	}
}

// NewScorerWithTable creates a scorer with a custom indicator table and
// structural weights, for deployments that tune the defaults.
func NewScorerWithTable(threshold float64, indicators []Indicator, structural StructuralWeights) *Scorer {
	s := NewScorer(threshold)
	s.indicators = indicators
	s.structural = structural
	return s
}

// Score evaluates a subject/body pair. Content passes when the summed
// score stays below the threshold.
func (s *Scorer) Score(subject, body string) Result {
	result := Result{Threshold: s.threshold, Details: []string{}}
	combined := subject + "\n" + body

	for _, ind := range s.indicators {
		if matches := ind.Pattern.FindAllString(combined, -1); len(matches) > 0 {
			weight := ind.Weight * float64(len(matches))
			result.Score += weight
			result.Details = append(result.Details, fmt.Sprintf("%s ×%d (+%.1f)", ind.Name, len(matches), weight))
		}
	}

	s.applyStructural(&result, subject, body)

	result.Passes = result.Score < s.threshold
	return result
}

func (s *Scorer) applyStructural(result *Result, subject, body string) {
	add := func(weight float64, detail string) {
		if weight > 0 {
			result.Score += weight
			result.Details = append(result.Details, fmt.Sprintf("%s (+%.1f)", detail, weight))
		}
	}

	if len(subject) > 80 {
		add(s.structural.LongSubject, "subject longer than 80 characters")
	}
	if len(body) < 50 {
		add(s.structural.ShortBody, "body shorter than 50 characters")
	}

	lower := strings.ToLower(body)
	if !strings.Contains(lower, "unsubscribe") {
		add(s.structural.MissingUnsubscribe, "no unsubscribe link")
	}
	if !strings.Contains(lower, "privacy policy") && !strings.Contains(lower, "privacy notice") {
		add(s.structural.MissingPrivacy, "no privacy policy reference")
	}

	combined := subject + " " + body
	if capsWords(combined) >= 2 {
		add(s.structural.ExcessCaps, "excessive ALL-CAPS words")
	}
	if strings.Count(combined, "!") >= 3 {
		add(s.structural.ExcessExclamation, "excessive exclamation marks")
	}
	if strings.Count(combined, "$")+strings.Count(combined, "€")+strings.Count(combined, "£") >= 3 {
		add(s.structural.ExcessCurrency, "excessive currency symbols")
	}
	if imageTextRatio(body) > 0.3 {
		add(s.structural.ImageHeavy, "image-heavy content")
	}
}

// capsWords counts words of four or more letters written entirely in
// upper case. Short acronyms are ignored.
func capsWords(text string) int {
	count := 0
	for _, word := range strings.Fields(text) {
		word = strings.TrimFunc(word, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(word) < 4 {
			continue
		}
		if word == strings.ToUpper(word) && isAlpha(word) {
			count++
		}
	}
	return count
}

func isAlpha(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// imageTextRatio estimates how image-heavy an HTML body is. Each image
// counts as roughly fifty words of content.
func imageTextRatio(body string) float64 {
	imgCount := strings.Count(strings.ToLower(body), "<img")
	if imgCount == 0 {
		return 0
	}
	words := len(strings.Fields(stripTags(body)))
	imgWords := float64(imgCount * 50)
	return imgWords / (imgWords + float64(words))
}

var tagRegex = regexp.MustCompile(`<[^>]*>`)

func stripTags(html string) string {
	return tagRegex.ReplaceAllString(html, " ")
}
