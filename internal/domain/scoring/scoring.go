// Package scoring maps DTW distances onto the 0-100 evaluation scale.
package scoring

import (
	"math"
)

// Score bounds.
const (
	minScoreValue = 0
	maxScoreValue = 100
)

// Grades reported when a pass threshold is configured.
const (
	GradePass = "pass"
	GradeFail = "fail"
)

// FromDistance converts a distance into a score relative to ceiling:
// clamp(100 * (1 - distance/ceiling), 0, 100).
// A distance of 0 scores 100; a distance at or above the ceiling scores 0.
func FromDistance(distance, ceiling float64) float64 {
	if ceiling <= 0 || math.IsNaN(distance) {
		return minScoreValue
	}
	score := maxScoreValue * (1 - distance/ceiling)
	return math.Max(minScoreValue, math.Min(maxScoreValue, score))
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithPassScore enables grading: scores at or above threshold pass.
// A threshold of 0 disables grading.
func WithPassScore(threshold float64) Option {
	return func(p *Policy) {
		if threshold >= minScoreValue && threshold <= maxScoreValue {
			p.passScore = threshold
		}
	}
}

// Policy turns distances into scores and optional grades.
type Policy struct {
	passScore float64
}

// NewPolicy creates a Policy. Grading is disabled unless WithPassScore is given.
func NewPolicy(opts ...Option) *Policy {
	p := &Policy{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Score is FromDistance.
func (p *Policy) Score(distance, ceiling float64) float64 {
	return FromDistance(distance, ceiling)
}

// Grade returns pass/fail for score, or "" when grading is disabled.
func (p *Policy) Grade(score float64) string {
	if p.passScore <= 0 {
		return ""
	}
	if score >= p.passScore {
		return GradePass
	}
	return GradeFail
}

// PassScore returns the configured threshold.
func (p *Policy) PassScore() float64 { return p.passScore }
