package match

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// DefaultThreshold is the minimum score accepted as a successful reading.
const DefaultThreshold = 0.4

// ErrInvalidThreshold is returned when a threshold lies outside [0,1].
var ErrInvalidThreshold = errors.New("similarity threshold must be within [0,1]")

// Reason classifies a verdict.
type Reason string

const (
	ReasonMatched        Reason = "matched"
	ReasonBelowThreshold Reason = "below-threshold"
	ReasonMissingText    Reason = "missing-text"
)

const (
	msgMissingText = "Missing text for comparison"
	msgVerified    = "Statement verified successfully!"
)

// Verdict is the outcome of one validation attempt.
type Verdict struct {
	IsValid           bool    `json:"isValid"`
	SimilarityPercent int     `json:"similarityPercent"`
	Score             float64 `json:"score"`
	Message           string  `json:"message"`
	Reason            Reason  `json:"reason"`
}

// Validator applies an acceptance threshold to a [Scorer].
type Validator struct {
	scorer    *Scorer
	threshold float64
}

// NewValidator returns a Validator using scorer (the default scorer when nil).
func NewValidator(threshold float64, scorer *Scorer) (*Validator, error) {
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidThreshold, threshold)
	}
	if scorer == nil {
		scorer = defaultScorer
	}
	return &Validator{scorer: scorer, threshold: threshold}, nil
}

// Threshold reports the acceptance threshold.
func (v *Validator) Threshold() float64 {
	return v.threshold
}

// Validate compares spoken against target. Blank input on either side is
// reported as missing text rather than a low score.
func (v *Validator) Validate(spoken, target string) Verdict {
	if strings.TrimSpace(spoken) == "" || strings.TrimSpace(target) == "" {
		return Verdict{
			Message: msgMissingText,
			Reason:  ReasonMissingText,
		}
	}

	score := v.scorer.Score(spoken, target)
	percent := int(math.Round(score * 100))
	if score >= v.threshold {
		return Verdict{
			IsValid:           true,
			SimilarityPercent: percent,
			Score:             score,
			Message:           msgVerified,
			Reason:            ReasonMatched,
		}
	}
	return Verdict{
		SimilarityPercent: percent,
		Score:             score,
		Message:           fmt.Sprintf("Match: %d%%. Please read more clearly.", percent),
		Reason:            ReasonBelowThreshold,
	}
}

// Validate checks spoken against target with [DefaultThreshold].
func Validate(spoken, target string) Verdict {
	v, _ := NewValidator(DefaultThreshold, nil)
	return v.Validate(spoken, target)
}
