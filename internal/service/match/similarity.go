package match

import (
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"
)

// DefaultWordWeight is the share of the final score taken by word overlap.
// The remainder goes to character similarity.
const DefaultWordWeight = 0.7

// ScorerOption configures a [Scorer].
type ScorerOption func(*Scorer)

// WithWordWeight sets the word-overlap weight. Values outside [0,1] are
// clamped.
func WithWordWeight(w float64) ScorerOption {
	return func(s *Scorer) {
		s.wordWeight = clamp01(w)
	}
}

// Scorer computes similarity between a spoken transcript and a target
// statement. It is read-only after construction and safe for concurrent use.
type Scorer struct {
	wordWeight float64
}

// NewScorer returns a Scorer with the default 0.7/0.3 weighting unless
// overridden.
func NewScorer(opts ...ScorerOption) *Scorer {
	s := &Scorer{wordWeight: DefaultWordWeight}
	for _, o := range opts {
		o(s)
	}
	return s
}

// WordWeight reports the configured word-overlap weight.
func (s *Scorer) WordWeight() float64 {
	return s.wordWeight
}

var defaultScorer = NewScorer()

// Score is shorthand for the default Scorer's Score.
func Score(spoken, target string) float64 {
	return defaultScorer.Score(spoken, target)
}

// Score returns a value in [0,1]. Both inputs are normalized first; an empty
// normalized spoken or target string scores 0.
//
// The result is not symmetric in its arguments: word overlap is counted from
// the spoken side, so repeated spoken words can each match the same target
// word.
func (s *Scorer) Score(spoken, target string) float64 {
	a := Normalize(spoken)
	b := Normalize(target)
	if a == "" || b == "" {
		return 0
	}

	score := s.wordWeight*wordOverlap(strings.Split(a, " "), strings.Split(b, " ")) +
		(1-s.wordWeight)*charSimilarity(a, b)
	return clamp01(score)
}

// wordOverlap counts spoken words contained in, or containing, any target
// word and divides by the longer word list.
func wordOverlap(spoken, target []string) float64 {
	matched := 0
	for _, sw := range spoken {
		for _, tw := range target {
			if strings.Contains(tw, sw) || strings.Contains(sw, tw) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(max(len(spoken), len(target)))
}

// charSimilarity is 1 - levenshtein/maxLen over runes, floored at 0.
func charSimilarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	dist := matchr.Levenshtein(a, b)
	if dist >= maxLen {
		return 0
	}
	return 1 - float64(dist)/float64(maxLen)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
