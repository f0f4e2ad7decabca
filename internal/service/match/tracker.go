package match

import (
	"slices"
	"strings"
	"unicode/utf8"
)

// DefaultMinPrefixLen is the shortest word allowed to prefix-match another.
// It is a tuning value, not a correctness constant.
const DefaultMinPrefixLen = 3

// TrackerOption configures a [Tracker].
type TrackerOption func(*Tracker)

// WithMinPrefixLen sets the minimum length for prefix matches.
func WithMinPrefixLen(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.minPrefixLen = n
		}
	}
}

// Tracker reports which words of a statement have been spoken so far.
// It keeps no state between calls: every call recomputes from the full
// transcript because interim text can be revised or shrink.
type Tracker struct {
	minPrefixLen int
}

// NewTracker returns a Tracker with the given options.
func NewTracker(opts ...TrackerOption) *Tracker {
	t := &Tracker{minPrefixLen: DefaultMinPrefixLen}
	for _, o := range opts {
		o(t)
	}
	return t
}

var defaultTracker = NewTracker()

// MatchedIndices is shorthand for the default Tracker's MatchedIndices.
func MatchedIndices(spokenSoFar, target string) []int {
	return defaultTracker.MatchedIndices(spokenSoFar, target)
}

// MatchedIndices returns the ascending indices of target words considered
// spoken.
//
// Target words are walked in order against a spoken-side cursor. A word
// matches the cursor word when equal or when either is a prefix of the other
// and the prefix is at least the minimum length; a match advances the cursor.
// A target word that fails at the cursor but occurs anywhere in the spoken
// words is still recorded, without moving the cursor. The walk stops once
// every spoken word has been consumed.
func (t *Tracker) MatchedIndices(spokenSoFar, target string) []int {
	spoken := Words(spokenSoFar)
	words := Words(target)

	matched := make([]int, 0, len(words))
	cursor := 0
	for i := 0; i < len(words) && cursor < len(spoken); i++ {
		switch {
		case t.wordMatches(spoken[cursor], words[i]):
			matched = append(matched, i)
			cursor++
		case slices.Contains(spoken, words[i]):
			matched = append(matched, i)
		}
	}
	return matched
}

func (t *Tracker) wordMatches(spoken, target string) bool {
	if spoken == target {
		return true
	}
	if utf8.RuneCountInString(spoken) >= t.minPrefixLen && strings.HasPrefix(target, spoken) {
		return true
	}
	return utf8.RuneCountInString(target) >= t.minPrefixLen && strings.HasPrefix(spoken, target)
}
