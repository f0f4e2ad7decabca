package match

import (
	"slices"
	"strings"
	"testing"
)

func TestMatchedIndices_ProgressiveReading(t *testing.T) {
	target := "No one threatened me"

	tests := []struct {
		spoken   string
		expected []int
	}{
		{"No", []int{0}},
		{"No one", []int{0, 1}},
		{"No one threat", []int{0, 1, 2}},
		{"No one threatened me", []int{0, 1, 2, 3}},
	}

	for _, tt := range tests {
		got := MatchedIndices(tt.spoken, target)
		if !slices.Equal(got, tt.expected) {
			t.Errorf("MatchedIndices(%q) = %v, want %v", tt.spoken, got, tt.expected)
		}
	}

	if v := Validate("No one threatened me", target); !v.IsValid || v.SimilarityPercent < 90 {
		t.Errorf("expected final reading to validate at >= 90%%, got %+v", v)
	}
}

func TestMatchedIndices_Fallback(t *testing.T) {
	tests := []struct {
		name     string
		spoken   string
		target   string
		expected []int
	}{
		{"first word dropped", "banana cherry", "apple banana cherry", []int{1, 2}},
		{"reordered", "cherry apple", "apple banana cherry", []int{0, 2}},
		{"garbled middle word", "apple bnana cherry", "apple banana cherry", []int{0, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MatchedIndices(tt.spoken, tt.target)
			if !slices.Equal(got, tt.expected) {
				t.Errorf("expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestMatchedIndices_ShortPrefixIgnored(t *testing.T) {
	if got := MatchedIndices("th", "the cat"); len(got) != 0 {
		t.Errorf("expected no match for 2-letter prefix, got %v", got)
	}

	tr := NewTracker(WithMinPrefixLen(2))
	if got := tr.MatchedIndices("th", "the cat"); !slices.Equal(got, []int{0}) {
		t.Errorf("expected [0] with min prefix 2, got %v", got)
	}
}

func TestMatchedIndices_SpokenLongerThanTarget(t *testing.T) {
	// "threatening" starts with "threat", so the longer spoken word still counts.
	got := MatchedIndices("no threatening", "no threat")
	if !slices.Equal(got, []int{0, 1}) {
		t.Errorf("expected [0 1], got %v", got)
	}
}

func TestMatchedIndices_RecomputedAfterShrink(t *testing.T) {
	target := "No one threatened me"
	_ = MatchedIndices("No one threat", target)
	if got := MatchedIndices("No", target); !slices.Equal(got, []int{0}) {
		t.Errorf("expected [0] after interim shrink, got %v", got)
	}
}

func TestMatchedIndices_Telugu(t *testing.T) {
	target := "నా మీద నాన్ బెయిలెబుల్ కేసు"
	got := MatchedIndices("నా మీద", target)
	if !slices.Equal(got, []int{0, 1}) {
		t.Errorf("expected [0 1], got %v", got)
	}
}

func TestMatchedIndices_WithinBounds(t *testing.T) {
	target := "No one threatened me stating that my phone number is linked"
	wordCount := len(Words(target))

	inputs := []string{
		"",
		"   ",
		"!!!",
		strings.Repeat("no one threatened me ", 500),
		strings.Repeat("linked number phone ", 300),
		target + " " + target,
	}

	for _, in := range inputs {
		got := MatchedIndices(in, target)
		for i, idx := range got {
			if idx < 0 || idx >= wordCount {
				t.Errorf("index %d out of range [0,%d)", idx, wordCount)
			}
			if i > 0 && got[i-1] >= idx {
				t.Errorf("indices not strictly increasing: %v", got)
			}
		}
	}
}
