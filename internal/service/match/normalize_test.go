package match

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"case and punctuation", "Hello, World!", "hello world"},
		{"whitespace runs", "  no   one\tthreatened\nme  ", "no one threatened me"},
		{"hyphen removed without space", "anti-social", "antisocial"},
		{"brackets and parens", "Fixed Deposit (FD) {x}", "fixed deposit fd x"},
		{"only punctuation", ".,/#!$%^&*;:{}=-_`~()", ""},
		{"telugu keeps glyphs", "నా మీద, కేసు.", "నా మీద కేసు"},
		{"mixed script", "CBI, CUSTOMS, ED లేదా పోలీస్", "cbi customs ed లేదా పోలీస్"},
		{"apostrophe kept", "I've been", "i've been"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"Hello, World!",
		"No one pressured me to transfer money -- in order to be released.",
		"డిజిటల్ అరెస్ట్ అనేది లేదని సిబిఐ, కస్టమ్స్",
		"a b c",
	}

	for _, in := range inputs {
		once := Normalize(in)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestWords(t *testing.T) {
	got := Words("  No one, threatened me! ")
	want := []string{"no", "one", "threatened", "me"}
	if len(got) != len(want) {
		t.Fatalf("expected %d words, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("word %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	if w := Words(""); len(w) != 0 {
		t.Errorf("expected no words for empty input, got %v", w)
	}
}
