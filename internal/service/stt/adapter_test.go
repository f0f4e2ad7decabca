package stt

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected ErrorCode
	}{
		{"no-speech", CodeNoSpeech},
		{"audio-capture", CodeAudioCaptureError},
		{"audio-capture-unavailable", CodeAudioCaptureError},
		{"not-allowed", CodePermissionDenied},
		{"permission-denied", CodePermissionDenied},
		{"aborted", CodeAborted},
		{"network", CodeUnknown},
		{"", CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseErrorCode(tt.input); got != tt.expected {
				t.Errorf("ParseErrorCode(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestStreamError_Unwrap(t *testing.T) {
	cause := errors.New("mic busy")
	err := fmt.Errorf("listen: %w", NewStreamError(CodeAudioCaptureError, cause))

	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable")
	}
	if got := CodeOf(err); got != CodeAudioCaptureError {
		t.Errorf("expected code %q, got %q", CodeAudioCaptureError, got)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Errorf("expected unknown code for plain error, got %q", got)
	}
}

func TestStreamError_Message(t *testing.T) {
	if got := NewStreamError(CodeNoSpeech, nil).Error(); got != "stt stream error: no-speech" {
		t.Errorf("unexpected message: %s", got)
	}
}
