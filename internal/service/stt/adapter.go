// Package stt defines the interface for Speech-to-Text adapters and the
// error codes a listening phase can fail with.
package stt

import (
	"context"
	"errors"
	"fmt"
)

// Callback receives transcript results from the STT provider.
type Callback interface {
	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnError is called when the stream fails. Errors are usually *StreamError.
	OnError(err error)

	// OnEnd is called when the provider closes the stream normally.
	OnEnd()
}

// Adapter defines the interface for STT providers (Google, mock, ...).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Close ends the session and releases resources.
	Close() error
}

// Listener is implemented by adapters that need a receive loop run on its
// own goroutine after Start.
type Listener interface {
	Listen()
}

// ErrorCode classifies a listening failure.
type ErrorCode string

const (
	CodeNoSpeech          ErrorCode = "no-speech"
	CodeAudioCaptureError ErrorCode = "audio-capture-unavailable"
	CodePermissionDenied  ErrorCode = "permission-denied"
	CodeAborted           ErrorCode = "aborted"
	CodeUnknown           ErrorCode = "unknown"
)

// ParseErrorCode maps a recognizer error name to an ErrorCode. Both the
// service's own codes and the browser recognizer names are accepted.
func ParseErrorCode(s string) ErrorCode {
	switch s {
	case "no-speech":
		return CodeNoSpeech
	case "audio-capture", "audio-capture-unavailable":
		return CodeAudioCaptureError
	case "not-allowed", "permission-denied", "service-not-allowed":
		return CodePermissionDenied
	case "aborted":
		return CodeAborted
	default:
		return CodeUnknown
	}
}

// StreamError is a listening failure with a classification code.
type StreamError struct {
	Code ErrorCode
	Err  error
}

// NewStreamError wraps err with code.
func NewStreamError(code ErrorCode, err error) *StreamError {
	return &StreamError{Code: code, Err: err}
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("stt stream error: %s", e.Code)
	}
	return fmt.Sprintf("stt stream error: %s: %v", e.Code, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) ErrorCode {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Code
	}
	return CodeUnknown
}
