// Package mock provides a mock STT adapter for testing without cloud credentials.
// It replays a scripted utterance: one progressive partial per audio frame, then
// exactly one final (or a scripted failure). End of stream follows Close, as it
// does for a provider stream after CloseSend.
package mock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"consent-reading-service/internal/service/stt"
)

// DefaultDelay is the simulated recognition latency per event.
const DefaultDelay = 50 * time.Millisecond

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final

	// Fail, when set, ends the utterance with a stream error instead of a final.
	Fail stt.ErrorCode
}

// ForStatement builds an utterance that reads text word by word.
func ForStatement(text string, confidence float64) SimulatedUtterance {
	words := strings.Fields(text)
	partials := make([]string, 0, len(words))
	for i := 1; i < len(words); i++ {
		partials = append(partials, strings.Join(words[:i], " "))
	}
	return SimulatedUtterance{Partials: partials, Final: text, Confidence: confidence}
}

// DefaultUtterances are cycled through by adapters created without a script.
var DefaultUtterances = []SimulatedUtterance{
	ForStatement("No one has threatened me.", 0.94),
	ForStatement("No one has pressured me to transfer money.", 0.91),
	ForStatement("I am doing this transaction of my own free will.", 0.89),
	{
		Partials:   []string{"I understand"},
		Final:      "I understand the police never arrest anyone over a video call",
		Confidence: 0.87,
	},
}

// utteranceCounter tracks which utterance to use next (cycles through defaults)
var (
	utteranceCounter int
	counterMu        sync.Mutex
)

// Option configures an Adapter.
type Option func(*Adapter)

// WithUtterance scripts the utterance instead of cycling the defaults.
func WithUtterance(u SimulatedUtterance) Option {
	return func(a *Adapter) {
		a.utterance = u
		a.scripted = true
	}
}

// WithDelay sets the latency applied before each delivered event.
func WithDelay(d time.Duration) Option {
	return func(a *Adapter) {
		if d >= 0 {
			a.delay = d
		}
	}
}

// Adapter implements stt.Adapter with mock responses. Events are delivered in
// order from a single goroutine, like a provider's receive loop.
type Adapter struct {
	mu            sync.Mutex
	cb            stt.Callback
	queue         chan func()
	utterance     SimulatedUtterance
	scripted      bool
	delay         time.Duration
	audioReceived int  // Count of audio frames received
	partialIndex  int  // Next partial to send
	finalSent     bool // Ensures only one final per utterance
	closed        bool
}

// New creates a new mock STT adapter.
func New(opts ...Option) *Adapter {
	a := &Adapter{delay: DefaultDelay}
	for _, o := range opts {
		o(a)
	}
	if !a.scripted {
		counterMu.Lock()
		a.utterance = DefaultUtterances[utteranceCounter%len(DefaultUtterances)]
		utteranceCounter++
		counterMu.Unlock()
	}
	return a
}

// Start begins a mock transcription session.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errors.New("mock adapter closed")
	}
	if a.cb != nil {
		return errors.New("mock adapter already started")
	}
	a.cb = cb
	// Each frame queues at most one event, and the utterance has a bounded
	// number of them, so enqueueing never blocks.
	a.queue = make(chan func(), len(a.utterance.Partials)+3)
	go a.deliver(a.queue)
	return nil
}

func (a *Adapter) deliver(queue <-chan func()) {
	for ev := range queue {
		if a.delay > 0 {
			time.Sleep(a.delay)
		}
		ev()
	}
}

// SendAudio simulates receiving audio and triggers progressive partial transcripts.
// When all partials are sent, the next frame completes the utterance (like
// silence detection).
func (a *Adapter) SendAudio(ctx context.Context, audio []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.cb == nil {
		return nil
	}

	a.audioReceived++

	if a.partialIndex < len(a.utterance.Partials) {
		text := a.utterance.Partials[a.partialIndex]
		a.partialIndex++
		cb := a.cb
		a.queue <- func() { cb.OnPartial(text) }
		return nil
	}
	if !a.finalSent {
		a.finalSent = true
		a.queue <- a.finish()
	}
	return nil
}

func (a *Adapter) finish() func() {
	cb := a.cb
	utt := a.utterance
	return func() {
		if utt.Fail != "" {
			cb.OnError(stt.NewStreamError(utt.Fail, errors.New("simulated recognizer failure")))
			return
		}
		cb.OnFinal(utt.Final, utt.Confidence)
	}
}

// AudioFrames reports how many frames have been received.
func (a *Adapter) AudioFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audioReceived
}

// Close ends the mock session.
// If the final wasn't sent via SendAudio (stream ended early), it is flushed
// now, followed by end of stream.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	if a.queue == nil {
		return nil
	}
	if !a.finalSent {
		a.finalSent = true
		a.queue <- a.finish()
	}
	if a.utterance.Fail == "" {
		cb := a.cb
		a.queue <- cb.OnEnd
	}
	close(a.queue)
	return nil
}
