// Package audio provides server-side listening: one STT adapter per listening
// phase, fed with audio frames pushed by the client.
package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"consent-reading-service/internal/observability/logging"
	"consent-reading-service/internal/observability/metrics"
	"consent-reading-service/internal/service/reading"
	"consent-reading-service/internal/service/stt"
)

// PhaseLimits defines safety guardrails for a listening phase.
// These prevent unbounded resource usage and ensure backpressure.
type PhaseLimits struct {
	MaxAudioBytes int64         // Max audio per phase
	MaxDuration   time.Duration // Max phase duration
	MaxPartials   int           // Max partial transcripts per phase
}

// DefaultLimits returns sensible default limits.
func DefaultLimits() PhaseLimits {
	return PhaseLimits{
		MaxAudioBytes: 5 * 1024 * 1024, // 5MB (~160 seconds at 16kHz 16-bit mono)
		MaxDuration:   2 * time.Minute, // a single statement never takes this long
		MaxPartials:   500,
	}
}

// ErrPhaseLimit is returned by SendAudio when a frame pushes the phase past a limit.
var ErrPhaseLimit = errors.New("listening phase limit exceeded")

// AdapterFactory creates an STT adapter for a speech locale.
type AdapterFactory func(locale string) (stt.Adapter, error)

// Handler implements reading.Capture for audio mode. Each listening phase
// gets its own adapter; frames arriving between phases are discarded.
type Handler struct {
	ctx     context.Context
	factory AdapterFactory
	limits  PhaseLimits
	metrics *metrics.Metrics
	logger  zerolog.Logger

	mu    sync.Mutex
	phase *phase
}

// phase is the state of one listening phase.
type phase struct {
	id       uint64
	adapter  stt.Adapter
	cb       stt.Callback
	cancel   context.CancelFunc
	started  time.Time
	bytes    int64
	partials int
	closed   bool
	logger   zerolog.Logger
}

// NewHandler creates a capture handler. ctx bounds every adapter stream it
// opens; m may be nil.
func NewHandler(ctx context.Context, factory AdapterFactory, limits PhaseLimits, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	return &Handler{
		ctx:     ctx,
		factory: factory,
		limits:  limits,
		metrics: m,
		logger:  logger,
	}
}

// StartListening opens an adapter for the statement's locale.
func (h *Handler) StartListening(req reading.ListenRequest, cb stt.Callback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.phase != nil && !h.phase.closed {
		return reading.ErrListenOutstanding
	}

	locale := req.Statement.Language.SpeechLocale()
	adapter, err := h.factory(locale)
	if err != nil {
		h.logger.Warn().Err(err).Str("locale", locale).Msg("Failed to create STT adapter")
		return stt.NewStreamError(stt.CodeAudioCaptureError, err)
	}

	ctx, cancel := context.WithCancel(h.ctx)
	p := &phase{
		id:      req.Phase,
		adapter: adapter,
		cb:      cb,
		cancel:  cancel,
		started: time.Now(),
		logger:  logging.WithPhase(req.SessionID, req.Statement.Index, req.Phase),
	}
	if err := adapter.Start(ctx, &phaseCallback{h: h, p: p}); err != nil {
		cancel()
		return err
	}
	if l, ok := adapter.(stt.Listener); ok {
		go l.Listen()
	}
	h.phase = p

	p.logger.Debug().Str("locale", locale).Msg("Listening phase opened")
	return nil
}

// StopListening closes the current phase's adapter. Idempotent.
func (h *Handler) StopListening() {
	h.mu.Lock()
	p := h.phase
	closing := p != nil && !p.closed
	if closing {
		p.closed = true
	}
	h.mu.Unlock()

	if closing {
		h.release(p)
	}
}

func (h *Handler) release(p *phase) {
	if err := p.adapter.Close(); err != nil {
		p.logger.Warn().Err(err).Msg("Failed to close STT adapter")
	}
	p.cancel()
}

// SendAudio forwards a frame to the active phase's adapter.
// Returns ErrPhaseLimit if the phase limits are exceeded (phase is aborted).
func (h *Handler) SendAudio(ctx context.Context, audio []byte) error {
	h.mu.Lock()
	p := h.phase
	if p == nil || p.closed {
		h.mu.Unlock()
		return nil
	}
	p.bytes += int64(len(audio))
	reason, limitType := h.checkLimitsLocked(p)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.RecordAudioReceived(len(audio))
	}
	if reason != "" {
		h.abort(p, limitType, reason)
		return fmt.Errorf("%w: %s", ErrPhaseLimit, reason)
	}
	return p.adapter.SendAudio(ctx, audio)
}

func (h *Handler) checkLimitsLocked(p *phase) (reason, limitType string) {
	if h.limits.MaxAudioBytes > 0 && p.bytes > h.limits.MaxAudioBytes {
		return fmt.Sprintf("max audio bytes exceeded: %d > %d", p.bytes, h.limits.MaxAudioBytes), "max_audio_bytes"
	}
	if elapsed := time.Since(p.started); h.limits.MaxDuration > 0 && elapsed > h.limits.MaxDuration {
		return fmt.Sprintf("max duration exceeded: %v > %v", elapsed.Round(time.Millisecond), h.limits.MaxDuration), "max_duration"
	}
	return "", ""
}

// abort ends p and reports an aborted stream error to the session.
func (h *Handler) abort(p *phase, limitType, reason string) {
	h.mu.Lock()
	if p.closed {
		h.mu.Unlock()
		return
	}
	p.closed = true
	h.mu.Unlock()

	p.logger.Warn().Str("reason", reason).Msg("Listening phase aborted")
	if h.metrics != nil {
		h.metrics.RecordLimitExceeded(limitType)
	}
	h.release(p)
	p.cb.OnError(stt.NewStreamError(stt.CodeAborted, fmt.Errorf("%w: %s", ErrPhaseLimit, reason)))
}

// PhaseMetrics holds current phase usage.
type PhaseMetrics struct {
	AudioBytes   int64
	PartialCount int
	Duration     time.Duration
}

// CurrentPhase returns usage of the active phase, or false if none is open.
func (h *Handler) CurrentPhase() (PhaseMetrics, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.phase == nil || h.phase.closed {
		return PhaseMetrics{}, false
	}
	return PhaseMetrics{
		AudioBytes:   h.phase.bytes,
		PartialCount: h.phase.partials,
		Duration:     time.Since(h.phase.started),
	}, true
}

// phaseCallback sits between the adapter and the session, enforcing the
// partial limit and muting a phase once it is closed. Session callbacks are
// never invoked with h.mu held.
type phaseCallback struct {
	h *Handler
	p *phase
}

func (c *phaseCallback) live() bool {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return !c.p.closed
}

func (c *phaseCallback) OnPartial(text string) {
	c.h.mu.Lock()
	if c.p.closed {
		c.h.mu.Unlock()
		return
	}
	c.p.partials++
	count := c.p.partials
	c.h.mu.Unlock()

	if c.h.limits.MaxPartials > 0 && count > c.h.limits.MaxPartials {
		c.h.abort(c.p, "max_partials", fmt.Sprintf("max partials exceeded: %d > %d", count, c.h.limits.MaxPartials))
		return
	}
	c.p.cb.OnPartial(text)
}

func (c *phaseCallback) OnFinal(text string, confidence float64) {
	if c.live() {
		c.p.cb.OnFinal(text, confidence)
	}
}

func (c *phaseCallback) OnError(err error) {
	if c.live() {
		c.p.cb.OnError(err)
	}
}

func (c *phaseCallback) OnEnd() {
	if c.live() {
		c.p.cb.OnEnd()
	}
}
