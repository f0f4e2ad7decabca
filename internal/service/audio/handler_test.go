package audio

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/observability/metrics"
	"consent-reading-service/internal/service/reading"
	"consent-reading-service/internal/service/stt"
	"consent-reading-service/internal/service/stt/mock"
)

// testAdapter implements stt.Adapter for testing
type testAdapter struct {
	mu      sync.Mutex
	started bool
	closed  bool
	audio   [][]byte
	cb      stt.Callback
}

func (m *testAdapter) Start(ctx context.Context, cb stt.Callback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = true
	m.cb = cb
	return nil
}

func (m *testAdapter) SendAudio(ctx context.Context, audio []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audio = append(m.audio, audio)
	return nil
}

func (m *testAdapter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *testAdapter) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// sessionCallback records what reaches the session.
type sessionCallback struct {
	mu       sync.Mutex
	partials []string
	finals   []string
	errs     []error
	ends     int
}

func (c *sessionCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *sessionCallback) OnFinal(text string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, text)
}

func (c *sessionCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, err)
}

func (c *sessionCallback) OnEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ends++
}

func newTestHandler(adapter *testAdapter, limits PhaseLimits) (*Handler, *[]string) {
	var locales []string
	factory := func(locale string) (stt.Adapter, error) {
		locales = append(locales, locale)
		return adapter, nil
	}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	return NewHandler(context.Background(), factory, limits, m, zerolog.Nop()), &locales
}

func listenRequest(lang catalog.Language) reading.ListenRequest {
	return reading.ListenRequest{
		SessionID: "sess-1",
		Phase:     1,
		Statement: catalog.Statement{Text: "No one threatened me", Language: lang},
	}
}

func TestHandler_StartListening_UsesLocale(t *testing.T) {
	adapter := &testAdapter{}
	handler, locales := newTestHandler(adapter, DefaultLimits())

	if err := handler.StartListening(listenRequest(catalog.Telugu), &sessionCallback{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !adapter.started {
		t.Error("expected adapter to be started")
	}
	if len(*locales) != 1 || (*locales)[0] != "te-IN" {
		t.Errorf("expected locale te-IN, got %v", *locales)
	}

	if err := handler.StartListening(listenRequest(catalog.English), &sessionCallback{}); !errors.Is(err, reading.ErrListenOutstanding) {
		t.Errorf("expected ErrListenOutstanding, got %v", err)
	}
}

func TestHandler_FactoryError(t *testing.T) {
	handler := NewHandler(context.Background(), func(string) (stt.Adapter, error) {
		return nil, errors.New("no credentials")
	}, DefaultLimits(), nil, zerolog.Nop())

	err := handler.StartListening(listenRequest(catalog.English), &sessionCallback{})
	if stt.CodeOf(err) != stt.CodeAudioCaptureError {
		t.Errorf("expected audio-capture-unavailable, got %v", err)
	}
}

func TestHandler_MaxAudioBytesLimit(t *testing.T) {
	adapter := &testAdapter{}
	handler, _ := newTestHandler(adapter, PhaseLimits{
		MaxAudioBytes: 100, // 100 bytes max
		MaxDuration:   time.Hour,
		MaxPartials:   1000,
	})
	cb := &sessionCallback{}
	handler.StartListening(listenRequest(catalog.English), cb)

	ctx := context.Background()

	// Send 50 bytes - should succeed
	if err := handler.SendAudio(ctx, make([]byte, 50)); err != nil {
		t.Fatalf("First send should succeed: %v", err)
	}
	// Send another 50 bytes - should succeed (exactly at limit)
	if err := handler.SendAudio(ctx, make([]byte, 50)); err != nil {
		t.Fatalf("Second send should succeed: %v", err)
	}
	// Send 1 more byte - should fail
	if err := handler.SendAudio(ctx, make([]byte, 1)); !errors.Is(err, ErrPhaseLimit) {
		t.Fatalf("expected ErrPhaseLimit, got %v", err)
	}

	if len(adapter.audio) != 2 {
		t.Errorf("expected 2 frames forwarded, got %d", len(adapter.audio))
	}
	if !adapter.isClosed() {
		t.Error("expected adapter closed after abort")
	}
	if len(cb.errs) != 1 || stt.CodeOf(cb.errs[0]) != stt.CodeAborted {
		t.Errorf("expected aborted stream error, got %v", cb.errs)
	}

	// Frames after the abort are discarded quietly
	if err := handler.SendAudio(ctx, make([]byte, 10)); err != nil {
		t.Errorf("expected frames between phases to be dropped, got %v", err)
	}
	if _, ok := handler.CurrentPhase(); ok {
		t.Error("expected no active phase")
	}
}

func TestHandler_MaxPartialsLimit(t *testing.T) {
	adapter := &testAdapter{}
	handler, _ := newTestHandler(adapter, PhaseLimits{
		MaxAudioBytes: 1000000,
		MaxDuration:   time.Hour,
		MaxPartials:   3,
	})
	cb := &sessionCallback{}
	handler.StartListening(listenRequest(catalog.English), cb)

	for i := 0; i < 5; i++ {
		adapter.cb.OnPartial("no one")
	}

	if len(cb.partials) != 3 {
		t.Errorf("expected 3 partials delivered, got %d", len(cb.partials))
	}
	if len(cb.errs) != 1 || stt.CodeOf(cb.errs[0]) != stt.CodeAborted {
		t.Errorf("expected one aborted error, got %v", cb.errs)
	}
}

func TestHandler_MaxDurationLimit(t *testing.T) {
	adapter := &testAdapter{}
	handler, _ := newTestHandler(adapter, PhaseLimits{
		MaxAudioBytes: 1000000,
		MaxDuration:   100 * time.Millisecond,
		MaxPartials:   1000,
	})
	cb := &sessionCallback{}
	handler.StartListening(listenRequest(catalog.English), cb)

	// Simulate a phase that started long ago
	handler.mu.Lock()
	handler.phase.started = time.Now().Add(-time.Second)
	handler.mu.Unlock()

	if err := handler.SendAudio(context.Background(), make([]byte, 10)); !errors.Is(err, ErrPhaseLimit) {
		t.Fatalf("expected ErrPhaseLimit, got %v", err)
	}
	if len(cb.errs) != 1 {
		t.Errorf("expected 1 error, got %d", len(cb.errs))
	}
}

func TestHandler_StopListening_MutesCallbacks(t *testing.T) {
	adapter := &testAdapter{}
	handler, _ := newTestHandler(adapter, DefaultLimits())
	cb := &sessionCallback{}
	handler.StartListening(listenRequest(catalog.English), cb)

	adapter.cb.OnPartial("No")
	handler.StopListening()
	handler.StopListening()

	adapter.cb.OnPartial("No one")
	adapter.cb.OnFinal("No one threatened me", 0.9)
	adapter.cb.OnEnd()

	if len(cb.partials) != 1 || len(cb.finals) != 0 || cb.ends != 0 {
		t.Errorf("expected only the first partial, got partials=%v finals=%v ends=%d", cb.partials, cb.finals, cb.ends)
	}
	if !adapter.isClosed() {
		t.Error("expected adapter closed")
	}

	// A new phase may start once the previous one is closed
	if err := handler.StartListening(listenRequest(catalog.English), cb); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandler_PhaseMetrics(t *testing.T) {
	adapter := &testAdapter{}
	handler, _ := newTestHandler(adapter, DefaultLimits())
	handler.StartListening(listenRequest(catalog.English), &sessionCallback{})

	handler.SendAudio(context.Background(), make([]byte, 60))
	handler.SendAudio(context.Background(), make([]byte, 40))
	adapter.cb.OnPartial("a")
	adapter.cb.OnPartial("a b")

	pm, ok := handler.CurrentPhase()
	if !ok {
		t.Fatal("expected active phase")
	}
	if pm.AudioBytes != 100 {
		t.Errorf("Expected 100 audio bytes, got %d", pm.AudioBytes)
	}
	if pm.PartialCount != 2 {
		t.Errorf("Expected 2 partials, got %d", pm.PartialCount)
	}
}

func TestHandler_DefaultLimits(t *testing.T) {
	limits := DefaultLimits()

	if limits.MaxAudioBytes != 5*1024*1024 {
		t.Errorf("Expected MaxAudioBytes 5MB, got %d", limits.MaxAudioBytes)
	}
	if limits.MaxDuration != 2*time.Minute {
		t.Errorf("Expected MaxDuration 2m, got %v", limits.MaxDuration)
	}
	if limits.MaxPartials != 500 {
		t.Errorf("Expected MaxPartials 500, got %d", limits.MaxPartials)
	}
}

// TestHandler_SessionWithMockSTT drives a full session through the mock
// recognizer, one frame at a time.
func TestHandler_SessionWithMockSTT(t *testing.T) {
	texts := []string{"No one has threatened me", "I am not under pressure"}
	stmts := make([]catalog.Statement, len(texts))
	for i, text := range texts {
		stmts[i] = catalog.Statement{Text: text, Language: catalog.English, Index: i}
	}

	var mu sync.Mutex
	next := 0
	factory := func(string) (stt.Adapter, error) {
		mu.Lock()
		defer mu.Unlock()
		utt := mock.ForStatement(texts[next%len(texts)], 0.9)
		next++
		return mock.New(mock.WithUtterance(utt), mock.WithDelay(time.Millisecond)), nil
	}

	handler := NewHandler(context.Background(), factory, DefaultLimits(), nil, zerolog.Nop())
	done := make(chan struct{})
	session, err := reading.New(stmts,
		reading.WithCapture(handler),
		reading.WithDebounce(20*time.Millisecond),
		reading.WithOnComplete(func() { close(done) }),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := session.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.After(5 * time.Second)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			p := session.Progress()
			if !p.IsComplete || p.CurrentIndex != len(texts) {
				t.Errorf("unexpected progress %+v", p)
			}
			return
		case <-deadline:
			t.Fatalf("session did not complete, progress %+v", session.Progress())
		case <-ticker.C:
			handler.SendAudio(context.Background(), make([]byte, 320))
		}
	}
}
