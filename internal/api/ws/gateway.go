// Package ws serves reading sessions over WebSocket. Each connection owns one
// session; closing the socket stops it.
package ws

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/observability/logging"
	"consent-reading-service/internal/observability/metrics"
	"consent-reading-service/internal/schema"
	"consent-reading-service/internal/service/audio"
	"consent-reading-service/internal/service/reading"
)

// Modes accepted in the mode query parameter.
const (
	ModeText  = "text"
	ModeAudio = "audio"
)

const maxMessageBytes = 1 << 20

// ReadingSettings tunes every session the gateway creates.
type ReadingSettings struct {
	Threshold       float64
	Debounce        time.Duration
	WordWeight      float64
	MinPrefixLen    int
	DefaultCategory catalog.Category
}

// EventPublisher delivers reading events. *events.Publisher implements it.
type EventPublisher interface {
	PublishProgress(ctx context.Context, key, eventType string, event any) error
	PublishCompleted(ctx context.Context, key, eventType string, event any) error
}

// Config holds gateway dependencies.
type Config struct {
	Catalog   *catalog.Store
	Publisher EventPublisher
	Metrics   *metrics.Metrics
	Validator *schema.Validator

	// Adapters creates server-side recognizers; nil disables audio mode.
	Adapters audio.AdapterFactory
	Limits   audio.PhaseLimits

	Reading        ReadingSettings
	WriteTimeout   time.Duration
	AllowedOrigins []string
	Logger         zerolog.Logger
}

// Gateway upgrades HTTP requests to reading-session connections.
type Gateway struct {
	cfg      Config
	upgrader websocket.Upgrader

	mu      sync.Mutex
	active  map[*conn]struct{}
	closing bool
	conns   sync.WaitGroup
}

// New creates a Gateway.
func New(cfg Config) *Gateway {
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.DefaultMetrics
	}
	if cfg.Validator == nil {
		cfg.Validator = schema.New()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	g := &Gateway{cfg: cfg, active: make(map[*conn]struct{})}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	if len(cfg.AllowedOrigins) > 0 {
		g.upgrader.CheckOrigin = func(r *http.Request) bool {
			return slices.Contains(cfg.AllowedOrigins, r.Header.Get("Origin"))
		}
	}
	return g
}

// Shutdown refuses new sessions and closes every open connection. Each
// session is stopped and reports its outcome before Shutdown returns, unless
// ctx ends first.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	g.closing = true
	open := make([]*conn, 0, len(g.active))
	for c := range g.active {
		open = append(open, c)
	}
	g.mu.Unlock()

	if len(open) > 0 {
		g.cfg.Logger.Info().Int("sessions", len(open)).Msg("Closing reading sessions")
	}
	for _, c := range open {
		c.goAway()
	}

	done := make(chan struct{})
	go func() {
		g.conns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gateway) shuttingDown() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closing
}

// track registers c unless the gateway is shutting down. Registration and
// the WaitGroup add share the lock so Shutdown never races an Add.
func (g *Gateway) track(c *conn) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closing {
		return false
	}
	g.active[c] = struct{}{}
	g.conns.Add(1)
	return true
}

func (g *Gateway) untrack(c *conn) {
	g.mu.Lock()
	delete(g.active, c)
	g.mu.Unlock()
	g.conns.Done()
}

// sessionRequest is the parsed query of a stream request.
type sessionRequest struct {
	category  catalog.Category
	language  catalog.Language
	mode      string
	reference string
}

func (g *Gateway) parseRequest(r *http.Request) (sessionRequest, error) {
	q := r.URL.Query()
	req := sessionRequest{
		category:  catalog.Category(q.Get("category")),
		language:  catalog.English,
		mode:      strings.ToLower(q.Get("mode")),
		reference: q.Get("reference"),
	}
	if req.category == "" {
		req.category = g.cfg.Reading.DefaultCategory
	}
	if v := q.Get("language"); v != "" {
		lang, err := catalog.ParseLanguage(v)
		if err != nil {
			return req, err
		}
		req.language = lang
	}
	switch req.mode {
	case "":
		req.mode = ModeText
	case ModeText:
	case ModeAudio:
		if g.cfg.Adapters == nil {
			return req, errors.New("audio mode is not available")
		}
	default:
		return req, errors.New("mode must be text or audio")
	}
	return req, nil
}

// ServeHTTP handles GET /v1/sessions/stream.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if g.shuttingDown() {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	req, err := g.parseRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	statements, err := g.cfg.Catalog.Catalog().Statements(req.category, req.language)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	// Report what is actually read after catalog fallback.
	req.category, req.language = statements[0].Category, statements[0].Language

	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		g.cfg.Logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	ws.SetReadLimit(maxMessageBytes)

	id := uuid.NewString()
	c := &conn{
		g:       g,
		ws:      ws,
		id:      id,
		req:     req,
		total:   len(statements),
		started: time.Now(),
		logger:  logging.WithSession(id, string(req.category), string(req.language)),
	}

	if req.mode == ModeAudio {
		c.audio = audio.NewHandler(r.Context(), g.cfg.Adapters, g.cfg.Limits, g.cfg.Metrics, c.logger)
		c.inner = c.audio
	} else {
		c.text = &textCapture{}
		c.inner = c.text
	}

	s := g.cfg.Reading
	session, err := reading.New(statements,
		reading.WithID(id),
		reading.WithCapture(c),
		reading.WithObserver(c),
		reading.WithOnComplete(c.onComplete),
		reading.WithThreshold(s.Threshold),
		reading.WithDebounce(s.Debounce),
		reading.WithWordWeight(s.WordWeight),
		reading.WithMinPrefixLen(s.MinPrefixLen),
		reading.WithLogger(g.cfg.Logger),
	)
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to create reading session")
		ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"))
		ws.Close()
		return
	}
	c.session = session

	if !g.track(c) {
		c.goAway()
		return
	}
	defer g.untrack(c)

	g.cfg.Metrics.RecordSessionStart()
	c.logger.Info().Str("mode", req.mode).Int("statements", c.total).Msg("Reading session connected")

	c.serve(r.Context())
}
