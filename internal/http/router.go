package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"consent-reading-service/internal/api/ws"
	"consent-reading-service/internal/app"
	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/observability/logging"
	"consent-reading-service/internal/service/audio"
	"consent-reading-service/internal/service/match"
)

const maxBodyBytes = 64 << 10

// Router serves the HTTP API. Gateway is exposed so the caller can drain
// reading sessions on shutdown; http.Server.Shutdown does not track upgraded
// connections.
type Router struct {
	http.Handler
	Gateway *ws.Gateway
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application) *Router {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if !application.Ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{app: application}
	gateway := newGateway(application)

	// API routes
	r.Route("/v1", func(r chi.Router) {
		r.Get("/catalog", h.listCategories)
		r.Get("/catalog/{category}/{language}", h.statements)
		r.Post("/validate", h.validate)
		r.Post("/match", h.matchWords)
		r.Handle("/sessions/stream", gateway)
	})

	return &Router{Handler: r, Gateway: gateway}
}

func newGateway(a *app.Application) *ws.Gateway {
	cfg := a.Cfg
	return ws.New(ws.Config{
		Catalog:   a.Catalog,
		Publisher: a.Publisher,
		Metrics:   a.Metrics,
		Adapters:  a.Adapters,
		Limits: audio.PhaseLimits{
			MaxAudioBytes: cfg.PhaseLimits.MaxAudioBytes,
			MaxDuration:   cfg.PhaseLimits.MaxDuration,
			MaxPartials:   cfg.PhaseLimits.MaxPartials,
		},
		Reading: ws.ReadingSettings{
			Threshold:       cfg.Reading.Threshold,
			Debounce:        cfg.Reading.Debounce,
			WordWeight:      cfg.Reading.WordWeight,
			MinPrefixLen:    cfg.Reading.MinPrefixLen,
			DefaultCategory: a.DefaultCategory(),
		},
		WriteTimeout:   cfg.Gateway.WriteTimeout,
		AllowedOrigins: cfg.Gateway.AllowedOrigins,
		Logger:         logging.WithComponent("gateway"),
	})
}

type handlers struct {
	app *app.Application
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func (h *handlers) listCategories(w http.ResponseWriter, _ *http.Request) {
	c := h.app.Catalog.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"defaultCategory":  c.DefaultCategory,
		"fallbackLanguage": c.FallbackLanguage,
		"categories":       c.List(),
	})
}

// statements serves the ordered list a session would read. The response
// carries the category and language actually used after fallback.
func (h *handlers) statements(w http.ResponseWriter, r *http.Request) {
	lang, err := catalog.ParseLanguage(chi.URLParam(r, "language"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stmts, err := h.app.Catalog.Catalog().Statements(catalog.Category(chi.URLParam(r, "category")), lang)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category":   stmts[0].Category,
		"language":   stmts[0].Language,
		"locale":     stmts[0].Language.SpeechLocale(),
		"statements": stmts,
	})
}

type validateRequest struct {
	Spoken    string   `json:"spoken"`
	Target    string   `json:"target"`
	Threshold *float64 `json:"threshold,omitempty"`
}

func (h *handlers) validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	threshold := h.app.Cfg.Reading.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	v, err := match.NewValidator(threshold, match.NewScorer(match.WithWordWeight(h.app.Cfg.Reading.WordWeight)))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, match.ErrInvalidThreshold) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, v.Validate(req.Spoken, req.Target))
}

type matchRequest struct {
	Spoken string `json:"spoken"`
	Target string `json:"target"`
}

type matchResponse struct {
	MatchedIndices []int `json:"matchedIndices"`
	WordCount      int   `json:"wordCount"`
}

func (h *handlers) matchWords(w http.ResponseWriter, r *http.Request) {
	var req matchRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	tracker := match.NewTracker(match.WithMinPrefixLen(h.app.Cfg.Reading.MinPrefixLen))
	indices := tracker.MatchedIndices(req.Spoken, req.Target)
	if indices == nil {
		indices = []int{}
	}
	writeJSON(w, http.StatusOK, matchResponse{
		MatchedIndices: indices,
		WordCount:      len(match.Words(req.Target)),
	})
}
