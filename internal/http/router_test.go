package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"consent-reading-service/internal/app"
	"consent-reading-service/internal/config"
)

func newTestApp(t *testing.T) *app.Application {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	a, err := app.New(context.Background(), config.Load())
	if err != nil {
		t.Fatalf("failed to create application: %v", err)
	}
	return a
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	a := newTestApp(t)
	router := NewRouter(a)

	if rec := do(t, router, http.MethodGet, "/v1/liveness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected liveness 200, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected readiness 503 before start, got %d", rec.Code)
	}
	a.Start()
	if rec := do(t, router, http.MethodGet, "/v1/readiness", ""); rec.Code != http.StatusOK {
		t.Errorf("expected readiness 200 after start, got %d", rec.Code)
	}
}

func TestRouter_Catalog(t *testing.T) {
	router := NewRouter(newTestApp(t))

	rec := do(t, router, http.MethodGet, "/v1/catalog", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		DefaultCategory string `json:"defaultCategory"`
		Categories      []struct {
			Key string `json:"key"`
		} `json:"categories"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("bad JSON: %v", err)
	}
	if list.DefaultCategory != "digital-arrest" || len(list.Categories) != 3 {
		t.Errorf("unexpected catalog listing %+v", list)
	}
}

func TestRouter_Statements(t *testing.T) {
	router := NewRouter(newTestApp(t))

	tests := []struct {
		name         string
		path         string
		wantStatus   int
		wantCategory string
		wantLocale   string
	}{
		{"english", "/v1/catalog/investment-fraud/en", http.StatusOK, "investment-fraud", "en-US"},
		{"telugu", "/v1/catalog/digital-arrest/te", http.StatusOK, "digital-arrest", "te-IN"},
		{"unknown category falls back", "/v1/catalog/lottery/en", http.StatusOK, "digital-arrest", "en-US"},
		{"unknown language", "/v1/catalog/digital-arrest/fr", http.StatusBadRequest, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, tt.path, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rec.Code, rec.Body)
			}
			var body struct {
				Category   string            `json:"category"`
				Locale     string            `json:"locale"`
				Statements []json.RawMessage `json:"statements"`
				Error      string            `json:"error"`
			}
			json.Unmarshal(rec.Body.Bytes(), &body)
			if tt.wantStatus != http.StatusOK {
				if body.Error == "" {
					t.Error("expected error message")
				}
				return
			}
			if body.Category != tt.wantCategory || body.Locale != tt.wantLocale || len(body.Statements) == 0 {
				t.Errorf("unexpected response %+v", body)
			}
		})
	}
}

func TestRouter_Validate(t *testing.T) {
	router := NewRouter(newTestApp(t))

	rec := do(t, router, http.MethodPost, "/v1/validate",
		`{"spoken":"no one threatened me","target":"No one threatened me."}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var verdict struct {
		IsValid           bool   `json:"isValid"`
		SimilarityPercent int    `json:"similarityPercent"`
		Reason            string `json:"reason"`
	}
	json.Unmarshal(rec.Body.Bytes(), &verdict)
	if !verdict.IsValid || verdict.SimilarityPercent != 100 || verdict.Reason != "matched" {
		t.Errorf("unexpected verdict %+v", verdict)
	}

	rec = do(t, router, http.MethodPost, "/v1/validate", `{"spoken":"","target":"No one threatened me"}`)
	json.Unmarshal(rec.Body.Bytes(), &verdict)
	if verdict.IsValid || verdict.Reason != "missing-text" {
		t.Errorf("expected missing-text verdict, got %+v", verdict)
	}

	bad := []string{
		`{"spoken":"a","target":"a","threshold":1.5}`,
		`{"spoken":"a","target":"a","extra":true}`,
		`not json`,
	}
	for _, body := range bad {
		if rec := do(t, router, http.MethodPost, "/v1/validate", body); rec.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for %s, got %d", body, rec.Code)
		}
	}
}

func TestRouter_Match(t *testing.T) {
	router := NewRouter(newTestApp(t))

	rec := do(t, router, http.MethodPost, "/v1/match", `{"spoken":"no one threat","target":"No one threatened me"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp matchResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.MatchedIndices) != 3 || resp.MatchedIndices[2] != 2 || resp.WordCount != 4 {
		t.Errorf("unexpected match response %+v", resp)
	}

	rec = do(t, router, http.MethodPost, "/v1/match", `{"spoken":"","target":"No one"}`)
	if !strings.Contains(rec.Body.String(), `"matchedIndices":[]`) {
		t.Errorf("expected empty index list, got %s", rec.Body)
	}
}

func TestRouter_StreamRequiresUpgrade(t *testing.T) {
	router := NewRouter(newTestApp(t))

	rec := do(t, router, http.MethodGet, "/v1/sessions/stream", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without upgrade headers, got %d", rec.Code)
	}
}

func TestRouter_StreamRefusedAfterGatewayShutdown(t *testing.T) {
	router := NewRouter(newTestApp(t))

	if err := router.Gateway.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown with no sessions failed: %v", err)
	}
	rec := do(t, router, http.MethodGet, "/v1/sessions/stream", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 once the gateway is closing, got %d", rec.Code)
	}
}
