package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/config"
)

func testConfig(t *testing.T) *config.Configuration {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("KAFKA_ENABLED", "false")
	return config.Load()
}

func TestNew_DefaultsToEmbeddedCatalogAndMock(t *testing.T) {
	cfg := testConfig(t)
	cfg.STT.Provider = ProviderMock

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Adapters == nil {
		t.Fatal("expected an adapter factory for the mock provider")
	}
	adapter, err := a.Adapters("en-US")
	if err != nil || adapter == nil {
		t.Fatalf("expected mock adapter, got %v, %v", adapter, err)
	}
	stmts, err := a.Catalog.Catalog().Statements(a.DefaultCategory(), catalog.English)
	if err != nil || len(stmts) == 0 {
		t.Fatalf("expected default statements, got %d, %v", len(stmts), err)
	}
	if a.Publisher.Enabled() {
		t.Error("expected log-only publisher")
	}
}

func TestNew_NoneProviderDisablesAudio(t *testing.T) {
	cfg := testConfig(t)
	cfg.STT.Provider = ProviderNone

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Adapters != nil {
		t.Error("expected no adapter factory")
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Configuration)
		want   string
	}{
		{"invalid config", func(c *config.Configuration) { c.Reading.Threshold = 2 }, "invalid configuration"},
		{"missing catalog", func(c *config.Configuration) {
			c.Reading.CatalogPath = filepath.Join(t.TempDir(), "missing.yaml")
		}, "load catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.mutate(cfg)
			_, err := New(context.Background(), cfg)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestNew_CatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statements.yaml")
	data := `
default_category: investment-fraud
fallback_language: en
categories:
  investment-fraud:
    names:
      en: "Investment Fraud"
    statements:
      en:
        - "Nobody promised me guaranteed returns"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := testConfig(t)
	cfg.Reading.CatalogPath = path
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stmts, err := a.Catalog.Catalog().Statements(catalog.InvestmentFraud, catalog.English)
	if err != nil || len(stmts) != 1 {
		t.Fatalf("expected 1 statement, got %d, %v", len(stmts), err)
	}

	// Watching is off, so this returns at once
	if err := a.WatchCatalog(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestApplication_Lifecycle(t *testing.T) {
	a, err := New(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready before Start")
	}
	if err := a.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !a.Ready() {
		t.Error("expected ready after Start")
	}
	if a.StartupTime.IsZero() {
		t.Error("expected startup time to be set")
	}
	if err := a.Shutdown(); err != nil {
		t.Errorf("unexpected shutdown error: %v", err)
	}
	if a.Ready() {
		t.Error("expected not ready after Shutdown")
	}
}
