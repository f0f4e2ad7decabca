package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"github.com/rs/zerolog"

	"consent-reading-service/internal/catalog"
	"consent-reading-service/internal/config"
	"consent-reading-service/internal/events"
	"consent-reading-service/internal/observability/logging"
	"consent-reading-service/internal/observability/metrics"
	"consent-reading-service/internal/service/audio"
	"consent-reading-service/internal/service/stt"
	"consent-reading-service/internal/service/stt/google"
	"consent-reading-service/internal/service/stt/mock"
)

// STT providers accepted in STT_PROVIDER.
const (
	ProviderMock   = "mock"
	ProviderGoogle = "google"
	ProviderNone   = "none"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	Catalog   *catalog.Store
	Publisher *events.Publisher
	Metrics   *metrics.Metrics

	// Adapters creates server-side recognizers for audio mode. Nil when the
	// provider is "none".
	Adapters audio.AdapterFactory

	speech *speech.Client
	ready  atomic.Bool
}

// New constructs a new Application from the provided configuration.
func New(ctx context.Context, cfg *config.Configuration) (*Application, error) {
	a := &Application{
		Cfg:     cfg,
		Metrics: metrics.DefaultMetrics,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	c, err := a.loadCatalog()
	if err != nil {
		return nil, err
	}
	a.Catalog = catalog.NewStore(c, logging.WithComponent("catalog"))

	a.Adapters, err = a.newAdapterFactory(ctx)
	if err != nil {
		return nil, err
	}

	a.Publisher = events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicProgress:  cfg.Kafka.TopicProgress,
		TopicCompleted: cfg.Kafka.TopicCompleted,
		Principal:      cfg.Kafka.Principal,
	})

	appLogger.Info().
		Str("sttProvider", cfg.STT.Provider).
		Bool("kafkaEnabled", a.Publisher.Enabled()).
		Int("categories", len(c.Categories)).
		Msg("Consent reading service application created")
	return a, nil
}

// setupLogger configures the global zerolog logger and derives the
// application logger from it.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:      a.Cfg.Observability.LogLevel,
		Format:     a.Cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})

	a.Logger = logging.Logger().With().
		Str("service", "consent-reading-service").
		Str("component", "application").
		Logger()

	a.Logger.Info().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

func (a *Application) loadCatalog() (*catalog.Catalog, error) {
	path := a.Cfg.Reading.CatalogPath
	if path == "" {
		return catalog.Default(), nil
	}
	c, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return c, nil
}

// newAdapterFactory builds the recognizer factory for the configured
// provider. Google shares one client across every phase.
func (a *Application) newAdapterFactory(ctx context.Context) (audio.AdapterFactory, error) {
	sttCfg := a.Cfg.STT
	switch sttCfg.Provider {
	case ProviderMock:
		return func(string) (stt.Adapter, error) {
			return mock.New(mock.WithDelay(sttCfg.MockDelay)), nil
		}, nil
	case ProviderGoogle:
		client, err := google.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create speech client: %w", err)
		}
		a.speech = client
		return func(locale string) (stt.Adapter, error) {
			return google.New(client, google.Config{
				LanguageCode:   locale,
				SampleRateHz:   sttCfg.SampleRateHz,
				InterimResults: sttCfg.InterimResults,
				AudioEncoding:  sttCfg.AudioEncoding,
			}), nil
		}, nil
	case ProviderNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", sttCfg.Provider)
	}
}

// DefaultCategory returns the configured fallback category.
func (a *Application) DefaultCategory() catalog.Category {
	return catalog.Category(a.Cfg.Reading.DefaultCategory)
}

// WatchCatalog reloads the catalog file on change until ctx is done. It
// returns immediately when watching is disabled or the catalog is embedded.
func (a *Application) WatchCatalog(ctx context.Context) error {
	if !a.Cfg.Reading.WatchCatalog || a.Cfg.Reading.CatalogPath == "" {
		return nil
	}
	return a.Catalog.Watch(ctx, a.Cfg.Reading.CatalogPath)
}

// Ready reports whether the service accepts new sessions.
func (a *Application) Ready() bool {
	return a.ready.Load()
}

// Start performs any startup work required before serving traffic.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	a.StartupTime = time.Now().UTC()
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Msg("Consent reading service starting")

	return nil
}

// Shutdown stops accepting sessions and releases external clients.
func (a *Application) Shutdown() error {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()

	a.ready.Store(false)
	shutdownLogger.Info().
		Dur("uptime", time.Since(a.StartupTime)).
		Msg("Consent reading service shutting down")

	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.speech != nil {
		errs = append(errs, a.speech.Close())
	}
	return errors.Join(errs...)
}
