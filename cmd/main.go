package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	grpcapi "consent-reading-service/internal/api/grpc"
	"consent-reading-service/internal/app"
	"consent-reading-service/internal/config"
	httpapi "consent-reading-service/internal/http"
	"consent-reading-service/internal/observability"
)

func main() {
	if err := run(); err != nil {
		log.Error().Err(err).Msg("Consent reading service exited with error")
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}

	router := httpapi.NewRouter(application)
	httpServer := &http.Server{
		Addr:              cfg.Service.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer := grpcapi.New(application.Metrics)
	obsServer := observability.NewServer(cfg.Service.MetricsAddr, application.Ready)

	if err := application.Start(); err != nil {
		return err
	}
	grpcServer.SetServing(true)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("Reading gateway started")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return grpcServer.ListenAndServe(":" + cfg.Service.GRPCPort)
	})
	g.Go(obsServer.Run)
	g.Go(func() error {
		return application.WatchCatalog(gctx)
	})

	// Shut everything down on signal or on the first server failure.
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownTimeout)
		defer cancel()

		grpcServer.Stop()
		var errs []error
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		// Sessions publish their outcome, so drain them before the publisher closes.
		if err := router.Gateway.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := application.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
