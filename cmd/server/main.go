package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/reconcile/internal/bootstrap"
	"github.com/rezkam/reconcile/internal/config"
	"github.com/rezkam/reconcile/internal/httpapi"
	"github.com/rezkam/reconcile/internal/runctl"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to run: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	obs, err := bootstrap.InitObservability(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("failed to init observability: %w", err)
	}
	defer shutdownWithTimeout(obs.ShutdownLogger, "logger provider")
	defer shutdownWithTimeout(obs.ShutdownTracer, "tracer provider")
	defer shutdownWithTimeout(obs.ShutdownMeter, "meter provider")

	slog.SetDefault(obs.Logger)
	slog.InfoContext(ctx, "starting reconcile server", "institutions", cfg.Run.InstitutionList())

	store, err := bootstrap.OpenStore(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer store.Close()
	slog.InfoContext(ctx, "storage initialized", "dsn", bootstrap.MaskPassword(cfg.Database.DSN))

	pipeline, err := bootstrap.BuildPipeline(ctx, cfg, obs.Logger)
	if err != nil {
		return fmt.Errorf("failed to build pipeline: %w", err)
	}

	holderID, err := os.Hostname()
	if err != nil || holderID == "" {
		holderID = "reconcile-server"
	}

	gate := runctl.Gate{Store: store, GateName: "reconcile", LeaseDuration: cfg.Run.GateLease}

	apiServer := &httpapi.Server{
		Log:            obs.Logger,
		Institutions:   cfg.Run.InstitutionList(),
		Gate:           gate,
		HolderID:       func() string { return holderID },
		Exec:           pipeline.Executor(store),
		Notify:         bootstrap.BuildNotifier(cfg.Notify),
		History:        store,
		Zone:           pipeline.Zone,
		Classification: bootstrap.Classification(cfg),
		SrcClient:      pipeline.SrcClient,
		DstReader:      pipeline.DstReader,
		Applier:        pipeline.Applier,
	}

	httpServer := httpapi.NewAPIServer(apiServer, httpapi.ServerConfig{
		Host:              cfg.HTTP.Host,
		Port:              cfg.HTTP.Port,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	})

	errResult := make(chan error, 1)
	go func() {
		slog.InfoContext(ctx, "HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errResult <- fmt.Errorf("failed to serve HTTP: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		slog.InfoContext(ctx, "shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.WarnContext(shutdownCtx, "HTTP server shutdown timed out, forcing close", "error", err)
			_ = httpServer.Close()
		}
		return nil
	case err := <-errResult:
		return err
	}
}

func shutdownWithTimeout(shutdown func(context.Context) error, what string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "failed to shutdown "+what, "error", err)
	}
}
