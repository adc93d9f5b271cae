package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rezkam/reconcile/internal/bootstrap"
	"github.com/rezkam/reconcile/internal/config"
	"github.com/rezkam/reconcile/internal/domain"
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
		holderID = "reconcile-worker"
	}

	ctrl := runctl.Controller{
		Gate:     runctl.Gate{Store: store, GateName: "reconcile", LeaseDuration: cfg.Run.GateLease},
		HolderID: holderID,
		Log:      obs.Logger,
		Notify:   bootstrap.BuildNotifier(cfg.Notify),
	}
	exec := pipeline.Executor(store)
	institutions := cfg.Run.InstitutionList()

	pollTicker := time.NewTicker(cfg.Run.PollInterval)
	defer pollTicker.Stop()

	slog.InfoContext(ctx, "reconcile worker started",
		"institutions", institutions,
		"poll_interval", cfg.Run.PollInterval)

	runOnce(ctx, ctrl, institutions, exec)

	for {
		select {
		case <-pollTicker.C:
			runOnce(ctx, ctrl, institutions, exec)
		case <-ctx.Done():
			slog.InfoContext(ctx, "shutting down")
			return nil
		}
	}
}

// runOnce drives one pass of the run controller over every configured
// institution. domain.ErrGateLocked means another holder (e.g. an HTTP
// trigger) already has the gate; that is not a worker failure.
func runOnce(ctx context.Context, ctrl runctl.Controller, institutions []string, exec runctl.Executor) {
	slog.InfoContext(ctx, "starting reconciliation pass", "institutions", institutions)
	err := ctrl.Run(ctx, institutions, exec)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrGateLocked):
		slog.InfoContext(ctx, "skipping pass: gate already held", "error", err)
	default:
		slog.ErrorContext(ctx, "reconciliation pass failed", "error", err)
	}
}

func shutdownWithTimeout(shutdown func(context.Context) error, what string) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "failed to shutdown "+what, "error", err)
	}
}
