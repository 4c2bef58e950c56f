package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/foxseedlab/coachcall/external/config"
	llmimpl "github.com/foxseedlab/coachcall/external/llm"
	repositoryimpl "github.com/foxseedlab/coachcall/external/repository"
	rtcimpl "github.com/foxseedlab/coachcall/external/rtc"
	serverimpl "github.com/foxseedlab/coachcall/external/server"
	"github.com/foxseedlab/coachcall/internal/analysis"
	"github.com/foxseedlab/coachcall/internal/config"
	"github.com/foxseedlab/coachcall/internal/observability"
	"github.com/foxseedlab/coachcall/internal/session"
	"github.com/foxseedlab/coachcall/internal/transcript"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching http server")
	runServer(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	observability.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	llmimpl.RegisterDI(injector)
	rtcimpl.RegisterDI(injector)
	transcript.RegisterDI(injector)
	analysis.RegisterDI(injector)
	session.RegisterDI(injector)
	serverimpl.RegisterDI(injector)

	return injector
}

func runServer(cfg *config.Config, injector do.Injector) {
	srv, err := do.Invoke[*serverimpl.Server](injector)
	if err != nil {
		slog.Error("failed to resolve http server", "error", err)
		os.Exit(1)
	}
	runner, err := do.Invoke[*analysis.Runner](injector)
	if err != nil {
		slog.Error("failed to resolve analysis runner", "error", err)
		os.Exit(1)
	}

	done := make(chan struct{})
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}

	slog.Info("draining in-flight analysis runs", "timeout", cfg.ShutdownDrainPeriod)
	runner.Drain(cfg.ShutdownDrainPeriod)
	slog.Info("shutdown complete")
}
