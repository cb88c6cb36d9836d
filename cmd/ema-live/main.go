package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/koscakluka/ema-live/internal/config"
	"github.com/koscakluka/ema-live/internal/metrics"
	"github.com/koscakluka/ema-live/internal/telemetry"
	"github.com/koscakluka/ema-live/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type serverDeps struct {
	loadConfig        func() (config.Config, error)
	buildDependencies func(context.Context, config.Config) (server.Dependencies, func() error, error)
	initTelemetry     func(context.Context, telemetry.Config, *slog.Logger) (*telemetry.Providers, error)
	listen            func(*http.Server) error
	signalNotify      func(chan<- os.Signal, ...os.Signal)
	signalStop        func(chan<- os.Signal)
}

func defaultServerDeps() serverDeps {
	return serverDeps{
		loadConfig:        config.LoadFromEnv,
		buildDependencies: server.BuildDependencies,
		initTelemetry:     telemetry.Init,
		listen:            (*http.Server).ListenAndServe,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func runServer(ctx context.Context, logger *slog.Logger, deps serverDeps) (err error) {
	if deps.loadConfig == nil || deps.buildDependencies == nil || deps.initTelemetry == nil || deps.listen == nil {
		return errors.New("missing server dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	providers, err := deps.initTelemetry(ctx, telemetry.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Insecure:    cfg.OTLPInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
		defer cancel()
		if shutdownErr := providers.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("telemetry shutdown failed", "error", shutdownErr)
		}
	}()

	appDeps, closeDeps, err := deps.buildDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build dependencies: %w", err)
	}
	defer func() {
		if closeErr := closeDeps(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close dependencies: %w", closeErr))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	appDeps.Metrics = metrics.NewCollector(registry)
	appDeps.Gatherer = registry

	srv, err := server.New(appDeps, logger)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}

	logger.Info("starting server",
		"addr", cfg.Addr,
		"stt_provider", cfg.SpeechToText,
		"tts_provider", cfg.TextToSpeech,
		"llm_provider", cfg.LLM,
		"history_store", cfg.HistoryStore,
	)

	listenErrCh := make(chan error, 1)
	go func() {
		err := deps.listen(httpSrv)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("context done, shutting down")
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	// Shutdown does not track hijacked websocket connections.
	waitCtx, waitCancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !srv.WaitSessions(waitCtx) {
		cancelWaitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownGracePeriod)
		defer cancel()
		srv.Sessions().Wait(cancelWaitCtx)
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps serverDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := loadDotEnv(".env"); err != nil {
		fmt.Fprintf(stderr, "ema-live: %v\n", err)
		return 1
	}

	if err := runServer(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "ema-live: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultServerDeps()))
}
