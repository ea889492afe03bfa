package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/DjordjeVuckovic/index-relay/internal/ingest"
	"github.com/DjordjeVuckovic/index-relay/internal/relay"
	"github.com/DjordjeVuckovic/index-relay/internal/server"
	sinkfactory "github.com/DjordjeVuckovic/index-relay/internal/sink/factory"
	sourcefactory "github.com/DjordjeVuckovic/index-relay/internal/source/factory"
	"github.com/DjordjeVuckovic/index-relay/pkg/config/env"
	pkgserver "github.com/DjordjeVuckovic/index-relay/pkg/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	slog.SetLogLoggerLevel(env.LogLevel())

	cfg, err := NewAppConfig().Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("Relay stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *RelayConfig) error {
	src, err := sourcefactory.NewOrderedSource(ctx, cfg.Source)
	if err != nil {
		slog.Error("Failed to create source", "error", err)
		return err
	}
	defer src.Close()

	writer, err := sinkfactory.NewBulkWriter(ctx, cfg.Sink, cfg.Pipeline.Target)
	if err != nil {
		slog.Error("Failed to create sink", "error", err)
		return err
	}
	defer writer.Close()

	registry := prometheus.NewRegistry()
	metrics := relay.NewMetrics()
	registry.MustRegister(metrics, collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := ingest.NewRelayPipeline(src, writer, cfg.Pipeline,
		ingest.WithRelayOptions(relay.WithMetrics(metrics)),
	)
	if err != nil {
		slog.Error("Failed to create pipeline", "error", err)
		return err
	}

	s := server.New(cfg.Server, pkgserver.NamedHealthCheckers{
		"source": src,
		"sink":   writer,
		"relay":  pipeline,
	}).
		SetupMiddlewares().
		SetupErrorHandler().
		SetupHealthChecks("/health").
		SetupStats("/stats", func() any { return pipeline.Stats() }).
		SetupMetrics("/metrics", registry)

	serverCtx, stopServer := context.WithCancel(ctx)
	defer stopServer()
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- s.Start(serverCtx)
	}()

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			slog.Info("Shutdown requested, stopping pipeline")
			pipeline.Stop()
		case <-done:
		}
	}()

	runErr := pipeline.Run(ctx)
	close(done)
	if errors.Is(runErr, context.Canceled) {
		runErr = nil
	}

	stopServer()
	return errors.Join(runErr, <-serverErr)
}
