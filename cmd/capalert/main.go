// Command capalert polls CAP alert feeds, keeps the alerts that are new and
// touch the configured boundaries, and publishes a text summary and
// optionally a rendered map.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/cap-alert-service/internal/adapter/http"
	"github.com/couchcryptid/cap-alert-service/internal/adapter/fetch"
	kafkaadapter "github.com/couchcryptid/cap-alert-service/internal/adapter/kafka"
	"github.com/couchcryptid/cap-alert-service/internal/adapter/stdout"
	"github.com/couchcryptid/cap-alert-service/internal/adapter/store"
	"github.com/couchcryptid/cap-alert-service/internal/config"
	"github.com/couchcryptid/cap-alert-service/internal/geodir"
	"github.com/couchcryptid/cap-alert-service/internal/observability"
	"github.com/couchcryptid/cap-alert-service/internal/pipeline"
	"github.com/couchcryptid/cap-alert-service/internal/render"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boundaries, err := geodir.Load(ctx, cfg.BoundariesDir, logger)
	if err != nil {
		logger.Error("failed to load boundaries", "dir", cfg.BoundariesDir, "error", err)
		return 1
	}
	outlines, err := geodir.Load(ctx, cfg.OutlinesDir, logger)
	if err != nil {
		logger.Error("failed to load outlines", "dir", cfg.OutlinesDir, "error", err)
		return 1
	}
	logger.Info("loaded geometry", "boundaries", len(boundaries), "outlines", len(outlines))

	cache, err := store.Open(ctx, cfg.CacheDB, cfg.CacheKnownSize, metrics, logger)
	if err != nil {
		logger.Error("failed to open cache", "path", cfg.CacheDB, "error", err)
		return 1
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("cache close error", "error", err)
		}
	}()

	client := fetch.NewClient(cfg.FetchTimeout, cfg.FetchUserAgent, metrics, logger)
	ingestor := pipeline.NewIngestor(client, cache, cfg.IngestPolicy, metrics, logger)
	compositor := render.NewCompositor(render.Options{
		Boundaries: boundaries,
		Outlines:   outlines,
		MaxWidth:   cfg.MapMaxWidth,
		MaxHeight:  cfg.MapMaxHeight,
		Location:   cfg.Location,
	}, metrics, logger)

	publishers := []pipeline.Publisher{stdout.NewPublisher(os.Stdout, cfg.OutputImage, metrics, logger)}
	if len(cfg.KafkaBrokers) > 0 {
		kp := kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, metrics, logger)
		defer func() {
			if err := kp.Close(); err != nil {
				logger.Error("kafka writer close error", "error", err)
			}
		}()
		publishers = append(publishers, kp)
		logger.Info("kafka publishing enabled", "topic", cfg.KafkaTopic)
	}

	runner := pipeline.NewRunner(pipeline.Config{
		Feeds:       cfg.Feeds,
		MinSeverity: cfg.MinSeverity,
		Boundaries:  boundaries,
		Format:      cfg.OutputFormat,
		Interval:    cfg.PollInterval,
	}, ingestor, compositor, publishers, nil, metrics, logger)
	runner.DependOn(cache)

	if cfg.PollInterval <= 0 {
		if err := runner.Run(ctx); err != nil {
			return 1
		}
		return 0
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, runner, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	if err := runner.Run(ctx); err != nil {
		logger.Error("runner error", "error", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
	return 0
}
