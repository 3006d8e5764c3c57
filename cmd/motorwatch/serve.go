package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/motorwatch/motorwatch/internal/config"
	"github.com/motorwatch/motorwatch/internal/detector"
	"github.com/motorwatch/motorwatch/internal/events"
	"github.com/motorwatch/motorwatch/internal/ingest"
	httpapi "github.com/motorwatch/motorwatch/internal/interfaces/http"
	"github.com/motorwatch/motorwatch/internal/lifecycle"
	"github.com/motorwatch/motorwatch/internal/rangecheck"
	"github.com/motorwatch/motorwatch/internal/state"
	"github.com/motorwatch/motorwatch/internal/store"
	"github.com/motorwatch/motorwatch/internal/telemetry"
)

// runServe builds the full engine and serves until SIGINT/SIGTERM.
func runServe(ctx context.Context, cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := telemetry.New()
	states := state.NewStore(cfg.Pipeline.HistoryCapacity)

	writer, err := buildWriter(ctx, cfg.Store)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	eventLog := events.NewLog(cfg.Events.LogCapacity)
	sinks := []events.Sink{eventLog, hub}
	if cfg.Redis.Enabled {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Redis.Addr})
		publisher := events.NewRedisPublisher(client, cfg.Redis.Channel)
		if err := publisher.Ping(ctx); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable, publishing anyway")
		}
		sinks = append(sinks, publisher)
	}
	engine := events.NewEngine(cfg.Scoring.EventThreshold, cfg.Events.DebounceTicks, sinks...)

	facade := ingest.New(ingest.Options{
		WindowSize:        cfg.Pipeline.WindowSize,
		BaselineTolerance: cfg.Pipeline.BaselineTolerance,
		MinBaselineRows:   cfg.Pipeline.MinBaselineRows,
		BaselineDir:       cfg.Pipeline.BaselineDir,
		BlendPolicy:       rangecheck.BlendPolicy(cfg.Scoring.BlendPolicy),
		DetectorConfig: detector.Config{
			Contamination: cfg.Detector.Contamination,
			NumTrees:      cfg.Detector.Trees,
			Seed:          cfg.Detector.Seed,
		},
	}, states, writer, engine, metrics)

	lcfg := lifecycle.DefaultConfig()
	lcfg.CalibrationSamples = cfg.Calibration.Samples
	lcfg.PersistEvery = cfg.Calibration.PersistEvery
	lcfg.ReportEvery = cfg.Calibration.ReportEvery
	lcfg.Seed = cfg.Calibration.Seed
	lcfg.HealthyScoreThreshold = cfg.Scoring.HealthyScore
	lcfg.FaultScoreThreshold = cfg.Scoring.FaultScore
	lcfg.WindowSize = cfg.Pipeline.WindowSize
	controller := lifecycle.New(lcfg, facade, states, writer, engine, metrics)

	srv := httpapi.New(httpapi.Config{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RateLimit:       cfg.Server.RateLimit,
		RateBurst:       cfg.Server.RateBurst,
	}, facade, controller, writer, hub, eventLog, metrics)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	log.Info().Str("version", version).Str("backend", cfg.Store.Backend).Msg("motorwatch engine up")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := controller.Stop(); err != nil {
		log.Warn().Err(err).Msg("lifecycle stop on shutdown")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// buildWriter selects the durable store backend. The postgres path is wrapped
// in a breaker so a failing database degrades writes instead of stalling the
// ingest loop.
func buildWriter(ctx context.Context, cfg config.StoreConfig) (store.PointWriter, error) {
	if cfg.Backend == "postgres" {
		pg, err := store.OpenPostgres(ctx, cfg.DSN, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return store.NewDegrading(pg, "postgres"), nil
	}
	return store.NewMemory(), nil
}
