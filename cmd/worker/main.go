package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"genstudio/internal/batchqueue"
	"genstudio/internal/docstore"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/progress"
	"genstudio/internal/storage"
	"genstudio/internal/studio"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg, "genstudio-worker")
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	runner := infra.NewSQLRunner(pool, logger)

	mongoClient, err := docstore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: mongo connection failed")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()

	nc, err := infra.ConnectNATS(cfg.NATSURL, "genstudio-worker", logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: nats connection failed")
	}
	if nc != nil {
		defer nc.Drain()
	} else {
		logger.Warn().Msg("worker: NATS_URL not set, batch events are only logged")
	}

	blobs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	svc, err := studio.New(ctx, cfg, studio.Deps{
		Docs:        docstore.NewMongoStore(mongoClient.Database(cfg.MongoDatabase)),
		Blobs:       blobs,
		Credentials: credentials.NewStore(runner),
		Registerer:  prometheus.DefaultRegisterer,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build services")
	}
	svc.WatchGraphs(ctx, cfg.GraphDir, logger)

	worker := &batchqueue.Worker{
		Queue:   batchqueue.NewQueue(runner),
		Planner: svc.Planner,
		Runner:  svc.Engine,
		Sinks: func(batchID string) progress.Sink {
			log := progress.NewLogSink(logger.With().Str("batch_id", batchID).Logger())
			if nc == nil {
				return log
			}
			return progress.NewTee(progress.NewNATSSink(nc, batchID), log)
		},
		Logger: logger,
	}

	// Probes and metrics for the worker process.
	r := chi.NewRouter()
	r.Get("/v1/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	server := infra.NewHTTPServer(cfg, r, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Run(gctx) })
	g.Go(func() error {
		err := worker.Run(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}
