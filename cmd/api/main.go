package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"genstudio/internal/batchqueue"
	"genstudio/internal/docstore"
	"genstudio/internal/http/handlers"
	httpapi "genstudio/internal/http/httpapi"
	"genstudio/internal/infra"
	"genstudio/internal/infra/credentials"
	"genstudio/internal/infra/geoip"
	"genstudio/internal/middleware"
	"genstudio/internal/storage"
	"genstudio/internal/studio"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, cfg.LogFile)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongoClient, err := docstore.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer func() { _ = mongoClient.Disconnect(context.Background()) }()
	docs := docstore.NewMongoStore(mongoClient.Database(cfg.MongoDatabase))

	// Postgres is optional for the api: without it the queue routes answer 503
	// and keys come from the environment only.
	var (
		pool  *pgxpool.Pool
		creds *credentials.Store
		queue handlers.BatchQueue
	)
	if cfg.DatabaseURL != "" {
		pool, err = infra.NewDBPool(ctx, cfg, "genstudio-api")
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect database")
		}
		defer pool.Close()
		runner := infra.NewSQLRunner(pool, logger)
		creds = credentials.NewStore(runner)
		queue = batchqueue.NewQueue(runner)
	}

	blobs, err := storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure storage")
	}
	svc, err := studio.New(ctx, cfg, studio.Deps{
		Docs:        docs,
		Blobs:       blobs,
		Credentials: creds,
		Registerer:  prometheus.DefaultRegisterer,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build services")
	}
	svc.WatchGraphs(ctx, cfg.GraphDir, logger)

	app := handlers.NewApp(logger)
	app.Planner = svc.Planner
	app.Engine = svc.Engine
	app.Resolver = svc.Resolver
	app.Templates = svc.Templates
	app.Editor = svc.Editor
	app.Items = svc.Items
	app.Blobs = blobs
	app.Queue = queue
	app.PromptTestTimeout = cfg.AdaptorTimeout

	var countries middleware.CountryLookup
	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if geo != nil {
		defer func() { _ = geo.Close() }()
		countries = geo
	}

	router := httpapi.NewRouter(app, httpapi.Options{
		Logger:          logger,
		CORSOrigins:     cfg.CORSOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		DefaultLocale:   cfg.DefaultLocale,
		Countries:       countries,
		Metrics:         promhttp.Handler(),
		Media:           http.FileServer(http.Dir(blobs.BasePath())),
	})
	server := infra.NewHTTPServer(cfg, router, logger)
	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("http server failed")
	}
}
