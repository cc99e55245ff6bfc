package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobmatch-go/internal/api/handler"
	"jobmatch-go/internal/api/router"
	"jobmatch-go/internal/config"
	"jobmatch-go/internal/dedup"
	"jobmatch-go/internal/domain"
	"jobmatch-go/internal/embedding"
	"jobmatch-go/internal/ingest"
	appLogger "jobmatch-go/internal/logger"
	"jobmatch-go/internal/profile"
	"jobmatch-go/internal/scoring"
	"jobmatch-go/internal/storage"
	"jobmatch-go/internal/tracing"
	"jobmatch-go/internal/vector"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

var serviceName = "jobmatch-go" //nolint:gochecknoglobals

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "config.yaml", "Path to config file")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		zlog.Fatal().Err(err).Msg("invalid configuration")
	}

	log, err := appLogger.Init(cfg.Logger)
	if err != nil {
		zlog.Fatal().Err(err).Msg("failed to init logger")
	}
	glog.SetLogger(hertzadapter.From(log))
	glog.SetLevel(hertzLevel(log.GetLevel()))
	log.Info().Str("config", configPath).Msg("configuration loaded")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Tracing.Enabled {
		shutdownTracing, err := tracing.InitProvider(ctx, serviceName, cfg.Tracing.OTLPEndpoint, cfg.Tracing.SampleRatio)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init tracing")
		}
		defer func() {
			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancelShutdown()
			if err := shutdownTracing(shutdownCtx); err != nil {
				log.Warn().Err(err).Msg("tracing shutdown failed")
			}
		}()
		log.Info().Str("endpoint", cfg.Tracing.OTLPEndpoint).Msg("tracing initialized")
	}

	storageManager, err := storage.NewStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init storage")
	}
	defer storageManager.Close()
	log.Info().Msg("storage initialized")

	index, err := vector.NewQdrant(&cfg.Qdrant)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init vector index")
	}
	log.Info().Str("collection", cfg.Qdrant.Collection).Msg("vector index ready")

	budget := embedding.NewTokenBudget(cfg.Budget.DailyTokenLimit,
		time.Duration(cfg.Budget.BreakerCooldownSeconds)*time.Second)
	client, err := embedding.NewClient(cfg.Embedding, budget, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init embedding client")
	}
	embedder := embedding.NewCachedEmbedder(client, storageManager.Redis, cfg.Embedding.Model, log)
	log.Info().Str("model", cfg.Embedding.Model).Int("dimensions", cfg.Embedding.Dimensions).
		Msg("embedder initialized")

	dedupEngine := dedup.NewEngine(storageManager.MySQL, cfg.Ingest.Dedup, log)

	sources := make(map[domain.SourceName]ingest.JobSource, len(cfg.Ingest.Connectors))
	for _, connCfg := range cfg.Ingest.Connectors {
		src, err := ingest.NewHTTPSource(connCfg)
		if err != nil {
			log.Fatal().Err(err).Str("source", string(connCfg.Name)).Msg("failed to init connector")
		}
		sources[connCfg.Name] = src
	}
	log.Info().Int("connectors", len(sources)).Msg("job sources configured")

	var archiver ingest.PageArchiver
	if storageManager.Archive != nil {
		archiver = storageManager.Archive
	}
	pipeline := ingest.NewPipeline(storageManager.MySQL, dedupEngine, embedder, index, archiver, &cfg.Ingest, log)

	var mq storage.MessageQueue
	if storageManager.RabbitMQ != nil {
		mq = storageManager.RabbitMQ
	}
	runService := ingest.NewRunService(storageManager.MySQL, mq, pipeline, sources, &cfg.RabbitMQ, log)
	if err := runService.StartConsumer(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start run consumer")
	}

	profiles, err := profile.NewHTTPProvider(cfg.Scoring.ProfileServiceURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init profile provider")
	}
	matchService := scoring.NewMatchService(profiles, embedder, index,
		storageManager.Redis, storageManager.Redis, storageManager.MySQL,
		scoring.NewEngine(cfg.Scoring.Weights), &cfg.Scoring, cfg.Embedding.Model, log)

	matchHandler := handler.NewMatchHandler(matchService, log)
	ingestHandler := handler.NewIngestHandler(runService, log)
	jobsHandler := handler.NewJobsHandler(storageManager.MySQL, log)

	tracer, tracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		tracer,
	)
	h.Use(hertztracing.ServerMiddleware(tracerCfg))
	router.RegisterRoutes(h, matchHandler, ingestHandler, jobsHandler)
	log.Info().Str("address", cfg.Server.Address).Msg("starting HTTP server")

	go func() {
		if err := h.Run(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("shutdown complete")
}

func hertzLevel(level zerolog.Level) glog.Level {
	switch {
	case level <= zerolog.DebugLevel:
		return glog.LevelDebug
	case level == zerolog.InfoLevel:
		return glog.LevelInfo
	case level == zerolog.WarnLevel:
		return glog.LevelWarn
	default:
		return glog.LevelError
	}
}
