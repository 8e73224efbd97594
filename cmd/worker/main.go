package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/harlowframe/darkroom/internal/config"
	"github.com/harlowframe/darkroom/internal/database"
	"github.com/harlowframe/darkroom/internal/imagen"
	"github.com/harlowframe/darkroom/internal/logging"
	"github.com/harlowframe/darkroom/internal/metastore"
	"github.com/harlowframe/darkroom/internal/pipeline"
	"github.com/harlowframe/darkroom/internal/queue"
	"github.com/harlowframe/darkroom/internal/storage"
	"github.com/harlowframe/darkroom/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := logging.New(cfg.Env)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()
	if err := database.EnsureSchema(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("ensure schema")
	}
	meta := metastore.New(pool)

	store, err := storage.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("init storage")
	}
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ensure bucket")
	}

	edit := imagen.NewClient(imagen.Options{
		APIKey:  cfg.ImagenAPIKey,
		BaseURL: cfg.ImagenBaseURL,
		Logger:  logger,
	})
	profiles := pipeline.Profiles{RAW: cfg.ImagenRAWProfile, JPG: cfg.ImagenJPGProfile}
	orchestrator := pipeline.NewOrchestrator(meta, store, edit, profiles, logger)
	poller := pipeline.NewPoller(meta, store, edit, storage.NewLayout(cfg), logger)

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
	})
	scheduler := asynq.NewScheduler(redisOpt, nil)
	if _, err := scheduler.Register("@every "+cfg.PollInterval.String(), queue.NewPollTask()); err != nil {
		logger.Fatal().Err(err).Msg("register poll schedule")
	}

	processor := worker.NewProcessor(orchestrator, poller, logger)
	mux := processor.Handler()

	go func() {
		<-ctx.Done()
		scheduler.Shutdown()
		server.Shutdown()
	}()
	go func() {
		if err := scheduler.Run(); err != nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	logger.Info().Dur("poll_interval", cfg.PollInterval).Msg("worker starting")
	if err := server.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
		os.Exit(1)
	}
}
