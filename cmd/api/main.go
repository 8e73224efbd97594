package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/harlowframe/darkroom/internal/api"
	"github.com/harlowframe/darkroom/internal/config"
	"github.com/harlowframe/darkroom/internal/database"
	"github.com/harlowframe/darkroom/internal/logging"
	"github.com/harlowframe/darkroom/internal/metastore"
	"github.com/harlowframe/darkroom/internal/queue"
	"github.com/harlowframe/darkroom/internal/signing"
	"github.com/harlowframe/darkroom/internal/storage"
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

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	defer asynqClient.Close()

	srv := api.New(cfg, meta, queue.NewClient(asynqClient), store, signing.NewSigner(cfg.SigningSecret), logger)
	if err := srv.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("api stopped")
		os.Exit(1)
	}
}
