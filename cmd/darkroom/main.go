package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harlowframe/darkroom/internal/config"
	"github.com/harlowframe/darkroom/internal/database"
	"github.com/harlowframe/darkroom/internal/imagen"
	"github.com/harlowframe/darkroom/internal/logging"
	"github.com/harlowframe/darkroom/internal/metastore"
	"github.com/harlowframe/darkroom/internal/model"
	"github.com/harlowframe/darkroom/internal/pipeline"
	"github.com/harlowframe/darkroom/internal/queue"
	"github.com/harlowframe/darkroom/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "darkroom: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "darkroom",
		Short:        "Darkroom pipeline operations CLI",
		Long:         `The darkroom CLI triggers processing batches, runs poll passes inline, and inspects job records without going through the API.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newEnqueueCmd(),
		newPollCmd(),
		newJobCmd(),
		newGalleryCmd(),
	)
	return cmd
}

func newEnqueueCmd() *cobra.Command {
	var galleryID, source, profileID string
	cmd := &cobra.Command{
		Use:   "enqueue <staged-key> [staged-key...]",
		Short: "Create a processing job for staged files and enqueue orchestration",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()

			job := &model.ProcessingJob{
				ID:        uuid.NewString(),
				GalleryID: galleryID,
				RawKeys:   args,
				Source:    source,
				Status:    model.StatusQueued,
			}
			if err := env.meta.CreateJob(ctx, job); err != nil {
				return err
			}
			if err := env.queue.EnqueueOrchestrate(ctx, queue.OrchestratePayload{
				JobID:     job.ID,
				GalleryID: galleryID,
				RawKeys:   args,
				Source:    source,
				ProfileID: profileID,
			}); err != nil {
				return err
			}
			fmt.Println(job.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&galleryID, "gallery", "", "Destination gallery id (legacy source)")
	cmd.Flags().StringVar(&source, "source", "", `Job source: "imagen" routes output to the review queue`)
	cmd.Flags().StringVar(&profileID, "profile", "", "Override the inferred editing profile")
	return cmd
}

func newPollCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "poll",
		Short: "Run one poll pass over all in-flight jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			return env.poller.Poll(ctx)
		},
	}
}

func newJobCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "job <id>",
		Short: "Print a job record as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			job, err := env.meta.GetJob(ctx, args[0])
			if err != nil {
				return err
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}

func newGalleryCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "gallery <id>",
		Short: "Create an empty gallery record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			env, err := openEnv(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			return env.meta.CreateGallery(ctx, &model.Gallery{ID: args[0], Name: name})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Gallery display name")
	return cmd
}

// cliEnv bundles the dependencies every subcommand needs.
type cliEnv struct {
	cfg    *config.Config
	meta   *metastore.Store
	queue  *queue.Client
	poller *pipeline.Poller
	close  func()
}

func openEnv(ctx context.Context) (*cliEnv, error) {
	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.New(cfg.Env)

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	meta := metastore.New(pool)

	store, err := storage.New(cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	edit := imagen.NewClient(imagen.Options{
		APIKey:  cfg.ImagenAPIKey,
		BaseURL: cfg.ImagenBaseURL,
		Logger:  logger,
	})
	poller := pipeline.NewPoller(meta, store, edit, storage.NewLayout(cfg), logger)

	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &cliEnv{
		cfg:    cfg,
		meta:   meta,
		queue:  queue.NewClient(asynqClient),
		poller: poller,
		close: func() {
			_ = asynqClient.Close()
			pool.Close()
		},
	}, nil
}
