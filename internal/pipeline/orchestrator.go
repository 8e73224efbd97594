package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harlowframe/darkroom/internal/model"
)

// uploadGroupSize bounds how many large RAW files are in flight at once.
// Groups run sequentially; uploads within a group run in parallel.
const uploadGroupSize = 5

// OrchestrateRequest is the trigger contract: everything the orchestrator
// needs to start a batch on the editing service.
type OrchestrateRequest struct {
	JobID     string
	GalleryID string
	RawKeys   []string
	Source    string
	ProfileID string
}

// Orchestrator drives a job from creation through "editing has begun" on the
// remote service in a single invocation, then exits. It never polls and never
// retries: any failure is terminal on the job record.
type Orchestrator struct {
	meta     MetadataStore
	store    ObjectStore
	edit     EditService
	profiles Profiles
	logger   zerolog.Logger
}

// NewOrchestrator constructs an Orchestrator.
func NewOrchestrator(meta MetadataStore, store ObjectStore, edit EditService, profiles Profiles, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{meta: meta, store: store, edit: edit, profiles: profiles, logger: logger}
}

// Run uploads the staged batch and starts the edit. Side effects are strictly
// sequential; the first failure marks the job failed and aborts the rest.
func (o *Orchestrator) Run(ctx context.Context, req OrchestrateRequest) error {
	failure := func(err error) error {
		o.logger.Error().Err(err).Str("job_id", req.JobID).Msg("orchestration failed")
		_ = o.meta.UpdateJobStatus(ctx, req.JobID, model.StatusFailed, map[string]any{"error": err.Error()})
		return err
	}

	if len(req.RawKeys) == 0 {
		return failure(errors.New("no raw keys supplied"))
	}

	// Configuration problems fail before any remote call and are never
	// retried; re-triggering without fixing the deployment cannot succeed.
	profile := o.profiles.Resolve(req.RawKeys, req.ProfileID)
	if !o.edit.HasCredentials() {
		return failure(errors.New("editing service credentials not configured"))
	}
	if profile == "" {
		return failure(errors.New("no editing profile configured for batch"))
	}

	uploading := map[string]any{}
	if req.Source != "" {
		uploading["source"] = req.Source
	}
	if err := o.meta.UpdateJobStatus(ctx, req.JobID, model.StatusUploading, uploading); err != nil {
		return failure(err)
	}

	projectID, err := o.edit.CreateProject(ctx)
	if err != nil {
		return failure(err)
	}

	// Upload links are keyed by basename: the service never sees storage keys.
	filenames := make([]string, 0, len(req.RawKeys))
	for _, key := range req.RawKeys {
		filenames = append(filenames, path.Base(key))
	}
	links, err := o.edit.UploadLinks(ctx, projectID, filenames)
	if err != nil {
		return failure(err)
	}
	for _, name := range filenames {
		if links[name] == "" {
			return failure(fmt.Errorf("no upload link for %s", name))
		}
	}

	if err := o.uploadBatch(ctx, req.RawKeys, links); err != nil {
		return failure(err)
	}

	if err := o.edit.StartEdit(ctx, projectID, profile); err != nil {
		return failure(err)
	}

	if err := o.meta.UpdateJobStatus(ctx, req.JobID, model.StatusProcessing, map[string]any{
		"remoteProjectId": projectID,
	}); err != nil {
		return failure(err)
	}

	o.logger.Info().Str("job_id", req.JobID).Str("project_id", projectID).
		Int("files", len(req.RawKeys)).Str("profile", profile).Msg("editing started")
	return nil
}

// uploadBatch moves staged files to their presigned links in sequential
// groups of uploadGroupSize, with uploads inside a group running in parallel.
func (o *Orchestrator) uploadBatch(ctx context.Context, rawKeys []string, links map[string]string) error {
	for start := 0; start < len(rawKeys); start += uploadGroupSize {
		end := start + uploadGroupSize
		if end > len(rawKeys) {
			end = len(rawKeys)
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, key := range rawKeys[start:end] {
			key := key
			g.Go(func() error {
				data, err := o.store.Download(gctx, key)
				if err != nil {
					return err
				}
				if err := o.edit.UploadFile(gctx, links[path.Base(key)], data); err != nil {
					return fmt.Errorf("upload %s: %w", path.Base(key), err)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
