package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/harlowframe/darkroom/internal/imagen"
	"github.com/harlowframe/darkroom/internal/model"
	"github.com/harlowframe/darkroom/internal/storage"
)

// Fixed failure messages identifying which remote phase gave up. They land in
// the job's error field, so they must be stable for the admin UI.
var (
	errEditFailed   = errors.New("remote edit failed")
	errExportFailed = errors.New("remote export failed")
)

// Poller advances every in-flight job one stage per run. Jobs are processed
// sequentially and independently: one bad job cannot stall or corrupt its
// siblings.
type Poller struct {
	meta   MetadataStore
	store  ObjectStore
	edit   EditService
	layout storage.Layout
	logger zerolog.Logger
}

// NewPoller constructs a Poller.
func NewPoller(meta MetadataStore, store ObjectStore, edit EditService, layout storage.Layout, logger zerolog.Logger) *Poller {
	return &Poller{meta: meta, store: store, edit: edit, layout: layout, logger: logger}
}

// Poll scans for jobs in processing or exporting and advances each one.
// Queued/uploading jobs belong to a live orchestrator invocation and terminal
// jobs are done, so neither is touched. An error advancing one job is
// recorded on that job and the scan continues.
func (p *Poller) Poll(ctx context.Context) error {
	jobs, err := p.meta.ListJobsByStatus(ctx, model.StatusProcessing, model.StatusExporting)
	if err != nil {
		return fmt.Errorf("scan in-flight jobs: %w", err)
	}
	for i := range jobs {
		job := jobs[i]
		if err := p.advance(ctx, &job); err != nil {
			p.logger.Error().Err(err).Str("job_id", job.ID).Str("status", string(job.Status)).
				Msg("job failed")
			_ = p.meta.UpdateJobStatus(ctx, job.ID, model.StatusFailed, map[string]any{
				"error": err.Error(),
			})
		}
	}
	return nil
}

func (p *Poller) advance(ctx context.Context, job *model.ProcessingJob) error {
	if job.RemoteProjectID == "" {
		return errors.New("job has no remote project id")
	}
	switch job.Status {
	case model.StatusProcessing:
		status, err := p.edit.EditStatus(ctx, job.RemoteProjectID)
		if err != nil {
			return err
		}
		switch status {
		case imagen.StatusCompleted:
			if err := p.edit.StartExport(ctx, job.RemoteProjectID, "export-"+job.ID); err != nil {
				return err
			}
			return p.meta.UpdateJobStatus(ctx, job.ID, model.StatusExporting, nil)
		case imagen.StatusFailed:
			return errEditFailed
		default:
			// Still editing; re-checked on the next poll.
			return nil
		}
	case model.StatusExporting:
		status, err := p.edit.ExportStatus(ctx, job.RemoteProjectID)
		if err != nil {
			return err
		}
		switch status {
		case imagen.StatusCompleted:
			return p.materialize(ctx, job)
		case imagen.StatusFailed:
			return errExportFailed
		default:
			return nil
		}
	default:
		return fmt.Errorf("unexpected job status %s", job.Status)
	}
}
