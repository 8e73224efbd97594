package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harlowframe/darkroom/internal/model"
)

// materialize downloads the rendered export and stores it durably: review
// queue for imagen-source jobs, the gallery's finished prefix otherwise. It
// runs inside a single poll invocation; the downloading status is transient
// and always resolves to complete or failed before returning.
func (p *Poller) materialize(ctx context.Context, job *model.ProcessingJob) error {
	// The claim guards against overlapping poll runs: whoever loses the
	// compare-and-set skips the job instead of double-writing the gallery and
	// double-deleting staged files.
	claimed, err := p.meta.ClaimJobStatus(ctx, job.ID, model.StatusExporting, model.StatusDownloading)
	if err != nil {
		return err
	}
	if !claimed {
		p.logger.Debug().Str("job_id", job.ID).Msg("job already claimed, skipping")
		return nil
	}

	links, err := p.edit.ExportLinks(ctx, job.RemoteProjectID)
	if err != nil {
		return err
	}
	// A completed export with zero files is an error, not an empty success.
	if len(links) == 0 {
		return errors.New("export completed with no files")
	}

	resultKeys := make([]string, 0, len(links))
	for _, link := range links {
		if link.URL == "" {
			return fmt.Errorf("no download link for %s", link.FileName)
		}
		data, err := p.edit.Download(ctx, link.URL)
		if err != nil {
			return err
		}
		var key string
		if job.Source == model.SourceImagen {
			key = p.layout.ReviewKey(job.ID, link.FileName)
		} else {
			key = p.layout.FinishedKey(job.GalleryID, link.FileName)
		}
		if err := p.store.Put(ctx, key, data, ""); err != nil {
			return err
		}
		resultKeys = append(resultKeys, key)
	}

	// Imagen-source output waits in the review queue for admin approval and
	// never touches a gallery here.
	if job.Source != model.SourceImagen && len(resultKeys) > 0 {
		images := make([]model.GalleryImage, 0, len(resultKeys))
		for _, key := range resultKeys {
			images = append(images, model.GalleryImage{Key: key, Alt: ""})
		}
		if err := p.meta.AppendGalleryImages(ctx, job.GalleryID, images); err != nil {
			return err
		}
	}

	// The output is durably stored at this point, so a failed cleanup of the
	// staged originals is logged rather than escalated.
	if err := p.store.Remove(ctx, job.RawKeys); err != nil {
		p.logger.Warn().Err(err).Str("job_id", job.ID).Msg("staged cleanup incomplete")
	}

	completedAt := time.Now().UTC()
	if err := p.meta.UpdateJobStatus(ctx, job.ID, model.StatusComplete, map[string]any{
		"resultKeys":  resultKeys,
		"completedAt": completedAt,
	}); err != nil {
		return err
	}
	p.logger.Info().Str("job_id", job.ID).Int("files", len(resultKeys)).Msg("job complete")
	return nil
}
