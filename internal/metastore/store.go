// Package metastore wraps all SQL used by the API, worker, and CLI. It is a
// thin typed accessor over the job and gallery tables: no business logic, no
// retries — failures propagate to the caller.
package metastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harlowframe/darkroom/internal/model"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("metastore: not found")

// maxListPages caps how many pages a list scan will follow so a bugged filter
// cannot walk the whole table forever.
const (
	maxListPages = 20
	listPageSize = 100
)

// Store provides access to processing jobs and galleries.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const jobColumnsSelect = `id, gallery_id, raw_keys, status, source, remote_project_id, result_keys, error, created_at, updated_at, completed_at`

// CreateJob inserts a queued job before orchestration begins.
func (s *Store) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	now := time.Now().UTC()
	if job.Status == "" {
		job.Status = model.StatusQueued
	}
	job.CreatedAt = now
	job.UpdatedAt = now
	rawKeys, err := json.Marshal(job.RawKeys)
	if err != nil {
		return fmt.Errorf("encode raw keys: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO processing_jobs (id, gallery_id, raw_keys, status, source, created_at, updated_at)
		VALUES ($1,$2,$3::jsonb,$4,$5,$6,$7)
	`, job.ID, job.GalleryID, string(rawKeys), job.Status, job.Source, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns a job by id, or ErrNotFound.
func (s *Store) GetJob(ctx context.Context, id string) (*model.ProcessingJob, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumnsSelect+` FROM processing_jobs WHERE id=$1`, id)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateJob applies a flat field patch to a job. Fields absent from the patch
// are left untouched; updated_at is always stamped.
func (s *Store) UpdateJob(ctx context.Context, id string, patch map[string]any) error {
	stmt, args, err := buildJobUpdate(id, patch, time.Now().UTC())
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateJobStatus is the single funnel for status transitions: it applies the
// supplied extra fields together with the new status in one patch.
func (s *Store) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, extra map[string]any) error {
	patch := map[string]any{"status": status}
	for k, v := range extra {
		patch[k] = v
	}
	return s.UpdateJob(ctx, id, patch)
}

// ClaimJobStatus transitions a job from one status to another only if it is
// still in the expected status. It reports false when another run already
// claimed the job, without error.
func (s *Store) ClaimJobStatus(ctx context.Context, id string, from, to model.JobStatus) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE processing_jobs SET status=$1, updated_at=$2 WHERE id=$3 AND status=$4
	`, to, time.Now().UTC(), id, from)
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// DeleteJob removes a job record. Deletion is an admin operation; the
// pipeline itself never calls this.
func (s *Store) DeleteJob(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM processing_jobs WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobsByStatus returns every job currently in one of the given statuses,
// following keyset pages up to the safety cap. The result is never nil.
func (s *Store) ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]model.ProcessingJob, error) {
	jobs := []model.ProcessingJob{}
	if len(statuses) == 0 {
		return jobs, nil
	}
	values := make([]string, 0, len(statuses))
	for _, st := range statuses {
		values = append(values, string(st))
	}
	cursor := ""
	for page := 0; page < maxListPages; page++ {
		rows, err := s.pool.Query(ctx, `
			SELECT `+jobColumnsSelect+` FROM processing_jobs
			WHERE status = ANY($1) AND id > $2
			ORDER BY id LIMIT $3
		`, values, cursor, listPageSize)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		batch, err := collectJobs(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, batch...)
		if len(batch) < listPageSize {
			break
		}
		cursor = batch[len(batch)-1].ID
	}
	return jobs, nil
}

// ListJobs returns the most recently created jobs, newest first.
func (s *Store) ListJobs(ctx context.Context, limit int) ([]model.ProcessingJob, error) {
	if limit <= 0 || limit > listPageSize {
		limit = listPageSize
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumnsSelect+` FROM processing_jobs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return collectJobs(rows)
}

// GetGallery returns a gallery by id, or ErrNotFound.
func (s *Store) GetGallery(ctx context.Context, id string) (*model.Gallery, error) {
	var g model.Gallery
	row := s.pool.QueryRow(ctx, `SELECT id, name, images, created_at, updated_at FROM galleries WHERE id=$1`, id)
	if err := row.Scan(&g.ID, &g.Name, &g.Images, &g.CreatedAt, &g.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select gallery: %w", err)
	}
	if g.Images == nil {
		g.Images = []model.GalleryImage{}
	}
	return &g, nil
}

// CreateGallery inserts a gallery with an empty image list.
func (s *Store) CreateGallery(ctx context.Context, gallery *model.Gallery) error {
	now := time.Now().UTC()
	gallery.CreatedAt = now
	gallery.UpdatedAt = now
	if gallery.Images == nil {
		gallery.Images = []model.GalleryImage{}
	}
	images, err := json.Marshal(gallery.Images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO galleries (id, name, images, created_at, updated_at)
		VALUES ($1,$2,$3::jsonb,$4,$5)
	`, gallery.ID, gallery.Name, string(images), gallery.CreatedAt, gallery.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert gallery: %w", err)
	}
	return nil
}

// AppendGalleryImages appends entries to a gallery's image list in a single
// atomic update, so a concurrent admin edit cannot be lost to a
// read-modify-write race.
func (s *Store) AppendGalleryImages(ctx context.Context, id string, images []model.GalleryImage) error {
	if len(images) == 0 {
		return nil
	}
	encoded, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("encode images: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE galleries SET images = images || $2::jsonb, updated_at=$3 WHERE id=$1
	`, id, string(encoded), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append gallery images: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanJob(row pgx.Row) (*model.ProcessingJob, error) {
	var job model.ProcessingJob
	err := row.Scan(&job.ID, &job.GalleryID, &job.RawKeys, &job.Status, &job.Source,
		&job.RemoteProjectID, &job.ResultKeys, &job.Error, &job.CreatedAt, &job.UpdatedAt, &job.CompletedAt)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]model.ProcessingJob, error) {
	defer rows.Close()
	jobs := []model.ProcessingJob{}
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}
