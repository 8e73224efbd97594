// Package pipeline implements the processing core: the orchestrator that
// starts a batch on the remote editing service, and the poller that advances
// in-flight jobs until they terminate. All coordination happens through the
// persisted job record; neither component holds state between invocations.
package pipeline

import (
	"context"

	"github.com/harlowframe/darkroom/internal/imagen"
	"github.com/harlowframe/darkroom/internal/model"
)

// MetadataStore is the slice of the metastore the pipeline needs.
type MetadataStore interface {
	GetJob(ctx context.Context, id string) (*model.ProcessingJob, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, extra map[string]any) error
	ClaimJobStatus(ctx context.Context, id string, from, to model.JobStatus) (bool, error)
	ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]model.ProcessingJob, error)
	AppendGalleryImages(ctx context.Context, id string, images []model.GalleryImage) error
}

// ObjectStore is the slice of blob storage the pipeline needs.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Remove(ctx context.Context, keys []string) error
}

// EditService is the remote photo-editing workflow.
type EditService interface {
	HasCredentials() bool
	CreateProject(ctx context.Context) (string, error)
	UploadLinks(ctx context.Context, projectID string, filenames []string) (map[string]string, error)
	UploadFile(ctx context.Context, link string, data []byte) error
	StartEdit(ctx context.Context, projectID, profileKey string) error
	EditStatus(ctx context.Context, projectID string) (imagen.Status, error)
	StartExport(ctx context.Context, projectID, idempotencyKey string) error
	ExportStatus(ctx context.Context, projectID string) (imagen.Status, error)
	ExportLinks(ctx context.Context, projectID string) ([]imagen.FileLink, error)
	Download(ctx context.Context, url string) ([]byte, error)
}
