// Package model contains the record types shared by the API, worker, and CLI.
package model

import (
	"time"
)

// JobStatus enumerates the lifecycle of a processing job. The values must
// match the text stored in processing_jobs.status; keeping them here avoids
// scattering literals like "exporting" across packages.
type JobStatus string

const (
	StatusQueued      JobStatus = "queued"
	StatusUploading   JobStatus = "uploading"
	StatusProcessing  JobStatus = "processing"
	StatusExporting   JobStatus = "exporting"
	StatusDownloading JobStatus = "downloading"
	StatusComplete    JobStatus = "complete"
	StatusFailed      JobStatus = "failed"
)

// Terminal reports whether a job in this status will never advance again.
func (s JobStatus) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// Job sources control where materialized output lands: "imagen" routes
// finished files to the admin review queue, anything else appends them
// directly to the destination gallery.
const (
	SourceImagen = "imagen"
	SourceLegacy = "legacy"
)

// ProcessingJob is one batch of staged photos moving through the pipeline.
// Raw keys are immutable after creation: they define both what gets uploaded
// to the editing service and what gets deleted from staging on success.
type ProcessingJob struct {
	ID              string     `json:"jobId"`
	GalleryID       string     `json:"galleryId,omitempty"`
	RawKeys         []string   `json:"rawKeys"`
	Status          JobStatus  `json:"status"`
	Source          string     `json:"source,omitempty"`
	RemoteProjectID string     `json:"remoteProjectId,omitempty"`
	ResultKeys      []string   `json:"resultKeys,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}
