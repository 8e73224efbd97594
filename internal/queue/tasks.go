// Package queue defines the asynq task types that connect the trigger surface
// to the worker.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	// TypeOrchestrate is enqueued once per newly created processing job.
	TypeOrchestrate = "pipeline:orchestrate"
	// TypePoll is enqueued on a fixed schedule and carries no payload.
	TypePoll = "pipeline:poll"
)

// OrchestratePayload tells the worker which job to orchestrate and with what
// inputs. The job record itself already exists when this is enqueued.
type OrchestratePayload struct {
	JobID     string   `json:"job_id"`
	GalleryID string   `json:"gallery_id,omitempty"`
	RawKeys   []string `json:"raw_keys"`
	Source    string   `json:"source,omitempty"`
	ProfileID string   `json:"profile_id,omitempty"`
}

// Client wraps an asynq client with typed enqueue helpers.
type Client struct {
	inner *asynq.Client
}

// NewClient constructs a Client.
func NewClient(inner *asynq.Client) *Client {
	return &Client{inner: inner}
}

// EnqueueOrchestrate enqueues a single-shot orchestration task. MaxRetry is
// zero on purpose: a failed batch is resumed by an explicit re-trigger, never
// by the queue.
func (c *Client) EnqueueOrchestrate(ctx context.Context, payload OrchestratePayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	task := asynq.NewTask(TypeOrchestrate, data)
	if _, err := c.inner.EnqueueContext(ctx, task, asynq.MaxRetry(0)); err != nil {
		return fmt.Errorf("enqueue orchestrate task: %w", err)
	}
	return nil
}

// NewPollTask builds the periodic poll task registered with the scheduler.
func NewPollTask() *asynq.Task {
	return asynq.NewTask(TypePoll, nil)
}
