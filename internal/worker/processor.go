// Package worker plugs the pipeline into the asynq worker loop.
package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/harlowframe/darkroom/internal/pipeline"
	"github.com/harlowframe/darkroom/internal/queue"
)

// Processor binds task types to the orchestrator and poller.
type Processor struct {
	orchestrator *pipeline.Orchestrator
	poller       *pipeline.Poller
	logger       zerolog.Logger
}

// NewProcessor constructs a worker processor.
func NewProcessor(orchestrator *pipeline.Orchestrator, poller *pipeline.Poller, logger zerolog.Logger) *Processor {
	return &Processor{orchestrator: orchestrator, poller: poller, logger: logger}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeOrchestrate, p.handleOrchestrate)
	mux.HandleFunc(queue.TypePoll, p.handlePoll)
	return mux
}

func (p *Processor) handleOrchestrate(ctx context.Context, task *asynq.Task) error {
	var payload queue.OrchestratePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	// Failures are already terminal on the job record; the task error only
	// archives the task (MaxRetry is zero).
	return p.orchestrator.Run(ctx, pipeline.OrchestrateRequest{
		JobID:     payload.JobID,
		GalleryID: payload.GalleryID,
		RawKeys:   payload.RawKeys,
		Source:    payload.Source,
		ProfileID: payload.ProfileID,
	})
}

func (p *Processor) handlePoll(ctx context.Context, _ *asynq.Task) error {
	return p.poller.Poll(ctx)
}
