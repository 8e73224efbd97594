// Package api exposes the trigger/read surface for processing jobs: creating
// a job (which enqueues orchestration), inspecting job records, and serving
// signed download links for finished assets. The full admin CRUD layer lives
// elsewhere; this is only the narrow contract the pipeline needs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harlowframe/darkroom/internal/config"
	"github.com/harlowframe/darkroom/internal/metastore"
	"github.com/harlowframe/darkroom/internal/model"
	"github.com/harlowframe/darkroom/internal/queue"
	"github.com/harlowframe/darkroom/internal/signing"
	"github.com/harlowframe/darkroom/internal/storage"
)

// JobStore is the slice of the metastore the API needs.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.ProcessingJob) error
	GetJob(ctx context.Context, id string) (*model.ProcessingJob, error)
	ListJobs(ctx context.Context, limit int) ([]model.ProcessingJob, error)
	ListJobsByStatus(ctx context.Context, statuses ...model.JobStatus) ([]model.ProcessingJob, error)
}

// Enqueuer hands new jobs to the worker.
type Enqueuer interface {
	EnqueueOrchestrate(ctx context.Context, payload queue.OrchestratePayload) error
}

// ObjectStore is the slice of blob storage the API needs.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
}

// Server exposes the HTTP endpoints.
type Server struct {
	cfg    *config.Config
	jobs   JobStore
	enq    Enqueuer
	store  ObjectStore
	layout storage.Layout
	signer *signing.Signer
	logger zerolog.Logger
	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, jobs JobStore, enq Enqueuer, store ObjectStore, signer *signing.Signer, logger zerolog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		jobs:   jobs,
		enq:    enq,
		store:  store,
		layout: storage.NewLayout(cfg),
		signer: signer,
		logger: logger,
	}
}

// Router builds the chi router. Exposed for handler tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", s.handleCreateJob)
		r.Get("/jobs", s.handleListJobs)
		r.Get("/jobs/{id}", s.handleGetJob)
		r.Get("/jobs/{id}/assets", s.handleJobAssets)
		r.Get("/assets", s.handleAsset)
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:    s.cfg.Address,
			Handler: s.Router(),
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.logger.Info().Str("address", s.cfg.Address).Msg("api listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createJobRequest struct {
	GalleryID string   `json:"galleryId"`
	RawKeys   []string `json:"rawKeys"`
	Source    string   `json:"source"`
	ProfileID string   `json:"profileId"`
}

// handleCreateJob creates the job record and enqueues orchestration. The
// caller reads the outcome back from the record, not from this response.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if len(req.RawKeys) == 0 {
		respondError(w, http.StatusBadRequest, "rawKeys must not be empty")
		return
	}

	job := &model.ProcessingJob{
		ID:        uuid.NewString(),
		GalleryID: req.GalleryID,
		RawKeys:   req.RawKeys,
		Source:    req.Source,
		Status:    model.StatusQueued,
	}
	if err := s.jobs.CreateJob(r.Context(), job); err != nil {
		s.logger.Error().Err(err).Msg("create job")
		respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	if err := s.enq.EnqueueOrchestrate(r.Context(), queue.OrchestratePayload{
		JobID:     job.ID,
		GalleryID: job.GalleryID,
		RawKeys:   job.RawKeys,
		Source:    job.Source,
		ProfileID: req.ProfileID,
	}); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("enqueue orchestrate")
		respondError(w, http.StatusBadGateway, "job created but not enqueued")
		return
	}
	respondJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error().Err(err).Msg("get job")
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	var (
		jobs []model.ProcessingJob
		err  error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		jobs, err = s.jobs.ListJobsByStatus(r.Context(), model.JobStatus(status))
	} else {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		jobs, err = s.jobs.ListJobs(r.Context(), limit)
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("list jobs")
		respondError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleJobAssets returns expiring signed links for a completed job's result
// files, for the admin review UI.
func (s *Server) handleJobAssets(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, metastore.ErrNotFound) {
			respondError(w, http.StatusNotFound, "job not found")
			return
		}
		s.logger.Error().Err(err).Msg("get job")
		respondError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job.Status != model.StatusComplete {
		respondError(w, http.StatusConflict, "job has no results yet")
		return
	}
	expires := time.Now().Add(s.cfg.SignedURLTTL).Unix()
	urls := make([]string, 0, len(job.ResultKeys))
	for _, key := range job.ResultKeys {
		urls = append(urls, s.assetURL(key, expires))
	}
	respondJSON(w, http.StatusOK, map[string]any{"assets": urls, "expires": expires})
}

func (s *Server) assetURL(key string, expires int64) string {
	q := url.Values{}
	q.Set("key", key)
	q.Set("expires", strconv.FormatInt(expires, 10))
	q.Set("sig", s.signer.Sign(key, expires))
	return "/api/assets?" + q.Encode()
}

// handleAsset validates a signed link and streams the object.
func (s *Server) handleAsset(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	expires := r.URL.Query().Get("expires")
	sig := r.URL.Query().Get("sig")
	if key == "" || !s.signer.Validate(key, expires, sig) {
		respondError(w, http.StatusForbidden, "invalid signature")
		return
	}
	exp, _ := strconv.ParseInt(expires, 10, 64)
	if time.Now().Unix() > exp {
		respondError(w, http.StatusForbidden, "link expired")
		return
	}
	data, err := s.store.Download(r.Context(), key)
	if err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("download asset")
		respondError(w, http.StatusNotFound, "asset unavailable")
		return
	}
	w.Header().Set("Content-Type", storage.ContentTypeFor(key))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
