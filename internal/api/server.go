// Package api exposes the operational HTTP surface: manual job enqueue,
// job and queue inspection, and recent ingestion runs.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"catalog-ingestion/internal/models"
	"catalog-ingestion/internal/ratelimit"
	"catalog-ingestion/internal/store"
	"catalog-ingestion/internal/telemetry"
)

// Queue is the slice of the job queue the API needs.
type Queue interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload models.Payload) (string, error)
	GetJob(ctx context.Context, id string) (models.Job, error)
	Stats(ctx context.Context) (map[models.JobStatus]int, error)
}

// Server wires HTTP handlers for the ops API.
type Server struct {
	queue   Queue
	store   *store.Store
	limiter *ratelimit.TokenBucket
	logger  *slog.Logger
}

// New constructs the API server. limiter may be nil, in which case
// enqueues are not throttled.
func New(queue Queue, st *store.Store, limiter *ratelimit.TokenBucket, logger *slog.Logger) *Server {
	return &Server{
		queue:   queue,
		store:   st,
		limiter: limiter,
		logger:  logger,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleEnqueue)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Get("/queue/stats", s.handleQueueStats)
	r.Get("/runs", s.handleRecentRuns)
	r.Get("/runs/{id}", s.handleGetRun)
	return r
}

type enqueueRequest struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type enqueueResponse struct {
	JobID string `json:"job_id"`
}

var enqueueableTypes = map[models.JobType]bool{
	models.JobIngestSource:     true,
	models.JobPrepAssets:       true,
	models.JobRefreshPrice:     true,
	models.JobRefreshInventory: true,
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	jobType := models.JobType(req.Type)
	if !enqueueableTypes[jobType] {
		http.Error(w, fmt.Sprintf("unknown job type %q", req.Type), http.StatusBadRequest)
		return
	}
	if req.Payload == nil {
		req.Payload = map[string]any{}
	}

	if s.limiter != nil {
		tenant := tenantFromRequest(r)
		allowed, _, err := s.limiter.Allow(r.Context(), fmt.Sprintf("rl:%s", tenant))
		if err != nil {
			http.Error(w, "rate limit error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.RateLimitRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	id, err := s.queue.Enqueue(r.Context(), jobType, models.Payload(req.Payload))
	if err != nil {
		s.logger.Error("enqueue failed", "job_type", jobType, "error", err)
		http.Error(w, "enqueue failed", http.StatusInternalServerError)
		return
	}
	telemetry.EnqueueCounter.Inc()

	writeJSON(w, http.StatusAccepted, enqueueResponse{JobID: id})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.queue.GetJob(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "job not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		http.Error(w, "failed to read queue stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRecentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.store.RecentRuns(r.Context(), 50)
	if err != nil {
		http.Error(w, "failed to list runs", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "run not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load run", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func tenantFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-Tenant-ID"); v != "" {
		return v
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
