// Package api exposes the HTTP interface for the scraper service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tubewatch/yt-scraper/internal/config"
	"github.com/tubewatch/yt-scraper/internal/dispatcher"
	"github.com/tubewatch/yt-scraper/internal/metrics"
	"github.com/tubewatch/yt-scraper/internal/scrape"
)

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router     chi.Router
	jobStore   scrape.JobStore
	catalog    scrape.CatalogStore
	dispatcher *dispatcher.Dispatcher
	gate       scrape.Gate
	idGen      scrape.IDGenerator
	clock      scrape.Clock
	cfg        config.Config
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	jobStore scrape.JobStore,
	catalog scrape.CatalogStore,
	dispatcher *dispatcher.Dispatcher,
	gate scrape.Gate,
	idGen scrape.IDGenerator,
	clock scrape.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		jobStore:   jobStore,
		catalog:    catalog,
		dispatcher: dispatcher,
		gate:       gate,
		idGen:      idGen,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(120 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/scrapes", func(r chi.Router) {
			r.Post("/channels", s.submitChannelsJob)
			r.Post("/videos", s.submitVideoJob)
			r.Route("/{job_id}", func(r chi.Router) {
				r.Get("/status", s.getJobStatus)
				r.Get("/result", s.getJobResult)
			})
		})
		r.Get("/status", s.getLatestStatus)
		r.Get("/results", s.getResults)
		r.Get("/reset", s.reset)
		r.Post("/reset", s.reset)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type channelsJobRequest struct {
	Channels map[string]string `json:"channels"`
}

// submitChannelsJob starts a scrape over the requested channels, falling back
// to the configured standard set when the body names none.
func (s *Server) submitChannelsJob(w http.ResponseWriter, r *http.Request) {
	var req channelsJobRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	channels := req.Channels
	if len(channels) == 0 {
		channels = s.cfg.StandardChannels
	}
	if len(channels) == 0 {
		writeError(w, http.StatusBadRequest, "no channels requested and no standard channels configured")
		return
	}

	targets, err := buildChannelTargets(channels)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	params := scrape.JobParameters{
		Kind:        scrape.JobKindChannels,
		Channels:    targets,
		MaxComments: s.cfg.Scraper.MaxComments,
	}
	s.submitJob(w, r, params)
}

type videoJobRequest struct {
	URL         string `json:"url"`
	VideoURL    string `json:"video_url"`
	ChannelName string `json:"channel_name"`
	MaxComments int    `json:"max_comments"`
}

// submitVideoJob starts a scrape of a single watch page. The URL arrives
// either as a "video_url" form field or as a JSON body.
func (s *Server) submitVideoJob(w http.ResponseWriter, r *http.Request) {
	var req videoJobRequest
	contentType := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	default:
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form body")
			return
		}
		req.VideoURL = r.PostFormValue("video_url")
		req.ChannelName = r.PostFormValue("channel_name")
	}

	rawURL := req.VideoURL
	if rawURL == "" {
		rawURL = req.URL
	}
	if strings.TrimSpace(rawURL) == "" {
		writeError(w, http.StatusBadRequest, "video_url is required")
		return
	}

	normalized, err := scrape.NormalizeURL(rawURL)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid video url: %v", err))
		return
	}
	if _, err := scrape.WatchVideoID(normalized); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("not a watch url: %v", err))
		return
	}

	maxComments := req.MaxComments
	if maxComments <= 0 {
		maxComments = s.cfg.Scraper.MaxComments
	}
	params := scrape.JobParameters{
		Kind:        scrape.JobKindVideo,
		VideoURL:    normalized,
		ChannelName: strings.TrimSpace(req.ChannelName),
		MaxComments: maxComments,
	}
	s.submitJob(w, r, params)
}

// submitJob acquires the single-flight gate, persists the job, and enqueues
// it. Exactly one job runs at a time; concurrent submissions get 409.
func (s *Server) submitJob(w http.ResponseWriter, r *http.Request, params scrape.JobParameters) {
	if !s.gate.TryAcquire() {
		writeError(w, http.StatusConflict, "a scrape job is already running")
		return
	}

	jobID, err := s.enqueueJob(r.Context(), params)
	if err != nil {
		s.gate.Release()
		status := http.StatusInternalServerError
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusRequestTimeout
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) enqueueJob(ctx context.Context, params scrape.JobParameters) (string, error) {
	jobID, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := scrape.Job{
		ID:         jobID,
		Kind:       params.Kind,
		Status:     scrape.JobStatusQueued,
		Submitted:  now,
		Parameters: params,
		Counters:   scrape.JobCounters{},
	}
	if err := s.jobStore.CreateJob(ctx, job); err != nil {
		return "", fmt.Errorf("create job: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := scrape.QueueItem{
		JobID:     jobID,
		Params:    params,
		Attempt:   1,
		Submitted: now.Unix(),
	}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}
	return jobID, nil
}

func (s *Server) getJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job})
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	job, err := s.jobStore.GetJob(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, scrape.JobResult{
		Job:      job,
		Channels: job.Channels,
		Video:    job.Video,
	})
}

// getLatestStatus reports the most recently submitted job.
func (s *Server) getLatestStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobStore.LatestJob(r.Context())
	if errors.Is(err, scrape.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"job": nil, "busy": gateBusy(s.gate)})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load latest job")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"job": job, "busy": gateBusy(s.gate)})
}

// getResults returns every channel with its videos and their comments.
func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channels, err := s.catalog.ListChannels(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list channels")
		return
	}

	listings := make([]scrape.ChannelListing, 0, len(channels))
	for _, ch := range channels {
		videos, err := s.catalog.ListVideos(ctx, ch.ID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list videos")
			return
		}
		videoListings := make([]scrape.VideoListing, 0, len(videos))
		for _, v := range videos {
			comments, err := s.catalog.ListComments(ctx, v.ID)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "failed to list comments")
				return
			}
			videoListings = append(videoListings, scrape.VideoListing{Video: v, Comments: comments})
		}
		listings = append(listings, scrape.ChannelListing{Channel: ch, Videos: videoListings})
	}
	writeJSON(w, http.StatusOK, map[string]any{"channels": listings})
}

// reset clears job history. It refuses while a job is running, briefly
// holding the gate so no job can start mid-reset.
func (s *Server) reset(w http.ResponseWriter, r *http.Request) {
	if !s.gate.TryAcquire() {
		writeError(w, http.StatusConflict, "a scrape job is currently running")
		return
	}
	defer s.gate.Release()

	if err := s.jobStore.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// buildChannelTargets validates the name-to-URL map and returns targets in a
// stable, name-sorted order.
func buildChannelTargets(channels map[string]string) ([]scrape.ChannelTarget, error) {
	names := make([]string, 0, len(channels))
	for name := range channels {
		names = append(names, name)
	}
	sort.Strings(names)

	targets := make([]scrape.ChannelTarget, 0, len(names))
	for _, name := range names {
		rawURL := channels[name]
		if strings.TrimSpace(name) == "" {
			return nil, errors.New("channel name must not be empty")
		}
		normalized, err := scrape.NormalizeURL(rawURL)
		if err != nil {
			return nil, fmt.Errorf("channel %s: invalid url: %w", name, err)
		}
		targets = append(targets, scrape.ChannelTarget{Name: name, URL: normalized})
	}
	return targets, nil
}

type busyReporter interface {
	Busy() bool
}

func gateBusy(g scrape.Gate) bool {
	if reporter, ok := g.(busyReporter); ok {
		return reporter.Busy()
	}
	return false
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
