// Package server exposes the HTTP surface: cron trigger endpoints, the
// immediate-post API, log listing, health and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/autopost-agent/internal/dispatcher"
	"github.com/autopost-agent/internal/models"
	"github.com/autopost-agent/internal/scheduler"
	"github.com/autopost-agent/internal/storage"
	"github.com/autopost-agent/pkg/logger"
)

// SchedulerService is the scheduling entry point the server triggers
type SchedulerService interface {
	ScheduleDailyPosts(ctx context.Context) (*scheduler.Result, error)
}

// DispatchService is the dispatch and immediate-post entry point
type DispatchService interface {
	Run(ctx context.Context) (*dispatcher.RunResult, error)
	PostNow(ctx context.Context, projectID string) (string, error)
}

// Server is the HTTP front of the posting pipeline
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// New builds the router and the underlying http.Server. metricsHandler may
// be nil to omit the /metrics endpoint.
func New(addr string, sched SchedulerService, disp DispatchService, repo storage.Repository, metricsHandler http.Handler, log *logger.Logger) *Server {
	slog := log.WithComponent("server")

	return &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      newRouter(sched, disp, repo, metricsHandler, slog),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute,
		},
		log: slog,
	}
}

func newRouter(sched SchedulerService, disp DispatchService, repo storage.Repository, metricsHandler http.Handler, log *logger.Logger) http.Handler {
	h := &handlers{sched: sched, disp: disp, repo: repo, log: log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/healthz", h.health)
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Get("/cron/daily", h.cronDaily)
	r.Get("/cron/dispatch", h.cronDispatch)

	r.Route("/api/projects/{projectID}", func(r chi.Router) {
		r.Post("/post-now", h.postNow)
		r.Get("/logs", h.listLogs)
	})

	return r
}

// Start blocks serving HTTP until Shutdown or a listener error
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

type handlers struct {
	sched SchedulerService
	disp  DispatchService
	repo  storage.Repository
	log   *logger.Logger
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// cronDaily creates today's slots for every project. Idempotent; meant to
// be hit once a day but safe on every invocation.
func (h *handlers) cronDaily(w http.ResponseWriter, r *http.Request) {
	result, err := h.sched.ScheduleDailyPosts(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Daily scheduling failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	errMsgs := make([]string, 0, len(result.Errors))
	for _, e := range result.Errors {
		errMsgs = append(errMsgs, e.Error())
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"projects_seen":      result.ProjectsSeen,
		"projects_scheduled": result.ProjectsScheduled,
		"slots_created":      result.SlotsCreated,
		"errors":             errMsgs,
	})
}

// cronDispatch runs one dispatch pass: schedule, claim due slots, process
func (h *handlers) cronDispatch(w http.ResponseWriter, r *http.Request) {
	result, err := h.disp.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Dispatch failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// postNow publishes immediately for the project. Quota exhaustion maps to
// 429 with the countdown until the daily reset.
func (h *handlers) postNow(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	tweetID, err := h.disp.PostNow(r.Context(), projectID)
	if err != nil {
		var quotaErr *dispatcher.QuotaExceededError
		if errors.As(err, &quotaErr) {
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error": "本日の投稿上限に達しました",
				"resetTime": map[string]int{
					"hours":   quotaErr.Hours,
					"minutes": quotaErr.Minutes,
				},
			})
			return
		}
		h.log.Error().Err(err).Str("project_id", projectID).Msg("Immediate post failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"tweet_id": tweetID})
}

// listLogs returns the project's post history, newest first. Supports
// ?status=SUCCESS|FAILED and ?limit=N.
func (h *handlers) listLogs(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	filter := storage.DefaultPostLogFilter()
	filter.ProjectID = &projectID

	if s := r.URL.Query().Get("status"); s != "" {
		status := models.LogStatus(s)
		filter.Status = &status
	}
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	logs, err := h.repo.ListPostLogs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Str("project_id", projectID).Msg("Failed to list logs")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs, "count": len(logs)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
