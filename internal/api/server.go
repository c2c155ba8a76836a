// Package api exposes the HTTP interface for the aggregation service.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ctisec/ctihub/internal/intel"
	"github.com/ctisec/ctihub/internal/tasks"
)

// feedCrawler crawls one subscription on demand.
type feedCrawler interface {
	FetchSubscription(ctx context.Context, sub intel.Subscription, limit int) (intel.SourceReport, error)
}

// taskManager spawns and looks up asynchronous fetch runs.
type taskManager interface {
	Start(op string) (*tasks.Task, error)
	Get(id string) (*tasks.Task, bool)
}

// initialFetchLimit bounds the fetch kicked off right after subscribing.
const initialFetchLimit = 10

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router  chi.Router
	tasks   taskManager
	crawler feedCrawler
	subs    intel.SubscriptionStore
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(tm taskManager, crawler feedCrawler, subs intel.SubscriptionStore, logger *zap.Logger) *Server {
	s := &Server{
		tasks:   tm,
		crawler: crawler,
		subs:    subs,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", s.startTask)
			r.Get("/{task_id}", s.getTask)
		})
		r.Route("/feeds", func(r chi.Router) {
			r.Post("/", s.subscribe)
			r.Delete("/", s.unsubscribe)
			r.Post("/enable", s.setEnabled)
			r.Post("/fetch", s.fetchFeed)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type taskRequest struct {
	Op string `json:"op"`
}

func (s *Server) startTask(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if req.Op == "" {
		req.Op = tasks.OpFetchAndRecommend
	}

	task, err := s.tasks.Start(req.Op)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"op":      task.Op,
		"status":  string(task.Status),
	})
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "task_id")
	task, ok := s.tasks.Get(id)
	if !ok {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, task)
}

type feedRequest struct {
	Owner   string `json:"owner"`
	URL     string `json:"url"`
	MinRole string `json:"min_role"`
	Enabled *bool  `json:"enabled"`
	Limit   int    `json:"limit"`
}

// validate checks identity fields and the feed URL. Unknown roles
// degrade to public, same as everywhere else in the pipeline.
func (req feedRequest) validate() (intel.Subscription, string) {
	if req.Owner == "" || req.URL == "" {
		return intel.Subscription{}, "owner and url are required"
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return intel.Subscription{}, "url must be an absolute http(s) URL"
	}
	return intel.Subscription{
		Owner:   req.Owner,
		URL:     req.URL,
		MinRole: intel.ParseRole(req.MinRole),
	}, ""
}

func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sub, problem := req.validate()
	if problem != "" {
		s.writeError(w, http.StatusBadRequest, problem)
		return
	}
	if err := s.subs.Upsert(r.Context(), sub); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Kick an initial bounded crawl so the subscriber sees content before
	// the next scheduled sweep. Detached from the request context.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := s.crawler.FetchSubscription(ctx, sub, initialFetchLimit); err != nil {
			s.logger.Warn("initial subscription fetch failed",
				zap.String("owner", sub.Owner),
				zap.String("url", sub.URL),
				zap.Error(err))
		}
	}()

	s.writeJSON(w, http.StatusCreated, map[string]string{
		"owner":    sub.Owner,
		"url":      sub.URL,
		"min_role": string(sub.MinRole),
	})
}

func (s *Server) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Owner == "" || req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "owner and url are required")
		return
	}
	if err := s.subs.Delete(r.Context(), req.Owner, req.URL); err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) setEnabled(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Owner == "" || req.URL == "" || req.Enabled == nil {
		s.writeError(w, http.StatusBadRequest, "owner, url and enabled are required")
		return
	}
	if err := s.subs.SetEnabled(r.Context(), req.Owner, req.URL, *req.Enabled); err != nil {
		s.writeError(w, http.StatusNotFound, "subscription not found")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"enabled": *req.Enabled})
}

func (s *Server) fetchFeed(w http.ResponseWriter, r *http.Request) {
	var req feedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sub, problem := req.validate()
	if problem != "" {
		s.writeError(w, http.StatusBadRequest, problem)
		return
	}
	report, err := s.crawler.FetchSubscription(r.Context(), sub, req.Limit)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
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

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
