// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api is the HTTP adapter over the orchestrator and the lifecycle
// controller. It holds no job state of its own.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/xgrab/internal/api/middleware"
	"github.com/ManuGH/xgrab/internal/health"
	"github.com/ManuGH/xgrab/internal/model"
)

// Submitter starts jobs.
type Submitter interface {
	Submit(req model.DownloadRequest) (model.Job, error)
}

// Controller is the lifecycle surface the API exposes.
type Controller interface {
	Jobs() []model.DownloadProgress
	Job(id string) (model.DownloadProgress, bool)
	Pause(ctx context.Context, id string) (model.Job, error)
	Resume(ctx context.Context, id string) (model.Job, error)
	Cancel(ctx context.Context, id string) (model.Job, error)
	History() []model.HistoryRecord
	ClearHistory(ctx context.Context) error
	DeleteDownloaded(ctx context.Context, id string) (model.HistoryRecord, error)
}

// Config tunes the HTTP surface.
type Config struct {
	Version string
	// SubmitRateLimit is submissions per minute per client; 0 disables it.
	SubmitRateLimit int
	// Readiness backs /readyz; nil reports ready unconditionally.
	Readiness *health.Manager
}

// Server routes HTTP requests to the core.
type Server struct {
	submit Submitter
	ctl    Controller
	cfg    Config
}

// New returns a Server.
func New(submit Submitter, ctl Controller, cfg Config) *Server {
	return &Server{submit: submit, ctl: ctl, cfg: cfg}
}

func (s *Server) readiness() *health.Manager {
	if s.cfg.Readiness != nil {
		return s.cfg.Readiness
	}
	return health.NewManager(s.cfg.Version)
}

// Handler returns the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		EnableLogging:         true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.readiness().ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/downloads", func(r chi.Router) {
			r.With(middleware.SubmitRateLimit(s.cfg.SubmitRateLimit)).Post("/", s.handleSubmit)
			r.Get("/", s.handleListJobs)
			r.Get("/{id}", s.handleGetJob)
			r.Post("/{id}/pause", s.handlePause)
			r.Post("/{id}/resume", s.handleResume)
			r.Post("/{id}/cancel", s.handleCancel)
		})
		r.Route("/history", func(r chi.Router) {
			r.Get("/", s.handleListHistory)
			r.Delete("/", s.handleClearHistory)
			r.Delete("/{id}", s.handleDeleteHistory)
		})
	})
	return r
}
