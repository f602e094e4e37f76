// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api exposes the recorder supervisor over a small HTTP control
// surface: health, status, start, stop and Prometheus metrics.
package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ManuGH/streamrec/internal/api/middleware"
	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/recorder"
)

// Controller is the part of the supervisor the API drives.
type Controller interface {
	Start(recorder.ResolveResult) error
	Stop() bool
	Status() recorder.Status
}

type Config struct {
	// DataDir is the parent of every output directory created via the API.
	DataDir string
	// Client is lent to recordings started over the API.
	Client       *http.Client
	CleanupStale bool
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
	// TracingService names server spans; empty disables tracing.
	TracingService string
}

// Server serves the control API and remembers the latest run events.
type Server struct {
	ctl Controller
	cfg Config

	mu        sync.RWMutex
	lastReady *events.ReadyEvent
	lastStop  *events.StopEvent
}

func NewServer(ctl Controller, cfg Config) *Server {
	return &Server{ctl: ctl, cfg: cfg}
}

// Ready records ev as the latest readiness notification.
func (s *Server) Ready(ev events.ReadyEvent) {
	s.mu.Lock()
	s.lastReady = &ev
	s.mu.Unlock()
}

// Stopped records ev as the latest termination notification.
func (s *Server) Stopped(ev events.StopEvent) {
	s.mu.Lock()
	s.lastStop = &ev
	s.mu.Unlock()
}

// Handler builds the router with the ingress middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if s.cfg.TracingService != "" {
		r.Use(middleware.OTelHTTP(s.cfg.TracingService))
	}
	r.Use(middleware.AccessLog)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.cfg.RateLimit, time.Minute))
		r.Get("/status", s.handleStatus)
		r.Post("/recordings", s.handleStart)
		r.Post("/stop", s.handleStop)
	})
	return r
}
