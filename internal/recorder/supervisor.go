// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/events"
	xglog "github.com/ManuGH/streamrec/internal/log"
)

// Factory builds the strategy for a kind.
type Factory func(Kind) (Strategy, error)

// Status is a snapshot of the active recorder.
type Status struct {
	Kind      Kind      `json:"kind,omitempty"`
	State     State     `json:"state"`
	RunID     string    `json:"run_id,omitempty"`
	URL       string    `json:"url,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
}

// Supervisor owns at most one recorder. Start and Stop are serialised, so
// two runs never overlap: a new run starts only after the previous one has
// sent its termination event.
type Supervisor struct {
	mu      sync.Mutex
	factory Factory
	bc      events.Broadcaster
	opts    Options
	active  *Recorder
	url     string
	logger  zerolog.Logger
}

// NewSupervisor uses NewStrategy when factory is nil.
func NewSupervisor(factory Factory, bc events.Broadcaster, opts Options) *Supervisor {
	if factory == nil {
		factory = NewStrategy
	}
	return &Supervisor{
		factory: factory,
		bc:      bc,
		opts:    opts,
		logger:  xglog.WithComponent("supervisor"),
	}
}

// SetOptions replaces the options used for subsequent runs.
func (s *Supervisor) SetOptions(opts Options) {
	s.mu.Lock()
	s.opts = opts
	s.mu.Unlock()
}

// Start stops any active run, then starts a recorder for result.Kind.
func (s *Supervisor) Start(result ResolveResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !s.active.State().Terminal() {
		s.logger.Info().Str(xglog.FieldRecorder, string(s.active.Kind())).Msg("stopping active recorder before new run")
		if !s.active.Stop() {
			s.logger.Warn().Str(xglog.FieldRunID, s.active.RunID()).Msg("previous recorder detached")
		}
	}

	strategy, err := s.factory(result.Kind)
	if err != nil {
		return err
	}
	rec := New(strategy, s.bc, s.opts)
	s.active = rec
	s.url = result.URL
	return rec.Start(result)
}

// Stop stops the active run. It returns false if the worker had to be
// detached.
func (s *Supervisor) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return true
	}
	return s.active.Stop()
}

// Status reports the active or most recent run.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return Status{State: StateIdle}
	}
	return Status{
		Kind:      s.active.Kind(),
		State:     s.active.State(),
		RunID:     s.active.RunID(),
		URL:       xglog.MaskURL(s.url),
		StartedAt: s.active.StartedAt(),
	}
}

// Done returns the active recorder's exit channel, nil when idle.
func (s *Supervisor) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return nil
	}
	return s.active.Done()
}
