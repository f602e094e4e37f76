// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/streamrec/internal/events"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/recorder"
)

const maxRequestBody = 64 << 10

var errBadName = errors.New("name must be a plain directory name")

type statusResponse struct {
	recorder.Status
	LastReady *events.ReadyEvent `json:"last_ready,omitempty"`
	LastStop  *events.StopEvent  `json:"last_stop,omitempty"`
}

// startRequest is the body of POST /api/recordings. The caller has already
// resolved the stream: URL and kind are taken as given.
type startRequest struct {
	URL       string            `json:"url"`
	Kind      string            `json:"kind"`
	Name      string            `json:"name,omitempty"`
	Buffering int               `json:"buffering,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.status())
}

func (s *Server) status() statusResponse {
	resp := statusResponse{Status: s.ctl.Status()}
	s.mu.RLock()
	resp.LastReady = s.lastReady
	resp.LastStop = s.lastStop
	s.mu.RUnlock()
	return resp
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode body: %w", err))
		return
	}

	result, err := s.resolve(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	logger := xglog.WithComponentFromContext(r.Context(), "api")
	if err := s.ctl.Start(result); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, recorder.ErrInvalidResult) || errors.Is(err, recorder.ErrUnknownKind) {
			status = http.StatusBadRequest
		}
		logger.Warn().Err(err).Str(xglog.FieldURL, xglog.MaskURL(req.URL)).Msg("start rejected")
		writeError(w, status, err)
		return
	}
	logger.Info().
		Str(xglog.FieldRecorder, string(result.Kind)).
		Str(xglog.FieldPath, result.OutputDir).
		Msg("recording started via api")
	writeJSON(w, http.StatusAccepted, s.status())
}

func (s *Server) resolve(req startRequest) (recorder.ResolveResult, error) {
	kind, err := recorder.ParseKind(req.Kind)
	if err != nil {
		return recorder.ResolveResult{}, err
	}
	name := req.Name
	if name == "" {
		name = "rec-" + time.Now().UTC().Format("20060102T150405")
	}
	if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return recorder.ResolveResult{}, fmt.Errorf("%w: %q", errBadName, req.Name)
	}

	var header http.Header
	if len(req.Headers) > 0 {
		header = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			header.Set(k, v)
		}
	}
	return recorder.ResolveResult{
		URL:          req.URL,
		Kind:         kind,
		Client:       s.cfg.Client,
		AuthHeaders:  header,
		OutputDir:    filepath.Join(s.cfg.DataDir, name),
		Buffering:    req.Buffering,
		CleanupStale: s.cfg.CleanupStale,
	}, nil
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	clean := s.ctl.Stop()
	if !clean {
		logger := xglog.WithComponentFromContext(r.Context(), "api")
		logger.Warn().Msg("recorder detached on stop")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stopped":  true,
		"detached": !clean,
		"state":    s.ctl.Status().State,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
