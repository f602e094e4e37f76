// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"errors"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

var (
	ErrAlreadyRunning         = errors.New("recorder already started")
	ErrUnknownKind            = errors.New("unknown recorder kind")
	ErrInvalidResult          = errors.New("invalid resolve result")
	ErrEmptyOutput            = errors.New("output file missing or empty")
	ErrTooManySegmentFailures = errors.New("too many consecutive segment failures")
	ErrMasterUnavailable      = errors.New("master playlist unavailable")
	ErrProcessFailed          = errors.New("external process failed")
	ErrWorkerPanic            = errors.New("recorder worker panicked")

	// ErrAccessDenied is the provider refusing the request (401/403).
	ErrAccessDenied = httpx.ErrAccessDenied
)

// Classify maps a worker error to its termination class. Protection wins
// over everything else, then access denial, then timeouts.
func Classify(err error) events.ErrorClass {
	switch {
	case err == nil:
		return events.ClassNone
	case drm.IsProtected(err):
		return events.ClassDRMProtected
	case errors.Is(err, ErrAccessDenied):
		return events.ClassAccessDenied
	case httpx.IsTimeout(err):
		return events.ClassTimeout
	default:
		return events.ClassGenericFailure
	}
}
