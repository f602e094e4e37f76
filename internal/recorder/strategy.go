// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/events"
)

// Strategy is the kind-specific body of a run. Record blocks until the
// recording ends, ctx is cancelled, or an unrecoverable error occurs.
// Returning nil means the source was recorded to its end.
type Strategy interface {
	Kind() Kind
	Record(ctx context.Context, run *Run) error
}

// Run is the per-run context handed to a Strategy.
type Run struct {
	ID      string
	Result  ResolveResult
	Options Options
	Client  *http.Client
	Logger  zerolog.Logger
	Started time.Time

	ready func(events.ReadyEvent)
}

// Ready reports playable output. Only the first call per run is delivered.
func (r *Run) Ready(url, path string, section, segment int) {
	r.readyEvent(events.ReadyEvent{URL: url, Path: path, SectionIndex: section, SegmentIndex: segment})
}

func (r *Run) readyEvent(ev events.ReadyEvent) {
	if r.ready != nil {
		r.ready(ev)
	}
}

// NewStrategy returns the built-in strategy for kind.
func NewStrategy(kind Kind) (Strategy, error) {
	switch kind {
	case KindDirect:
		return &DirectStrategy{}, nil
	case KindHLSFinite:
		return &HLSStrategy{Mode: ModeFinite}, nil
	case KindHLSContinuous:
		return &HLSStrategy{Mode: ModeContinuous}, nil
	case KindHLSExternal:
		return &ExternalStrategy{}, nil
	default:
		return nil, ErrUnknownKind
	}
}
