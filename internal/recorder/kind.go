// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package recorder runs one recording at a time: a lifecycle wrapper around
// a per-format strategy, owned by a Supervisor.
package recorder

import (
	"fmt"
	"strings"
)

// Kind selects the download strategy.
type Kind string

const (
	KindDirect        Kind = "direct"
	KindHLSFinite     Kind = "hls_finite"
	KindHLSContinuous Kind = "hls_continuous"
	KindHLSExternal   Kind = "hls_external"
)

// Kinds lists every supported recorder kind.
var Kinds = []Kind{KindDirect, KindHLSFinite, KindHLSContinuous, KindHLSExternal}

var kindAliases = map[string]Kind{
	"direct":               KindDirect,
	"direct-download":      KindDirect,
	"mp4":                  KindDirect,
	"hls_finite":           KindHLSFinite,
	"hls-finite":           KindHLSFinite,
	"hls_basic":            KindHLSFinite,
	"vod":                  KindHLSFinite,
	"hls_continuous":       KindHLSContinuous,
	"hls-continuous":       KindHLSContinuous,
	"hls_live":             KindHLSContinuous,
	"live":                 KindHLSContinuous,
	"hls_external":         KindHLSExternal,
	"hls-external-process": KindHLSExternal,
	"hls_m4s":              KindHLSExternal,
}

// ParseKind accepts the canonical names plus the provider-facing aliases.
func ParseKind(s string) (Kind, error) {
	if k, ok := kindAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Valid reports whether k is one of Kinds.
func (k Kind) Valid() bool {
	for _, v := range Kinds {
		if k == v {
			return true
		}
	}
	return false
}

// State is the lifecycle state of one Recorder.
type State string

const (
	StateIdle     State = "idle"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
	StateStopped  State = "stopped"
	StateFailed   State = "failed"
	// StateDetached marks a run whose worker missed the stop deadline. Its
	// termination event has been sent; the goroutine may still be exiting.
	StateDetached State = "detached"
)

// Terminal reports whether no further transitions will happen.
func (s State) Terminal() bool {
	return s == StateStopped || s == StateFailed || s == StateDetached
}
