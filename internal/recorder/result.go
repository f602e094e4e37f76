// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"fmt"
	"net/http"
	"net/url"
)

// ResolveResult is what the resolver hands over for one recording. The
// client is borrowed for the duration of the run: it is never closed and its
// jar is never touched.
type ResolveResult struct {
	URL    string
	Kind   Kind
	Client *http.Client
	// AuthHeaders are sent with every request of the run.
	AuthHeaders http.Header
	// FFmpegHeaders is a ready-made "Name: value\r\n" block for the external
	// kind. Derived from AuthHeaders when empty.
	FFmpegHeaders string
	OutputDir     string
	// Buffering is the segment count before readiness; 0 uses the default.
	Buffering    int
	CleanupStale bool
}

// Validate checks the invariants a recorder relies on.
func (r ResolveResult) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}
	u, err := url.Parse(r.URL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%w: url must be absolute", ErrInvalidResult)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidResult, u.Scheme)
	}
	if r.OutputDir == "" {
		return fmt.Errorf("%w: output directory is required", ErrInvalidResult)
	}
	if r.Buffering < 0 {
		return fmt.Errorf("%w: buffering must not be negative", ErrInvalidResult)
	}
	return nil
}
