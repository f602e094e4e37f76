// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup runs transcoder processes in their own process group so
// a stop request reaches ffmpeg and anything it forked.
package procgroup

// Signal is the strength of a stop request.
type Signal int

const (
	// Graceful asks the group to exit (SIGTERM on unix).
	Graceful Signal = iota
	// Forced ends the group unconditionally (SIGKILL on unix).
	Forced
)

func (s Signal) String() string {
	if s == Forced {
		return "SIGKILL"
	}
	return "SIGTERM"
}
