// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

const (
	TopicReady = "recorder.ready"
	TopicStop  = "recorder.stop"
)

// Reason says why a run terminated.
type Reason string

const (
	ReasonCompleted   Reason = "completed"
	ReasonError       Reason = "error"
	ReasonUserStopped Reason = "user_stopped"
)

// ErrorClass is set on a StopEvent only when Reason is ReasonError.
type ErrorClass string

const (
	ClassNone           ErrorClass = ""
	ClassGenericFailure ErrorClass = "generic_failure"
	ClassDRMProtected   ErrorClass = "drm_protected"
	ClassTimeout        ErrorClass = "timeout"
	ClassAccessDenied   ErrorClass = "access_denied"
)

// ReadyEvent signals that enough output is on disk for playback to begin.
type ReadyEvent struct {
	RunID        string `json:"run_id"`
	URL          string `json:"url"`
	Path         string `json:"path"`
	SectionIndex int    `json:"section_index"`
	SegmentIndex int    `json:"segment_index"`
	Recorder     string `json:"recorder"`
}

// StopEvent is the single terminal notification of a run.
type StopEvent struct {
	RunID      string     `json:"run_id"`
	Reason     Reason     `json:"reason"`
	ErrorClass ErrorClass `json:"error_class,omitempty"`
	Message    string     `json:"message,omitempty"`
	Recorder   string     `json:"recorder"`
}

// Failed reports whether the run ended with an error.
func (e StopEvent) Failed() bool { return e.Reason == ReasonError }
