// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRunID     = "run_id"
	FieldRecorder  = "recorder"
	FieldComponent = "component"
	FieldEvent     = "event"
	FieldRequestID = "request_id"

	// HLS fields
	FieldSectionIndex = "section_index"
	FieldSegmentIndex = "segment_index"
	FieldSequence     = "sequence"
	FieldResolution   = "resolution"
	FieldOffset       = "offset"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"

	// Error fields
	FieldErrorClass = "error_class"
)
