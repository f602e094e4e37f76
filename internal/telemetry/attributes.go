// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanRecorderRun = "recorder.run"
	SpanHLSSegment  = "hls.segment"
)

// Attribute keys shared by recorder spans.
const (
	RecorderKindKey  = "recorder.kind"
	RecorderRunIDKey = "recorder.run_id"
	RecorderReason   = "recorder.reason"

	SegmentSequenceKey = "hls.segment.sequence"
	SegmentSectionKey  = "hls.segment.section"
	SegmentBytesKey    = "hls.segment.bytes"
	SegmentOffsetKey   = "hls.segment.offset"

	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// RunAttributes creates attributes for a recorder.run span.
func RunAttributes(kind, runID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(RecorderKindKey, kind),
		attribute.String(RecorderRunIDKey, runID),
	}
}

// SegmentAttributes creates attributes for an hls.segment span.
func SegmentAttributes(sequence uint64, section int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int64(SegmentSequenceKey, int64(sequence)),
		attribute.Int(SegmentSectionKey, section),
	}
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}

// RecordError marks span as failed with a classification.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(ErrorAttributes(errorType)...)
	span.SetStatus(codes.Error, errorType)
}
