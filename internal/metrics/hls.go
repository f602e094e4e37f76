// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HLSSegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_hls_segments_total",
		Help: "HLS segments handled by the segment processor by result",
	}, []string{"kind", "result"})

	HLSSegmentBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_hls_segment_bytes_total",
		Help: "Rewritten bytes appended to section files",
	}, []string{"kind"})

	HLSSectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_hls_sections_total",
		Help: "Section files opened (one per encoding profile change)",
	}, []string{"kind"})

	HLSPlaylistFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_hls_playlist_fetches_total",
		Help: "Playlist fetches by playlist type and result",
	}, []string{"type", "result"})

	HLSSegmentRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "streamrec_hls_segment_retries_total",
		Help: "Segment download attempts beyond the first",
	})

	DRMDetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "streamrec_drm_detections_total",
		Help: "DRM detections by signal source",
	}, []string{"source"})
)

// IncSegment records one processed segment outcome (ok, failed, drm).
func IncSegment(kind, result string) {
	HLSSegmentsTotal.WithLabelValues(kind, result).Inc()
}

// IncPlaylistFetch records one playlist fetch outcome.
func IncPlaylistFetch(playlistType, result string) {
	HLSPlaylistFetchesTotal.WithLabelValues(playlistType, result).Inc()
}

// IncDRM records a DRM detection for the given source (playlist, key, segment, ...).
func IncDRM(source string) {
	DRMDetectionsTotal.WithLabelValues(orUnknown(source)).Inc()
}
