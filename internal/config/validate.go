// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ValidationError lists every invalid field of one configuration.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Fields, "; ")
}

// Validate checks value ranges. All problems are reported together.
func Validate(cfg AppConfig) error {
	v := &ValidationError{}
	add := func(format string, args ...any) { v.Fields = append(v.Fields, fmt.Sprintf(format, args...)) }

	if _, err := zerolog.ParseLevel(cfg.LogLevel); err != nil {
		add("logLevel %q is not a zerolog level", cfg.LogLevel)
	}
	if cfg.DataDir == "" {
		add("dataDir must be set")
	}
	if cfg.API.RateLimit < 0 {
		add("api.rateLimit must be >= 0")
	}
	if cfg.Recorder.Buffering < 1 {
		add("recorder.buffering must be >= 1, got %d", cfg.Recorder.Buffering)
	}
	if cfg.HLS.SegmentRetries < 1 {
		add("hls.segmentRetries must be >= 1, got %d", cfg.HLS.SegmentRetries)
	}
	if cfg.Direct.ChunkSize < 1 {
		add("direct.chunkSize must be >= 1, got %d", cfg.Direct.ChunkSize)
	}
	if cfg.FFmpeg.Bin == "" {
		add("ffmpeg.bin must be set")
	}
	if cfg.FFmpeg.ReadyTicks < 1 {
		add("ffmpeg.readyTicks must be >= 1, got %d", cfg.FFmpeg.ReadyTicks)
	}
	for name, d := range map[string]time.Duration{
		"recorder.stopTimeout":    cfg.Recorder.StopTimeout,
		"hls.segmentTimeout":      cfg.HLS.SegmentTimeout,
		"hls.playlistTimeout":     cfg.HLS.PlaylistTimeout,
		"hls.masterTimeout":       cfg.HLS.MasterTimeout,
		"hls.maxSleep":            cfg.HLS.MaxSleep,
		"direct.progressInterval": cfg.Direct.ProgressInterval,
		"ffmpeg.killGrace":        cfg.FFmpeg.KillGrace,
	} {
		if d <= 0 {
			add("%s must be positive, got %s", name, d)
		}
	}
	if cfg.Tele.Enabled {
		if cfg.Tele.Exporter != "grpc" && cfg.Tele.Exporter != "http" {
			add("telemetry.exporter must be grpc or http, got %q", cfg.Tele.Exporter)
		}
		if cfg.Tele.SamplingRate < 0 || cfg.Tele.SamplingRate > 1 {
			add("telemetry.samplingRate must be within [0, 1]")
		}
	}

	if len(v.Fields) == 0 {
		return nil
	}
	slices.Sort(v.Fields)
	return v
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
