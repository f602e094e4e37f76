// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"net/http"
	"time"

	"github.com/ManuGH/streamrec/internal/hls"
)

// Options are the run-independent tunables. A running recorder keeps the
// Options it was started with.
type Options struct {
	Buffering   int
	StopTimeout time.Duration
	// Client is used when a ResolveResult carries none.
	Client *http.Client

	HLS    HLSOptions
	Direct DirectOptions
	FFmpeg FFmpegOptions
}

type HLSOptions struct {
	SegmentRetries  int
	SegmentTimeout  time.Duration
	RetryDelay      time.Duration
	PlaylistTimeout time.Duration
	MasterTimeout   time.Duration
	MaxSleep        time.Duration
	IdleSleep       time.Duration
	FailureStreak   int
}

type DirectOptions struct {
	ChunkSize        int
	ProgressInterval time.Duration
	HeadTimeout      time.Duration
}

type FFmpegOptions struct {
	Bin          string
	KillGrace    time.Duration
	PollInterval time.Duration
	ReadyTicks   int
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		Buffering:   5,
		StopTimeout: 5 * time.Second,
		HLS: HLSOptions{
			SegmentRetries:  hls.DefaultSegmentRetries,
			SegmentTimeout:  hls.DefaultSegmentTimeout,
			RetryDelay:      hls.DefaultRetryDelay,
			PlaylistTimeout: 5 * time.Second,
			MasterTimeout:   15 * time.Second,
			MaxSleep:        3 * time.Second,
			IdleSleep:       time.Second,
			FailureStreak:   5,
		},
		Direct: DirectOptions{
			ChunkSize:        8 * 1024,
			ProgressInterval: 3 * time.Second,
			HeadTimeout:      10 * time.Second,
		},
		FFmpeg: FFmpegOptions{
			Bin:          "ffmpeg",
			KillGrace:    3 * time.Second,
			PollInterval: time.Second,
			ReadyTicks:   5,
		},
	}
}

// withDefaults fills zero fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Buffering <= 0 {
		o.Buffering = d.Buffering
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = d.StopTimeout
	}
	h := &o.HLS
	if h.SegmentRetries <= 0 {
		h.SegmentRetries = d.HLS.SegmentRetries
	}
	if h.SegmentTimeout <= 0 {
		h.SegmentTimeout = d.HLS.SegmentTimeout
	}
	if h.RetryDelay == 0 {
		h.RetryDelay = d.HLS.RetryDelay
	}
	if h.PlaylistTimeout <= 0 {
		h.PlaylistTimeout = d.HLS.PlaylistTimeout
	}
	if h.MasterTimeout <= 0 {
		h.MasterTimeout = d.HLS.MasterTimeout
	}
	if h.MaxSleep <= 0 {
		h.MaxSleep = d.HLS.MaxSleep
	}
	if h.IdleSleep <= 0 {
		h.IdleSleep = d.HLS.IdleSleep
	}
	if h.FailureStreak <= 0 {
		h.FailureStreak = d.HLS.FailureStreak
	}
	if o.Direct.ChunkSize <= 0 {
		o.Direct.ChunkSize = d.Direct.ChunkSize
	}
	if o.Direct.ProgressInterval <= 0 {
		o.Direct.ProgressInterval = d.Direct.ProgressInterval
	}
	if o.Direct.HeadTimeout <= 0 {
		o.Direct.HeadTimeout = d.Direct.HeadTimeout
	}
	f := &o.FFmpeg
	if f.Bin == "" {
		f.Bin = d.FFmpeg.Bin
	}
	if f.KillGrace <= 0 {
		f.KillGrace = d.FFmpeg.KillGrace
	}
	if f.PollInterval <= 0 {
		f.PollInterval = d.FFmpeg.PollInterval
	}
	if f.ReadyTicks <= 0 {
		f.ReadyTicks = d.FFmpeg.ReadyTicks
	}
	return o
}
