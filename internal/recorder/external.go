// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ManuGH/streamrec/internal/ffmpeg"
	"github.com/ManuGH/streamrec/internal/hls"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
)

// ExternalStrategy hands the playlist to ffmpeg and supervises the process.
// Readiness is a heuristic: it fires after a fixed number of liveness polls.
type ExternalStrategy struct{}

func (e *ExternalStrategy) Kind() Kind { return KindHLSExternal }

func (e *ExternalStrategy) Record(ctx context.Context, run *Run) error {
	res := run.Result
	opts := run.Options.FFmpeg
	out := filepath.Join(res.OutputDir, hls.SectionFile(0))

	headers := res.FFmpegHeaders
	if headers == "" {
		headers = ffmpeg.HeaderString(res.AuthHeaders)
	}

	h, err := ffmpeg.NewRunner(opts.Bin, run.Logger).Start(ffmpeg.Spec{Input: res.URL, Headers: headers, Output: out})
	if err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-ctx.Done():
			if err := h.Stop(opts.KillGrace); err != nil {
				run.Logger.Debug().Err(err).Msg("ffmpeg exit after stop")
			}
			return ctx.Err()
		case <-ticker.C:
		}

		if h.Exited() {
			return e.exited(run, h)
		}
		ticks++
		if ticks == opts.ReadyTicks {
			run.Ready(res.URL, out, 0, 0)
		}
	}
}

func (e *ExternalStrategy) exited(run *Run, h *ffmpeg.Handle) error {
	if h.Err() == nil {
		metrics.IncProcExit("clean")
		run.Logger.Info().Msg("ffmpeg completed")
		return nil
	}
	diag := h.Diagnostics()
	sig := ffmpeg.Diagnose(diag)
	code := h.ExitCode()

	class := "error"
	msg := fmt.Sprintf("exit code %d", code)
	if sig != ffmpeg.SigNone {
		class = string(sig)
		msg += ": " + sig.Hint()
	}
	metrics.IncProcExit(class)
	run.Logger.Error().
		Int("exit_code", code).
		Str("signature", class).
		Str("stderr", strings.Join(diag, "\n")).
		Str(xglog.FieldURL, xglog.MaskURL(run.Result.URL)).
		Msg("ffmpeg exited unexpectedly")
	return fmt.Errorf("%w with %s", ErrProcessFailed, msg)
}
