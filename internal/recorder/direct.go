// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

// progressStep is the percentage delta that forces a progress report.
const progressStep = 2

var directExtensions = map[string]bool{
	".mp4": true, ".m4v": true, ".mkv": true, ".webm": true, ".mov": true, ".ts": true,
}

// DirectStrategy downloads a progressive file into stream_0.<ext>.
type DirectStrategy struct{}

func (d *DirectStrategy) Kind() Kind { return KindDirect }

// DirectFile names the output file after the source extension, .mp4 when
// unknown.
func DirectFile(rawURL string) string {
	ext := ".mp4"
	if u, err := url.Parse(rawURL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); directExtensions[e] {
			ext = e
		}
	}
	return "stream_0" + ext
}

func (d *DirectStrategy) Record(ctx context.Context, run *Run) error {
	res := run.Result
	opts := run.Options.Direct
	out := filepath.Join(res.OutputDir, DirectFile(res.URL))
	logger := run.Logger

	total := d.contentLength(ctx, run)

	resp, err := httpx.Do(ctx, run.Client, http.MethodGet, res.URL, res.AuthHeaders)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if total <= 0 && resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = f.Close() }()

	logger.Info().Str(xglog.FieldPath, out).Int64("total_bytes", total).Msg("direct download started")

	prog := newProgress(total, opts.ProgressInterval, logger)
	buf := make([]byte, opts.ChunkSize)
	var written int64
	for {
		if ctx.Err() != nil {
			logger.Info().Int64("bytes", written).Msg("direct download stopped")
			return nil
		}
		n, rerr := resp.Body.Read(buf)
		if n > 0 {
			if _, werr := f.Write(buf[:n]); werr != nil {
				return fmt.Errorf("write output: %w", werr)
			}
			if written == 0 {
				run.Ready(res.URL, out, 0, 0)
			}
			written += int64(n)
			metrics.DirectBytesTotal.Add(float64(n))
			prog.update(written)
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read stream: %w", rerr)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}

	st, err := os.Stat(out)
	if err != nil || st.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyOutput, out)
	}
	prog.finish(written)
	return nil
}

// contentLength issues a best-effort HEAD. Any failure yields -1.
func (d *DirectStrategy) contentLength(ctx context.Context, run *Run) int64 {
	hctx, cancel := context.WithTimeout(ctx, run.Options.Direct.HeadTimeout)
	defer cancel()
	resp, err := httpx.Do(hctx, run.Client, http.MethodHead, run.Result.URL, run.Result.AuthHeaders)
	if err != nil {
		run.Logger.Debug().Err(err).Msg("HEAD failed, total size unknown")
		return -1
	}
	_ = resp.Body.Close()
	return resp.ContentLength
}

// progress reports download progress every progressStep percent or once per
// interval, whichever comes first.
type progress struct {
	total   int64
	last    int
	every   rate.Sometimes
	started time.Time
	logger  zerolog.Logger
}

func newProgress(total int64, interval time.Duration, logger zerolog.Logger) *progress {
	p := &progress{total: total, every: rate.Sometimes{Interval: interval}, started: time.Now(), logger: logger}
	if total <= 0 {
		metrics.DirectProgress.Set(-1)
	} else {
		metrics.DirectProgress.Set(0)
	}
	return p
}

func (p *progress) update(written int64) {
	if p.total <= 0 {
		p.every.Do(func() { p.report(written, -1) })
		return
	}
	pct := int(written * 100 / p.total)
	if pct > 100 {
		pct = 100
	}
	if pct-p.last >= progressStep {
		p.last = pct
		p.report(written, pct)
		return
	}
	p.every.Do(func() { p.report(written, pct) })
}

func (p *progress) finish(written int64) {
	if p.total > 0 {
		p.report(written, 100)
		return
	}
	p.report(written, -1)
}

func (p *progress) report(written int64, pct int) {
	metrics.DirectProgress.Set(float64(pct))
	mbps := 0.0
	if secs := time.Since(p.started).Seconds(); secs > 0 {
		mbps = float64(written) / secs / (1 << 20)
	}
	p.logger.Info().Int("percent", pct).Int64("bytes", written).Float64("mb_per_s", mbps).Msg("download progress")
}
