// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

const (
	DefaultSegmentRetries = 10
	DefaultSegmentTimeout = 5 * time.Second
	DefaultRetryDelay     = time.Second
)

// DownloadError is returned once all attempts are exhausted. It keeps the
// last response context for DRM heuristics.
type DownloadError struct {
	URL      string
	Attempts int
	Last     error
	Header   http.Header
	Body     string
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download %s failed after %d attempts: %v", log.MaskURL(e.URL), e.Attempts, e.Last)
}

func (e *DownloadError) Unwrap() error { return e.Last }

// Downloader fetches segments with bounded retries.
type Downloader struct {
	Client     *http.Client
	Header     http.Header
	Retries    int
	Timeout    time.Duration
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// Download fetches url. Cancellation is checked before every attempt and
// during the retry delay. A response carrying protection signals aborts the
// retry loop with a *drm.Error.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	retries := d.Retries
	if retries <= 0 {
		retries = DefaultSegmentRetries
	}
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultSegmentTimeout
	}

	dlErr := &DownloadError{URL: url}
	for attempt := 1; attempt <= retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if attempt > 1 {
			metrics.HLSSegmentRetriesTotal.Inc()
		}
		body, _, err := httpx.Fetch(ctx, d.Client, url, d.Header, timeout)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		dlErr.Attempts = attempt
		dlErr.Last = err
		var se *httpx.StatusError
		if errors.As(err, &se) {
			dlErr.Header = se.Header
			dlErr.Body = se.Body
		}
		if r := responseDRM(err, se); r.Protected() {
			metrics.IncDRM(string(r.Findings[0].Source))
			return nil, fmt.Errorf("segment %s: %w", log.MaskURL(url), r.Err())
		}

		d.Logger.Debug().Err(err).Int("attempt", attempt).Str(log.FieldURL, log.MaskURL(url)).Msg("segment download failed")
		if attempt == retries {
			break
		}
		if err := sleepCtx(ctx, d.retryDelay()); err != nil {
			return nil, err
		}
	}
	return nil, dlErr
}

func (d *Downloader) retryDelay() time.Duration {
	if d.RetryDelay < 0 {
		return 0
	}
	if d.RetryDelay == 0 {
		return DefaultRetryDelay
	}
	return d.RetryDelay
}

func responseDRM(err error, se *httpx.StatusError) drm.Report {
	r := drm.ScanError(err.Error())
	if se != nil {
		r.Merge(drm.ScanHeaders(se.Header))
		r.Merge(drm.ScanError(se.Body))
	}
	return r
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
