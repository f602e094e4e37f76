// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/hls"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
)

// Mode distinguishes VOD playlists from live ones.
type Mode int

const (
	// ModeFinite ends the run once a playlist with an end marker has been
	// recorded.
	ModeFinite Mode = iota
	// ModeContinuous never ends on its own; an end marker means the source
	// rotated and the master playlist is reloaded.
	ModeContinuous
)

// PlaylistCursor is the polling position of one HLS run.
type PlaylistCursor struct {
	MediaURL       string
	LastSequence   uint64
	HaveLast       bool
	ReloadMaster   bool
	MasterFailures int
	FailedFetches  int
	EmptyFetches   int
	FailedSegments int
}

// HLSStrategy records a native HLS playlist through the segment processor.
type HLSStrategy struct {
	Mode Mode
}

func (h *HLSStrategy) Kind() Kind {
	if h.Mode == ModeContinuous {
		return KindHLSContinuous
	}
	return KindHLSFinite
}

// hlsRun carries the collaborators of one Record call.
type hlsRun struct {
	*Run
	mode    Mode
	opts    HLSOptions
	master  *hls.Fetcher
	media   *hls.Fetcher
	proc    *hls.Processor
	journal *hls.Journal
	cur     PlaylistCursor
}

func (h *HLSStrategy) Record(ctx context.Context, run *Run) error {
	res := run.Result
	opts := run.Options.HLS

	journal, err := hls.OpenJournal(res.OutputDir)
	if err != nil {
		return err
	}
	defer func() { _ = journal.Close() }()

	media := &hls.Fetcher{Client: run.Client, Header: res.AuthHeaders, Timeout: opts.PlaylistTimeout}
	proc := hls.NewProcessor(hls.ProcessorConfig{
		Dir:      res.OutputDir,
		Recorder: string(h.Kind()),
		RunID:    run.ID,
		Downloader: &hls.Downloader{
			Client:     run.Client,
			Header:     res.AuthHeaders,
			Retries:    opts.SegmentRetries,
			Timeout:    opts.SegmentTimeout,
			RetryDelay: opts.RetryDelay,
			Logger:     run.Logger,
		},
		Keys:    &hls.KeyCache{Fetcher: media},
		Journal: journal,
		OnReady: run.readyEvent,
		Logger:  run.Logger,
	})
	defer func() { _ = proc.Close() }()

	r := &hlsRun{
		Run:     run,
		mode:    h.Mode,
		opts:    opts,
		master:  &hls.Fetcher{Client: run.Client, Header: res.AuthHeaders, Timeout: opts.MasterTimeout},
		media:   media,
		proc:    proc,
		journal: journal,
		cur:     PlaylistCursor{ReloadMaster: true},
	}
	return r.loop(ctx)
}

func (r *hlsRun) loop(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, done, err := r.iterate(ctx)
		if err != nil || done {
			return err
		}
		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// iterate performs one poll. It returns how long to wait before the next
// one, or done when a finite playlist has been fully recorded.
func (r *hlsRun) iterate(ctx context.Context) (time.Duration, bool, error) {
	if r.cur.ReloadMaster {
		if err := r.reloadMaster(ctx); err != nil {
			if ctx.Err() != nil || drm.IsProtected(err) {
				return 0, false, err
			}
			r.cur.MasterFailures++
			r.Logger.Warn().Err(err).Int("streak", r.cur.MasterFailures).Msg("master playlist fetch failed")
			if r.cur.MasterFailures >= r.opts.FailureStreak {
				return 0, false, fmt.Errorf("%w: %w", ErrMasterUnavailable, err)
			}
			return r.opts.IdleSleep, false, nil
		}
	}

	text, _, err := r.media.Fetch(ctx, r.cur.MediaURL)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		metrics.IncPlaylistFetch("media", "error")
		return r.mediaFailed(err, "media playlist fetch failed"), false, nil
	}
	metrics.IncPlaylistFetch("media", "ok")

	if err := hls.ScanDRM(text); err != nil {
		return 0, false, err
	}

	pl, err := hls.ParseMedia(text, r.cur.MediaURL)
	if errors.Is(err, hls.ErrNotMedia) {
		// the media URL now serves variants; follow the best one
		next, verr := hls.SelectVariant(text, r.cur.MediaURL)
		if verr != nil {
			r.forceReload("unusable variant list")
			return r.opts.IdleSleep, false, nil
		}
		r.cur.MediaURL = next
		return 0, false, nil
	}
	if err != nil {
		return r.mediaFailed(err, "media playlist unparsable"), false, nil
	}
	r.cur.FailedFetches = 0

	if r.mode == ModeContinuous && pl.Ended {
		r.forceReload("end marker on live playlist")
		return r.opts.IdleSleep, false, nil
	}

	if len(pl.Segments) == 0 {
		r.cur.EmptyFetches++
		if r.cur.EmptyFetches >= r.opts.FailureStreak {
			r.forceReload("empty playlist")
			return 0, false, nil
		}
		return r.nextPoll(pl.TargetDuration), false, nil
	}
	r.cur.EmptyFetches = 0

	static := r.mode == ModeFinite && pl.Ended
	buffering := r.Result.Buffering
	if static && len(pl.Segments) < buffering {
		r.Logger.Info().Int("segments", len(pl.Segments)).Int("configured", buffering).Msg("clamping buffering to playlist length")
		buffering = len(pl.Segments)
	}

	if err := r.processSegments(ctx, pl, buffering); err != nil {
		return 0, false, err
	}

	if static {
		if r.proc.Processed() == 0 {
			return 0, false, fmt.Errorf("%w: no segment of %s could be recorded", ErrEmptyOutput, xglog.MaskURL(r.cur.MediaURL))
		}
		r.Logger.Info().Int("segments", r.proc.Processed()).Msg("finite playlist recorded")
		return 0, true, nil
	}
	return r.nextPoll(pl.TargetDuration), false, nil
}

// processSegments hands new segments to the processor in playlist order.
// Sequences at or below the last handled one were already recorded by an
// earlier fetch, including when an event playlist later gains its end marker.
func (r *hlsRun) processSegments(ctx context.Context, pl *hls.MediaPlaylist, buffering int) error {
	for _, seg := range pl.Segments {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.cur.HaveLast && seg.Sequence <= r.cur.LastSequence {
			continue
		}
		ok, err := r.proc.Process(ctx, r.cur.MediaURL, seg, pl.TargetDuration, buffering)
		if err != nil {
			return err
		}
		if ok {
			r.cur.FailedSegments = 0
		} else {
			r.cur.FailedSegments++
			if r.cur.FailedSegments >= r.opts.FailureStreak {
				return fmt.Errorf("%w: %d in a row", ErrTooManySegmentFailures, r.cur.FailedSegments)
			}
		}
		r.cur.LastSequence = seg.Sequence
		r.cur.HaveLast = true
	}
	return nil
}

// reloadMaster fetches the source URL and adopts the best variant as the
// active media playlist.
func (r *hlsRun) reloadMaster(ctx context.Context) error {
	text, final, err := r.master.Fetch(ctx, r.Result.URL)
	if err != nil {
		metrics.IncPlaylistFetch("master", "error")
		return err
	}
	metrics.IncPlaylistFetch("master", "ok")
	if err := hls.ScanDRM(text); err != nil {
		return err
	}
	mediaURL, err := hls.SelectVariant(text, final)
	if err != nil {
		return err
	}
	if mediaURL != r.cur.MediaURL {
		r.Logger.Info().Str(xglog.FieldURL, xglog.MaskURL(mediaURL)).Msg("media playlist selected")
	}
	r.cur.MediaURL = mediaURL
	r.cur.ReloadMaster = false
	r.cur.MasterFailures = 0
	r.cur.FailedFetches = 0
	r.cur.EmptyFetches = 0
	r.journal.Record(hls.JournalMediaPlaylistReady, mediaURL, r.proc.SectionIndex(), r.proc.Processed())
	return nil
}

// mediaFailed counts a fetch or parse failure of the media playlist. A full
// streak forces a master reload on the next iteration without sleeping.
func (r *hlsRun) mediaFailed(err error, msg string) time.Duration {
	r.cur.FailedFetches++
	r.Logger.Warn().Err(err).Int("streak", r.cur.FailedFetches).Msg(msg)
	if r.cur.FailedFetches >= r.opts.FailureStreak {
		r.forceReload("media playlist failures")
		return 0
	}
	return r.opts.IdleSleep
}

func (r *hlsRun) forceReload(why string) {
	r.Logger.Info().Str("reason", why).Msg("reloading master playlist")
	r.journal.Record(hls.JournalMasterReload, r.cur.MediaURL, r.proc.SectionIndex(), r.proc.Processed())
	r.cur.ReloadMaster = true
	r.cur.FailedFetches = 0
	r.cur.EmptyFetches = 0
}

// nextPoll is half the target duration capped at MaxSleep, or IdleSleep
// when the playlist declares none.
func (r *hlsRun) nextPoll(target time.Duration) time.Duration {
	if target <= 0 {
		return r.opts.IdleSleep
	}
	return min(target/2, r.opts.MaxSleep)
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
