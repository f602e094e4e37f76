// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/events"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/mpegts"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

// SectionFile returns the output file name of a section.
func SectionFile(section int) string {
	return fmt.Sprintf("stream_%d.ts", section)
}

const contentPeek = 4096

// ProcessorConfig wires a Processor to its run.
type ProcessorConfig struct {
	Dir        string
	Recorder   string
	RunID      string
	Downloader *Downloader
	Keys       *KeyCache
	Journal    *Journal
	// OnReady is called once, when the processed count first reaches the
	// buffering target.
	OnReady func(events.ReadyEvent)
	Logger  zerolog.Logger
}

// Processor turns playlist segments into appended, rewritten section bytes.
// It holds the per-run segment context and is not safe for concurrent use:
// segments must be processed one at a time, in playlist order.
type Processor struct {
	cfg ProcessorConfig

	sectionIndex  int
	segmentIndex  int
	processed     int
	prevURI       string
	prevDuration  int64
	prevPTS       int64
	resolution    mpegts.Resolution
	filler        bool
	continuousPTS int64
	offset        int64
	rewrite       mpegts.RewriteState
	sectionPath   string
	section       *os.File
	bufferingDone bool
	index         Index
}

func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		cfg:          cfg,
		sectionIndex: -1,
		index:        Index{RunID: cfg.RunID, Recorder: cfg.Recorder},
	}
}

// Processed returns the number of segments appended so far.
func (p *Processor) Processed() int { return p.processed }

// SectionIndex returns the current section, -1 before the first segment.
func (p *Processor) SectionIndex() int { return p.sectionIndex }

// SectionPath returns the file currently appended to.
func (p *Processor) SectionPath() string { return p.sectionPath }

// BufferingComplete reports whether readiness has fired.
func (p *Processor) BufferingComplete() bool { return p.bufferingDone }

// Offset returns the timestamp offset applied to the last segment.
func (p *Processor) Offset() int64 { return p.offset }

// Process handles one segment. It returns (false, nil) for a recoverable
// segment failure and a non-nil error for conditions that end the run:
// protection, cancellation or a failing output file.
func (p *Processor) Process(ctx context.Context, playlistURL string, seg Segment, target time.Duration, buffering int) (ok bool, err error) {
	ctx, span := telemetry.Tracer("streamrec/hls").Start(ctx, telemetry.SpanHLSSegment,
		trace.WithAttributes(telemetry.SegmentAttributes(seg.Sequence, p.sectionIndex)...))
	defer func() {
		switch {
		case err != nil && drm.IsProtected(err):
			metrics.IncSegment(p.cfg.Recorder, "drm")
			telemetry.RecordError(span, err, string(events.ClassDRMProtected))
		case err != nil:
			telemetry.RecordError(span, err, "error")
		case !ok:
			metrics.IncSegment(p.cfg.Recorder, "failed")
		default:
			metrics.IncSegment(p.cfg.Recorder, "ok")
		}
		span.End()
	}()

	logger := p.cfg.Logger.With().Uint64(xglog.FieldSequence, seg.Sequence).Logger()

	segURL, err := ResolveURL(playlistURL, seg.URI)
	if err != nil {
		logger.Warn().Err(err).Msg("unresolvable segment uri")
		return false, nil
	}
	if seg.Key.Encrypted() {
		if isDRM, reason := drm.KeyIsDRM(seg.Key.Method, seg.Key.URI); isDRM {
			metrics.IncDRM(string(drm.SourceKey))
			return false, &drm.Error{Source: drm.SourceKey, Indicators: []string{reason}}
		}
	}

	data, err := p.cfg.Downloader.Download(ctx, segURL)
	if err != nil {
		if ctx.Err() != nil || drm.IsProtected(err) {
			return false, err
		}
		return p.segmentFailed(segURL, seg, err, nil)
	}

	if seg.Key.Encrypted() {
		data, err = p.decrypt(ctx, playlistURL, seg, data)
		if err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return p.segmentFailed(segURL, seg, err, nil)
		}
	}

	if err := mpegts.Validate(data); err != nil {
		return p.segmentFailed(segURL, seg, err, data)
	}
	// well-formed bytes can still come from a protected rendition
	if r := drm.ScanURL(segURL); r.Protected() {
		metrics.IncDRM(string(drm.SourceURL))
		return false, fmt.Errorf("segment %d: %w", seg.Sequence, r.Err())
	}
	if n := mpegts.ScrambledPackets(data); n > 0 {
		metrics.IncDRM(string(drm.SourceScrambling))
		return false, &drm.Error{
			Source:     drm.SourceScrambling,
			Indicators: []string{fmt.Sprintf("%d scrambled transport packets", n)},
		}
	}

	info := mpegts.Probe(data)
	if !info.HasPTS {
		return p.segmentFailed(segURL, seg, mpegts.ErrNoTimestamp, nil)
	}
	duration := info.Duration
	if duration <= 0 {
		duration = mpegts.Ticks(seg.Duration)
	}
	if duration <= 0 {
		duration = mpegts.Ticks(target)
	}

	filler := IsFiller(seg.URI)
	if change := p.sectionChange(info.Resolution, filler); change != "" {
		if change != sectionFirst {
			p.cfg.Journal.Record(change, seg.URI, p.sectionIndex, p.segmentIndex)
			logger.Info().Str("reason", change).
				Str("from", p.resolution.String()).Str("to", info.Resolution.String()).
				Bool("filler", filler).
				Msg("starting new section")
		}
		if err := p.openSection(seg.URI, info, filler); err != nil {
			return false, err
		}
	} else {
		p.continuousPTS = mpegts.AddTimestamp(p.continuousPTS, p.prevDuration)
		p.offset = mpegts.DiffTimestamp(p.continuousPTS, info.FirstPTS)
	}
	span.SetAttributes(attribute.Int64(telemetry.SegmentOffsetKey, p.offset))

	next, out := mpegts.Rewrite(p.rewrite, data, mpegts.Shift{Offset: p.offset, Discontinuity: seg.Discontinuity})
	if seg.Discontinuity {
		p.cfg.Journal.Record(JournalDiscontinuity, seg.URI, p.sectionIndex, p.segmentIndex)
	}
	if _, err := p.section.Write(out); err != nil {
		return false, fmt.Errorf("append %s: %w", p.sectionPath, err)
	}
	p.rewrite = next
	p.processed++
	metrics.HLSSegmentBytesTotal.WithLabelValues(p.cfg.Recorder).Add(float64(len(out)))
	span.SetAttributes(attribute.Int(telemetry.SegmentBytesKey, len(out)))

	logger.Debug().
		Int(xglog.FieldSectionIndex, p.sectionIndex).
		Int(xglog.FieldSegmentIndex, p.segmentIndex).
		Int64(xglog.FieldOffset, p.offset).
		Int("bytes", len(out)).
		Msg("segment appended")

	if buffering < 1 {
		buffering = 1
	}
	if !p.bufferingDone && p.processed >= buffering {
		p.bufferingDone = true
		p.cfg.Journal.Record(JournalBufferingComplete, seg.URI, p.sectionIndex, p.segmentIndex)
		logger.Info().Int(xglog.FieldSegmentIndex, p.segmentIndex).Str(xglog.FieldPath, p.sectionPath).Msg("buffering complete")
		if p.cfg.OnReady != nil {
			p.cfg.OnReady(events.ReadyEvent{
				RunID:        p.cfg.RunID,
				URL:          segURL,
				Path:         p.sectionPath,
				SectionIndex: p.sectionIndex,
				SegmentIndex: p.segmentIndex,
				Recorder:     p.cfg.Recorder,
			})
		}
	}

	p.prevURI = seg.URI
	p.prevDuration = duration
	p.prevPTS = info.FirstPTS
	if info.Resolution.Known() {
		p.resolution = info.Resolution
	}
	p.filler = filler
	p.segmentIndex++
	return true, nil
}

const sectionFirst = "first"

// sectionChange names why a segment opens a new section, or returns "".
// Live sources change encoding profile mid-stream and splice filler between
// programme segments; either switch starts a new file.
func (p *Processor) sectionChange(res mpegts.Resolution, filler bool) string {
	switch {
	case p.section == nil:
		return sectionFirst
	case res.Known() && p.resolution.Known() && res != p.resolution:
		return JournalResolutionChange
	case filler != p.filler:
		return JournalFillerChange
	}
	return ""
}

func (p *Processor) openSection(uri string, info mpegts.Info, filler bool) error {
	if p.section != nil {
		if err := p.section.Close(); err != nil {
			p.cfg.Logger.Warn().Err(err).Str(xglog.FieldPath, p.sectionPath).Msg("close section")
		}
	}
	p.sectionIndex++
	p.segmentIndex = 0
	p.continuousPTS = info.FirstPTS
	p.offset = 0
	p.rewrite = mpegts.RewriteState{}
	p.sectionPath = filepath.Join(p.cfg.Dir, SectionFile(p.sectionIndex))

	f, err := os.OpenFile(p.sectionPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		p.section = nil
		return fmt.Errorf("open section: %w", err)
	}
	p.section = f
	metrics.HLSSectionsTotal.WithLabelValues(p.cfg.Recorder).Inc()
	p.cfg.Journal.Record(JournalNewSection, uri, p.sectionIndex, p.segmentIndex)

	p.index.Sections = append(p.index.Sections, SectionEntry{
		Index:      p.sectionIndex,
		File:       SectionFile(p.sectionIndex),
		Resolution: info.Resolution.String(),
		FirstURI:   xglog.MaskURL(uri),
		Filler:     filler,
		OpenedAt:   time.Now().UTC(),
	})
	if err := WriteIndex(p.cfg.Dir, p.index); err != nil {
		p.cfg.Logger.Warn().Err(err).Msg("section index not updated")
	}
	p.cfg.Logger.Info().
		Int(xglog.FieldSectionIndex, p.sectionIndex).
		Str(xglog.FieldResolution, info.Resolution.String()).
		Str(xglog.FieldPath, p.sectionPath).
		Msg("section opened")
	return nil
}

func (p *Processor) decrypt(ctx context.Context, playlistURL string, seg Segment, data []byte) ([]byte, error) {
	if p.cfg.Keys == nil {
		return nil, errors.New("no key source for encrypted segment")
	}
	keyURL, err := ResolveURL(playlistURL, seg.Key.URI)
	if err != nil {
		return nil, fmt.Errorf("key uri: %w", err)
	}
	key, err := p.cfg.Keys.Get(ctx, keyURL)
	if err != nil {
		return nil, err
	}
	iv, err := ParseIV(seg.Key.IV, seg.Sequence)
	if err != nil {
		return nil, err
	}
	return DecryptAES128(data, key, iv)
}

// segmentFailed runs the DRM heuristics over everything known about a
// failed segment. Protection ends the run; anything else is a recoverable
// failure counted by the caller.
func (p *Processor) segmentFailed(segURL string, seg Segment, cause error, body []byte) (bool, error) {
	r := drm.ScanURL(segURL)
	r.Merge(drm.ScanError(cause.Error()))
	var de *DownloadError
	if errors.As(cause, &de) {
		r.Merge(drm.ScanHeaders(de.Header))
		r.Merge(drm.ScanContent(de.Body))
	}
	if len(body) > 0 {
		r.Merge(drm.ScanContent(string(body[:min(len(body), contentPeek)])))
	}
	if r.Protected() {
		metrics.IncDRM(string(r.Findings[0].Source))
		return false, fmt.Errorf("segment %d: %w", seg.Sequence, r.Err())
	}

	p.cfg.Journal.Record(JournalSegmentFailed, seg.URI, p.sectionIndex, p.segmentIndex)
	p.cfg.Logger.Warn().Err(cause).
		Uint64(xglog.FieldSequence, seg.Sequence).
		Str(xglog.FieldURL, xglog.MaskURL(segURL)).
		Msg("segment failed")
	return false, nil
}

// Close releases the current section file.
func (p *Processor) Close() error {
	if p.section == nil {
		return nil
	}
	err := p.section.Close()
	p.section = nil
	return err
}
