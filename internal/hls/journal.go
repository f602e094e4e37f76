// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/streamrec/internal/log"
)

// JournalFile is the per-run event journal kept next to the sections.
const JournalFile = "stream.log"

// Journal events.
const (
	JournalMediaPlaylistReady = "media-playlist-ready"
	JournalNewSection         = "new-section"
	JournalResolutionChange   = "resolution-change"
	JournalFillerChange       = "filler-change"
	JournalDiscontinuity      = "discontinuity"
	JournalBufferingComplete  = "buffering-complete"
	JournalSegmentFailed      = "segment-failed"
	JournalMasterReload       = "master-reload"
)

// Journal appends one JSON line per recording event. A nil *Journal discards.
type Journal struct {
	mu     sync.Mutex
	f      *os.File
	logger zerolog.Logger
}

// OpenJournal opens (appending) the journal in dir.
func OpenJournal(dir string) (*Journal, error) {
	f, err := os.OpenFile(filepath.Join(dir, JournalFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{f: f, logger: zerolog.New(f).With().Timestamp().Logger()}, nil
}

// Record writes one event line.
func (j *Journal) Record(event, uri string, section, segment int) {
	if j == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger.Log().
		Str(xglog.FieldEvent, event).
		Str("uri", xglog.MaskURL(uri)).
		Int(xglog.FieldSectionIndex, section).
		Int(xglog.FieldSegmentIndex, segment).
		Send()
}

func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
