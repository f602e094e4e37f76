// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// IndexFile lists the sections of the current run.
const IndexFile = "stream.json"

// SectionEntry describes one output section file.
type SectionEntry struct {
	Index      int       `json:"index"`
	File       string    `json:"file"`
	Resolution string    `json:"resolution"`
	FirstURI   string    `json:"first_uri"`
	OpenedAt   time.Time `json:"opened_at"`
	Filler     bool      `json:"filler,omitempty"`
}

// Index is the document written to IndexFile.
type Index struct {
	RunID    string         `json:"run_id"`
	Recorder string         `json:"recorder"`
	Sections []SectionEntry `json:"sections"`
}

// WriteIndex replaces IndexFile in dir atomically so readers never observe a
// partial document.
func WriteIndex(dir string, idx Index) error {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal index: %w", err)
	}
	if err := renameio.WriteFile(filepath.Join(dir, IndexFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}
