// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

import (
	"errors"
	"fmt"
)

var (
	ErrTooShort    = errors.New("segment shorter than one packet")
	ErrSyncLost    = errors.New("sync byte missing at packet boundaries")
	ErrNoTimestamp = errors.New("no presentation timestamp")
)

// minSyncRatio is the share of packet boundaries that must carry 0x47.
const minSyncRatio = 0.8

// Validate checks transport framing: sync bytes at packet boundaries and at
// least one PES presentation timestamp.
func Validate(data []byte) error {
	pkts := Packets(data)
	if len(pkts) == 0 {
		return ErrTooShort
	}
	synced, hasPTS := 0, false
	for _, p := range pkts {
		if !p.Synced() {
			continue
		}
		synced++
		if !hasPTS {
			_, hasPTS = p.PTS()
		}
	}
	need := int(minSyncRatio * float64(len(pkts)))
	need = max(need, min(3, len(pkts)))
	if synced < need {
		return fmt.Errorf("%w: %d/%d packets", ErrSyncLost, synced, len(pkts))
	}
	if !hasPTS {
		return ErrNoTimestamp
	}
	return nil
}

// ScrambledPackets counts packets with a non-zero transport_scrambling_control.
func ScrambledPackets(data []byte) int {
	n := 0
	for _, p := range Packets(data) {
		if p.Synced() && p.PID() != NullPID && p.Scrambling() != 0 {
			n++
		}
	}
	return n
}
