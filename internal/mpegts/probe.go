// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

import (
	"bytes"
	"strconv"
)

// Resolution is the coded picture size of the video stream.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) Known() bool { return r.Width > 0 && r.Height > 0 }

func (r Resolution) String() string {
	if !r.Known() {
		return "unknown"
	}
	return strconv.Itoa(r.Width) + "x" + strconv.Itoa(r.Height)
}

// Info describes the timing and picture properties of one segment.
type Info struct {
	// TimingPID is the stream timestamps were taken from: the PMT video
	// stream when present, otherwise the first PES stream carrying a PTS.
	TimingPID  uint16
	StreamType byte
	Resolution Resolution
	// FirstPTS is the earliest presentation time of TimingPID.
	FirstPTS int64
	HasPTS   bool
	// Duration is the PTS span plus one average frame interval, in 90 kHz
	// ticks. Zero when fewer than two timestamps exist.
	Duration int64
}

// End returns FirstPTS + Duration, wrapped.
func (i Info) End() int64 { return AddTimestamp(i.FirstPTS, i.Duration) }

const maxResolutionScan = 512 * 1024

// Probe inspects a segment without modifying it.
func Probe(data []byte) Info {
	var info Info
	timingPID, haveTiming := uint16(0), false
	for _, es := range Streams(data) {
		if isVideoStreamType(es.StreamType) {
			timingPID, haveTiming = es.PID, true
			info.StreamType = es.StreamType
			break
		}
	}

	var (
		first    int64
		minDelta int64
		maxDelta int64
		count    int
		es       []byte
	)
	for _, p := range Packets(data) {
		if !p.Synced() || p.PID() == NullPID {
			continue
		}
		pts, ok := p.PTS()
		if ok && !haveTiming {
			timingPID, haveTiming = p.PID(), true
		}
		if !haveTiming || p.PID() != timingPID {
			continue
		}
		if ok {
			if count == 0 {
				first = pts
			} else {
				d := DiffTimestamp(pts, first)
				minDelta = min(minDelta, d)
				maxDelta = max(maxDelta, d)
			}
			count++
		}
		if !info.Resolution.Known() && len(es) < maxResolutionScan {
			if payload := p.Payload(); payload != nil {
				if p.PUSI() {
					payload = stripPESHeader(payload)
				}
				es = append(es, payload...)
			}
		}
	}
	info.TimingPID = timingPID
	if count > 0 {
		info.HasPTS = true
		info.FirstPTS = AddTimestamp(first, minDelta)
	}
	if count > 1 {
		span := maxDelta - minDelta
		info.Duration = span + span/int64(count-1)
	}
	info.Resolution = findResolution(es, info.StreamType)
	return info
}

func stripPESHeader(payload []byte) []byte {
	if len(payload) < 9 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return payload
	}
	if !hasOptionalPESHeader(payload[3]) {
		return payload[6:]
	}
	end := 9 + int(payload[8])
	if end > len(payload) {
		return nil
	}
	return payload[end:]
}

var startCode = []byte{0, 0, 1}

// findResolution scans an elementary stream for an H.264 SPS or an MPEG-2
// sequence header.
func findResolution(es []byte, streamType byte) Resolution {
	h264 := streamType == StreamTypeH264 || streamType == 0
	mpeg2 := streamType == StreamTypeMPEG2Video || streamType == StreamTypeMPEG1Video || streamType == 0
	for i := 0; i < len(es); {
		idx := bytes.Index(es[i:], startCode)
		if idx < 0 {
			break
		}
		pos := i + idx
		i = pos + len(startCode)
		if i >= len(es) {
			break
		}
		nal := es[i:]
		switch {
		case h264 && nal[0]&0x1F == 7:
			end := bytes.Index(nal, startCode)
			if end < 0 {
				end = len(nal)
			}
			if res, err := parseSPS(nal[:end]); err == nil {
				return res
			}
		case mpeg2 && nal[0] == 0xB3:
			if res, ok := mpeg2SequenceHeader(es[pos:]); ok {
				return res
			}
		}
	}
	return Resolution{}
}
