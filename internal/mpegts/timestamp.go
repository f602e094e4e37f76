// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

import "time"

const (
	// ClockHz is the PTS/DTS/PCR-base tick rate.
	ClockHz = 90000
	// TimestampMask keeps the 33 significant bits of a timestamp.
	TimestampMask = int64(1)<<33 - 1
	halfWrap      = int64(1) << 32
)

// AddTimestamp adds delta to ts modulo 2^33.
func AddTimestamp(ts, delta int64) int64 {
	return (ts + delta) & TimestampMask
}

// DiffTimestamp returns a-b assuming the two are less than half a wrap apart.
func DiffTimestamp(a, b int64) int64 {
	d := (a - b) & TimestampMask
	if d >= halfWrap {
		d -= TimestampMask + 1
	}
	return d
}

// Ticks converts a duration to 90 kHz ticks.
func Ticks(d time.Duration) int64 {
	return int64(d) * ClockHz / int64(time.Second)
}

// Duration converts 90 kHz ticks to a duration.
func Duration(ticks int64) time.Duration {
	return time.Duration(ticks * int64(time.Second) / ClockHz)
}

// decodeTimestamp reads a 5-byte PES timestamp field.
func decodeTimestamp(b []byte) int64 {
	return int64(b[0]>>1&0x07)<<30 |
		int64(b[1])<<22 |
		int64(b[2]>>1)<<15 |
		int64(b[3])<<7 |
		int64(b[4]>>1)
}

// encodeTimestamp writes ts into a 5-byte field, keeping the 4-bit prefix and
// marker bits already present.
func encodeTimestamp(b []byte, ts int64) {
	ts &= TimestampMask
	b[0] = b[0]&0xF1 | byte(ts>>30&0x07)<<1
	b[1] = byte(ts >> 22)
	b[2] = b[2]&0x01 | byte(ts>>15&0x7F)<<1
	b[3] = byte(ts >> 7)
	b[4] = b[4]&0x01 | byte(ts&0x7F)<<1
}

// pesTimestampOffsets locates the PTS and DTS fields of a PES header at the
// start of payload. Offsets are -1 when the field is absent.
func pesTimestampOffsets(payload []byte) (pts, dts int) {
	pts, dts = -1, -1
	if len(payload) < 9 || payload[0] != 0 || payload[1] != 0 || payload[2] != 1 {
		return
	}
	if !hasOptionalPESHeader(payload[3]) || payload[6]&0xC0 != 0x80 {
		return
	}
	flags := payload[7] >> 6
	hdrLen := int(payload[8])
	switch flags {
	case 0x02:
		if hdrLen >= 5 && len(payload) >= 14 {
			pts = 9
		}
	case 0x03:
		if hdrLen >= 10 && len(payload) >= 19 {
			pts, dts = 9, 14
		}
	}
	return
}

// Stream ids whose PES packets carry no optional header.
func hasOptionalPESHeader(streamID byte) bool {
	switch streamID {
	case 0xBC, 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

// PTS returns the presentation timestamp of a packet starting a PES unit.
func (p Packet) PTS() (int64, bool) {
	if !p.PUSI() {
		return 0, false
	}
	payload := p.Payload()
	off, _ := pesTimestampOffsets(payload)
	if off < 0 {
		return 0, false
	}
	return decodeTimestamp(payload[off : off+5]), true
}

// DTS returns the decode timestamp when present.
func (p Packet) DTS() (int64, bool) {
	if !p.PUSI() {
		return 0, false
	}
	payload := p.Payload()
	_, off := pesTimestampOffsets(payload)
	if off < 0 {
		return 0, false
	}
	return decodeTimestamp(payload[off : off+5]), true
}

func (p Packet) shiftPESTimestamps(delta int64) {
	if !p.PUSI() {
		return
	}
	payload := p.Payload()
	pts, dts := pesTimestampOffsets(payload)
	if pts >= 0 {
		f := payload[pts : pts+5]
		encodeTimestamp(f, AddTimestamp(decodeTimestamp(f), delta))
	}
	if dts >= 0 {
		f := payload[dts : dts+5]
		encodeTimestamp(f, AddTimestamp(decodeTimestamp(f), delta))
	}
}
