// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mpegts reads and rewrites MPEG transport stream segments in place:
// continuity counters, PTS/DTS/PCR timestamps and discontinuity flags. Every
// byte not named by a rewrite is preserved.
package mpegts

const (
	PacketSize = 188
	SyncByte   = 0x47
	PATPID     = 0x0000
	NullPID    = 0x1FFF
)

// Packet is a view of one 188-byte transport packet. Setters write through
// to the underlying buffer.
type Packet []byte

// Packets splits data into full packets. A trailing partial packet is ignored.
func Packets(data []byte) []Packet {
	n := len(data) / PacketSize
	out := make([]Packet, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Packet(data[i*PacketSize:(i+1)*PacketSize]))
	}
	return out
}

func (p Packet) Synced() bool { return len(p) == PacketSize && p[0] == SyncByte }

func (p Packet) PID() uint16 { return uint16(p[1]&0x1F)<<8 | uint16(p[2]) }

// PUSI reports the payload_unit_start_indicator.
func (p Packet) PUSI() bool { return p[1]&0x40 != 0 }

// Scrambling returns transport_scrambling_control (0 means clear).
func (p Packet) Scrambling() byte { return p[3] >> 6 }

func (p Packet) adaptationControl() byte { return (p[3] >> 4) & 0x03 }

func (p Packet) HasAdaptation() bool { return p.adaptationControl()&0x02 != 0 }

func (p Packet) HasPayload() bool { return p.adaptationControl()&0x01 != 0 }

func (p Packet) CC() uint8 { return p[3] & 0x0F }

func (p Packet) SetCC(cc uint8) { p[3] = p[3]&0xF0 | cc&0x0F }

// adaptationLength returns adaptation_field_length, or -1 without a field.
func (p Packet) adaptationLength() int {
	if !p.HasAdaptation() {
		return -1
	}
	return int(p[4])
}

// Payload returns the payload bytes, or nil when absent or malformed.
func (p Packet) Payload() []byte {
	if !p.HasPayload() {
		return nil
	}
	off := 4
	if l := p.adaptationLength(); l >= 0 {
		off += 1 + l
	}
	if off >= PacketSize {
		return nil
	}
	return p[off:]
}

// SetDiscontinuity sets discontinuity_indicator. It reports false when the
// packet has no adaptation field flags byte to carry it.
func (p Packet) SetDiscontinuity() bool {
	if p.adaptationLength() < 1 {
		return false
	}
	p[5] |= 0x80
	return true
}

// pcrFlags returns the adaptation flags byte or 0 when absent.
func (p Packet) pcrFlags() byte {
	if p.adaptationLength() < 1 {
		return 0
	}
	return p[5]
}

const (
	flagPCR  = 0x10
	flagOPCR = 0x08
)

// PCR returns the 33-bit program clock reference base.
func (p Packet) PCR() (int64, bool) {
	if p.pcrFlags()&flagPCR == 0 || p.adaptationLength() < 7 {
		return 0, false
	}
	return decodePCRBase(p[6:12]), true
}

func decodePCRBase(b []byte) int64 {
	return int64(b[0])<<25 | int64(b[1])<<17 | int64(b[2])<<9 | int64(b[3])<<1 | int64(b[4])>>7
}

// encodePCRBase writes base into b keeping the reserved bits and extension.
func encodePCRBase(b []byte, base int64) {
	base &= TimestampMask
	b[0] = byte(base >> 25)
	b[1] = byte(base >> 17)
	b[2] = byte(base >> 9)
	b[3] = byte(base >> 1)
	b[4] = byte(base&0x01)<<7 | b[4]&0x7F
}

// shiftClockReferences moves PCR and OPCR by delta (90 kHz units).
func (p Packet) shiftClockReferences(delta int64) {
	flags := p.pcrFlags()
	if flags == 0 {
		return
	}
	afLen := p.adaptationLength()
	off := 6
	if flags&flagPCR != 0 {
		if afLen < off-5+6 {
			return
		}
		encodePCRBase(p[off:off+6], AddTimestamp(decodePCRBase(p[off:off+6]), delta))
		off += 6
	}
	if flags&flagOPCR != 0 && afLen >= off-5+6 {
		encodePCRBase(p[off:off+6], AddTimestamp(decodePCRBase(p[off:off+6]), delta))
	}
}
