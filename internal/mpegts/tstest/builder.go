// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package tstest builds small synthetic transport stream segments for tests:
// PAT, PMT, an H.264 video PES stream with an SPS of a chosen size, and an
// optional audio stream.
package tstest

const packetSize = 188

// Segment describes a synthetic segment. Zero fields take the defaults of New.
type Segment struct {
	PMTPID   uint16
	VideoPID uint16
	AudioPID uint16 // 0 disables audio

	StartPTS   int64
	Frames     int
	FrameTicks int64

	Width  int
	Height int

	// StartCC is the first continuity counter per PID (default 0).
	StartCC map[uint16]uint8
	// Scrambled sets transport_scrambling_control on video packets.
	Scrambled bool
	// ContinuationPackets adds payload-only packets after each frame start.
	ContinuationPackets int
}

// New returns a 720p, 25 fps, 10-frame segment starting at pts.
func New(pts int64) Segment {
	return Segment{
		PMTPID:              0x1000,
		VideoPID:            0x100,
		AudioPID:            0x101,
		StartPTS:            pts,
		Frames:              10,
		FrameTicks:          3600,
		Width:               1280,
		Height:              720,
		ContinuationPackets: 1,
	}
}

// DurationTicks returns Frames*FrameTicks.
func (s Segment) DurationTicks() int64 { return int64(s.Frames) * s.FrameTicks }

// Build renders the segment.
func (s Segment) Build() []byte {
	b := &builder{cc: map[uint16]uint8{}}
	for pid, cc := range s.StartCC {
		b.cc[pid] = cc
	}
	b.write(0, true, nil, s.pat(), false)
	b.write(s.PMTPID, true, nil, s.pmt(), false)

	for i := 0; i < s.Frames; i++ {
		pts := (s.StartPTS + int64(i)*s.FrameTicks) & (1<<33 - 1)
		es := []byte{0, 0, 0, 1, 0x09, 0xF0}
		if i == 0 {
			es = append(es, 0, 0, 0, 1)
			es = append(es, SPS(s.Width, s.Height)...)
		}
		es = append(es, 0, 0, 0, 1, 0x65, 0x88, 0x84, 0x21)
		af := pcrField(pts)
		b.write(s.VideoPID, true, af, append(pesHeader(0xE0, pts, true), es...), s.Scrambled)
		for c := 0; c < s.ContinuationPackets; c++ {
			b.write(s.VideoPID, false, nil, filler(184), s.Scrambled)
		}
		if s.AudioPID != 0 {
			b.write(s.AudioPID, true, nil, append(pesHeader(0xC0, pts, false), 0xFF, 0xF1, 0x50, 0x80), false)
		}
	}
	return b.out
}

type builder struct {
	out []byte
	cc  map[uint16]uint8
}

// write emits one packet. af is the adaptation field body after the length
// byte; stuffing pads the field so payload fills the packet.
func (b *builder) write(pid uint16, pusi bool, af []byte, payload []byte, scrambled bool) {
	room := packetSize - 4
	if af != nil {
		room -= 1 + len(af)
	}
	if len(payload) > room {
		payload = payload[:room]
	}
	stuff := room - len(payload)

	var adapt []byte
	switch {
	case af != nil:
		body := append(append([]byte(nil), af...), stuffing(stuff)...)
		adapt = append([]byte{byte(len(body))}, body...)
	case stuff == 1:
		adapt = []byte{0}
	case stuff > 1:
		body := append([]byte{0x00}, stuffing(stuff-2)...)
		adapt = append([]byte{byte(len(body))}, body...)
	}

	hdr1 := byte(pid>>8) & 0x1F
	if pusi {
		hdr1 |= 0x40
	}
	afc := byte(0x01)
	if adapt != nil {
		afc = 0x03
	}
	b3 := afc<<4 | b.cc[pid]&0x0F
	if scrambled {
		b3 |= 0x80
	}
	b.cc[pid] = (b.cc[pid] + 1) & 0x0F

	pkt := make([]byte, 0, packetSize)
	pkt = append(pkt, 0x47, hdr1, byte(pid), b3)
	pkt = append(pkt, adapt...)
	pkt = append(pkt, payload...)
	b.out = append(b.out, pkt...)
}

func stuffing(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF
	}
	return out
}

func filler(n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xA5
	}
	return out
}

func pcrField(base int64) []byte {
	return []byte{
		0x10, // PCR flag
		byte(base >> 25), byte(base >> 17), byte(base >> 9), byte(base >> 1),
		byte(base&1)<<7 | 0x7E, 0x00,
	}
}

// EncodeTimestamp renders a 5-byte PES timestamp with the given 4-bit prefix.
func EncodeTimestamp(prefix byte, ts int64) []byte {
	return []byte{
		prefix<<4 | byte(ts>>30&0x07)<<1 | 1,
		byte(ts >> 22),
		byte(ts>>15&0x7F)<<1 | 1,
		byte(ts >> 7),
		byte(ts&0x7F)<<1 | 1,
	}
}

func pesHeader(streamID byte, pts int64, withDTS bool) []byte {
	h := []byte{0, 0, 1, streamID, 0, 0, 0x80}
	if withDTS {
		h = append(h, 0xC0, 10)
		h = append(h, EncodeTimestamp(0x3, pts)...)
		return append(h, EncodeTimestamp(0x1, pts)...)
	}
	h = append(h, 0x80, 5)
	return append(h, EncodeTimestamp(0x2, pts)...)
}

func (s Segment) pat() []byte {
	sec := []byte{0x00, 0, 0, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0x00, 0x01, 0xE0 | byte(s.PMTPID>>8), byte(s.PMTPID)}
	return psi(sec)
}

func (s Segment) pmt() []byte {
	sec := []byte{0x02, 0, 0, 0x00, 0x01, 0xC1, 0x00, 0x00,
		0xE0 | byte(s.VideoPID>>8), byte(s.VideoPID), 0xF0, 0x00,
		0x1B, 0xE0 | byte(s.VideoPID>>8), byte(s.VideoPID), 0xF0, 0x00}
	if s.AudioPID != 0 {
		sec = append(sec, 0x0F, 0xE0|byte(s.AudioPID>>8), byte(s.AudioPID), 0xF0, 0x00)
	}
	return psi(sec)
}

// psi fills section_length, appends the CRC and prefixes the pointer field.
func psi(sec []byte) []byte {
	length := len(sec) - 3 + 4
	sec[1] = 0xB0 | byte(length>>8)
	sec[2] = byte(length)
	crc := crc32MPEG(sec)
	sec = append(sec, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
	return append([]byte{0x00}, sec...)
}

func crc32MPEG(data []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, b := range data {
		crc ^= uint32(b) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
