// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

// Elementary stream types found in PMTs.
const (
	StreamTypeMPEG1Video = 0x01
	StreamTypeMPEG2Video = 0x02
	StreamTypeMPEG4Video = 0x10
	StreamTypeH264       = 0x1B
	StreamTypeHEVC       = 0x24
)

func isVideoStreamType(t byte) bool {
	switch t {
	case StreamTypeMPEG1Video, StreamTypeMPEG2Video, StreamTypeMPEG4Video, StreamTypeH264, StreamTypeHEVC:
		return true
	}
	return false
}

// ElementaryStream is one PMT entry.
type ElementaryStream struct {
	PID        uint16
	StreamType byte
}

// section returns the PSI section starting in a PUSI packet payload,
// trimmed to section_length (CRC included).
func section(payload []byte) []byte {
	if len(payload) < 1 {
		return nil
	}
	start := 1 + int(payload[0])
	if start+3 > len(payload) {
		return nil
	}
	sec := payload[start:]
	length := int(sec[1]&0x0F)<<8 | int(sec[2])
	if 3+length > len(sec) || length < 9 {
		return nil
	}
	return sec[:3+length]
}

// parsePAT returns the PMT PIDs listed in a PAT section.
func parsePAT(sec []byte) []uint16 {
	if len(sec) < 12 || sec[0] != 0x00 {
		return nil
	}
	var pids []uint16
	for i := 8; i+4 <= len(sec)-4; i += 4 {
		program := uint16(sec[i])<<8 | uint16(sec[i+1])
		if program == 0 {
			continue
		}
		pids = append(pids, uint16(sec[i+2]&0x1F)<<8|uint16(sec[i+3]))
	}
	return pids
}

// parsePMT returns the elementary streams of a PMT section.
func parsePMT(sec []byte) []ElementaryStream {
	if len(sec) < 16 || sec[0] != 0x02 {
		return nil
	}
	infoLen := int(sec[10]&0x0F)<<8 | int(sec[11])
	end := len(sec) - 4
	var out []ElementaryStream
	for i := 12 + infoLen; i+5 <= end; {
		es := ElementaryStream{
			StreamType: sec[i],
			PID:        uint16(sec[i+1]&0x1F)<<8 | uint16(sec[i+2]),
		}
		out = append(out, es)
		i += 5 + (int(sec[i+3]&0x0F)<<8 | int(sec[i+4]))
	}
	return out
}

// Streams returns the elementary streams declared by the first PAT/PMT pair
// in data.
func Streams(data []byte) []ElementaryStream {
	pmtPIDs := map[uint16]bool{}
	for _, p := range Packets(data) {
		if !p.Synced() || !p.PUSI() {
			continue
		}
		pid := p.PID()
		switch {
		case pid == PATPID && len(pmtPIDs) == 0:
			for _, pmt := range parsePAT(section(p.Payload())) {
				pmtPIDs[pmt] = true
			}
		case pmtPIDs[pid]:
			if es := parsePMT(section(p.Payload())); len(es) > 0 {
				return es
			}
		}
	}
	return nil
}
