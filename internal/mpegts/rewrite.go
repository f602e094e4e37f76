// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package mpegts

// RewriteState carries the last continuity counter written per PID across
// segments of one section. The zero value starts a new section.
type RewriteState struct {
	cc map[uint16]uint8
}

// LastCC returns the last counter emitted for pid.
func (s RewriteState) LastCC(pid uint16) (uint8, bool) {
	cc, ok := s.cc[pid]
	return cc, ok
}

// Len returns the number of tracked PIDs.
func (s RewriteState) Len() int { return len(s.cc) }

func (s RewriteState) clone() RewriteState {
	out := RewriteState{cc: make(map[uint16]uint8, len(s.cc)+4)}
	for k, v := range s.cc {
		out.cc[k] = v
	}
	return out
}

// Shift describes the timestamp edit applied to one segment.
type Shift struct {
	// Offset is added to every PTS, DTS, PCR and OPCR (90 kHz ticks).
	Offset int64
	// Discontinuity marks the first packet that can carry the flag.
	Discontinuity bool
}

// Rewrite returns a rewritten copy of segment and the state after it. Neither
// the input bytes nor st are modified.
//
// Packets carrying a payload continue the counter of their PID from st; a
// PID seen for the first time keeps its own counter. Adaptation-only packets
// repeat the previous counter, as the counter only advances with payload.
// Packets without a sync byte are copied unchanged. A trailing partial packet
// is dropped so appended segments stay packet aligned.
func Rewrite(st RewriteState, segment []byte, shift Shift) (RewriteState, []byte) {
	next := st.clone()
	out := make([]byte, len(segment)/PacketSize*PacketSize)
	copy(out, segment)

	needDiscontinuity := shift.Discontinuity
	for _, p := range Packets(out) {
		if !p.Synced() {
			continue
		}
		pid := p.PID()
		if pid == NullPID {
			continue
		}
		if shift.Offset != 0 {
			p.shiftClockReferences(shift.Offset)
			p.shiftPESTimestamps(shift.Offset)
		}
		if needDiscontinuity && p.SetDiscontinuity() {
			needDiscontinuity = false
		}

		prev, seen := next.cc[pid]
		switch {
		case !seen:
			next.cc[pid] = p.CC()
		case p.HasPayload():
			cc := (prev + 1) & 0x0F
			p.SetCC(cc)
			next.cc[pid] = cc
		default:
			p.SetCC(prev)
		}
	}
	return next, out
}
