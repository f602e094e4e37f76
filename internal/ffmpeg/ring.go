// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "sync"

// RingBuffer retains the most recent stderr lines for failure diagnostics.
type RingBuffer struct {
	mu    sync.Mutex
	buf   []string
	next  int
	count int
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{buf: make([]string, max(size, 1))}
}

func (r *RingBuffer) Add(line string) {
	r.mu.Lock()
	r.buf[r.next] = line
	r.next = (r.next + 1) % len(r.buf)
	r.count = min(r.count+1, len(r.buf))
	r.mu.Unlock()
}

// Lines returns a copy, oldest line first.
func (r *RingBuffer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, r.count)
	start := (r.next - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	return out
}
