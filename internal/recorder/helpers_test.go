// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/events"
)

// leakOptions ignores the idle keep-alive loops of test HTTP clients.
var leakOptions = []goleak.Option{
	goleak.IgnoreCurrent(),
	goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
}

// recorded is one broadcast, in arrival order.
type recorded struct {
	Ready *events.ReadyEvent
	Stop  *events.StopEvent
}

type collector struct {
	mu     sync.Mutex
	events []recorded
	stops  chan events.StopEvent
	readys chan events.ReadyEvent
}

func newCollector() *collector {
	return &collector{stops: make(chan events.StopEvent, 16), readys: make(chan events.ReadyEvent, 16)}
}

func (c *collector) Ready(ev events.ReadyEvent) {
	c.mu.Lock()
	c.events = append(c.events, recorded{Ready: &ev})
	c.mu.Unlock()
	c.readys <- ev
}

func (c *collector) Stopped(ev events.StopEvent) {
	c.mu.Lock()
	c.events = append(c.events, recorded{Stop: &ev})
	c.mu.Unlock()
	c.stops <- ev
}

func (c *collector) snapshot() []recorded {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]recorded(nil), c.events...)
}

func (c *collector) stopCount() int {
	n := 0
	for _, e := range c.snapshot() {
		if e.Stop != nil {
			n++
		}
	}
	return n
}

func (c *collector) readyCount() int {
	n := 0
	for _, e := range c.snapshot() {
		if e.Ready != nil {
			n++
		}
	}
	return n
}

func (c *collector) waitStop(t *testing.T, timeout time.Duration) events.StopEvent {
	t.Helper()
	select {
	case ev := <-c.stops:
		return ev
	case <-time.After(timeout):
		t.Fatal("no termination event")
		return events.StopEvent{}
	}
}

func (c *collector) waitReady(t *testing.T, timeout time.Duration) events.ReadyEvent {
	t.Helper()
	select {
	case ev := <-c.readys:
		return ev
	case <-time.After(timeout):
		t.Fatal("no readiness event")
		return events.ReadyEvent{}
	}
}

// fakeStrategy runs a test-supplied body.
type fakeStrategy struct {
	kind Kind
	body func(ctx context.Context, run *Run) error
}

func (f *fakeStrategy) Kind() Kind { return f.kind }

func (f *fakeStrategy) Record(ctx context.Context, run *Run) error { return f.body(ctx, run) }

// untilStopped reports readiness and then waits for cancellation.
func untilStopped(ctx context.Context, run *Run) error {
	run.Ready(run.Result.URL, run.Result.OutputDir+"/stream_0.ts", 0, 0)
	<-ctx.Done()
	return ctx.Err()
}

func testResult(t *testing.T, kind Kind) ResolveResult {
	t.Helper()
	return ResolveResult{
		URL:          "https://cdn.example.com/show/index.m3u8",
		Kind:         kind,
		OutputDir:    t.TempDir(),
		Buffering:    1,
		CleanupStale: true,
	}
}

func testOptions() Options {
	o := DefaultOptions()
	o.StopTimeout = 2 * time.Second
	o.HLS.SegmentRetries = 2
	o.HLS.SegmentTimeout = time.Second
	o.HLS.RetryDelay = -1
	o.HLS.PlaylistTimeout = time.Second
	o.HLS.MasterTimeout = time.Second
	o.HLS.MaxSleep = 10 * time.Millisecond
	o.HLS.IdleSleep = 10 * time.Millisecond
	o.Direct.ProgressInterval = 10 * time.Millisecond
	o.FFmpeg.PollInterval = 10 * time.Millisecond
	o.FFmpeg.ReadyTicks = 2
	o.FFmpeg.KillGrace = time.Second
	return o
}

func waitDone(t *testing.T, r *Recorder) {
	t.Helper()
	select {
	case <-r.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not exit")
	}
}

func requireState(t *testing.T, r *Recorder, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return r.State() == want }, 2*time.Second, 5*time.Millisecond,
		"state is %s, want %s", r.State(), want)
}
