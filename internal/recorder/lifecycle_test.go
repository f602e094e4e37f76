// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

func TestRecorder_StartSetsRunningAndRejectsSecondStart(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bc := newCollector()
	r := New(&fakeStrategy{kind: KindDirect, body: untilStopped}, bc, testOptions())
	require.NoError(t, r.Start(testResult(t, KindDirect)))
	assert.Equal(t, StateRunning, r.State())
	assert.NotEmpty(t, r.RunID())

	err := r.Start(testResult(t, KindDirect))
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	assert.True(t, r.Stop())
	assert.Equal(t, StateStopped, r.State())
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonUserStopped, ev.Reason)
	assert.Empty(t, ev.ErrorClass)
	assert.Equal(t, r.RunID(), ev.RunID)
	assert.True(t, r.Stop(), "stop is idempotent")
	assert.Equal(t, 1, bc.stopCount())
}

func TestRecorder_RejectsInvalidResult(t *testing.T) {
	r := New(&fakeStrategy{kind: KindDirect, body: untilStopped}, newCollector(), testOptions())

	res := testResult(t, KindDirect)
	res.URL = "/relative/path"
	assert.ErrorIs(t, r.Start(res), ErrInvalidResult)

	res = testResult(t, KindHLSFinite)
	assert.ErrorIs(t, r.Start(res), ErrUnknownKind)
	assert.Equal(t, StateIdle, r.State())
	assert.True(t, r.Stop())
}

func TestRecorder_CompletedRun(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bc := newCollector()
	r := New(&fakeStrategy{kind: KindHLSFinite, body: func(ctx context.Context, run *Run) error {
		run.Ready("u", "p", 0, 4)
		run.Ready("u", "p", 0, 5)
		return nil
	}}, bc, testOptions())
	require.NoError(t, r.Start(testResult(t, KindHLSFinite)))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason)
	assert.Equal(t, string(KindHLSFinite), ev.Recorder)
	assert.Equal(t, StateStopped, r.State())

	got := bc.snapshot()
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Ready, "readiness precedes termination")
	assert.Equal(t, 4, got[0].Ready.SegmentIndex)
	assert.NotNil(t, got[1].Stop)
}

func TestRecorder_FailureIsClassifiedOnce(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bc := newCollector()
	r := New(&fakeStrategy{kind: KindHLSContinuous, body: func(ctx context.Context, run *Run) error {
		return &drm.Error{Source: drm.SourcePlaylist, Indicators: []string{"widevine"}}
	}}, bc, testOptions())
	require.NoError(t, r.Start(testResult(t, KindHLSContinuous)))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassDRMProtected, ev.ErrorClass)
	assert.Equal(t, StateFailed, r.State())
	assert.True(t, r.Stop())
	assert.Equal(t, 1, bc.stopCount())
	assert.Zero(t, bc.readyCount())
}

func TestRecorder_PanicBecomesGenericFailure(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bc := newCollector()
	r := New(&fakeStrategy{kind: KindDirect, body: func(ctx context.Context, run *Run) error {
		panic("boom")
	}}, bc, testOptions())
	require.NoError(t, r.Start(testResult(t, KindDirect)))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ClassGenericFailure, ev.ErrorClass)
	assert.Contains(t, ev.Message, "boom")
	assert.Equal(t, StateFailed, r.State())
}

func TestRecorder_DetachesStuckWorker(t *testing.T) {
	release := make(chan struct{})
	exited := make(chan struct{})
	bc := newCollector()
	opts := testOptions()
	opts.StopTimeout = 50 * time.Millisecond
	r := New(&fakeStrategy{kind: KindDirect, body: func(ctx context.Context, run *Run) error {
		defer close(exited)
		<-release
		run.Ready("u", "p", 0, 0)
		return errors.New("late failure")
	}}, bc, opts)
	require.NoError(t, r.Start(testResult(t, KindDirect)))

	assert.False(t, r.Stop())
	assert.Equal(t, StateDetached, r.State())
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonUserStopped, ev.Reason)
	assert.False(t, r.Stop(), "still detached while the worker runs")

	close(release)
	<-exited
	waitDone(t, r)
	assert.Equal(t, StateDetached, r.State())
	assert.Equal(t, 1, bc.stopCount(), "late worker exit must not broadcast again")
	assert.Zero(t, bc.readyCount(), "no readiness after termination")
	assert.True(t, r.Stop())
}

func TestRecorder_RemovesStaleOutput(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	res := testResult(t, KindDirect)
	for _, name := range []string{"stream_0.ts", "stream_1.ts", "stream.log", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(res.OutputDir, name), []byte("old"), 0o644))
	}

	bc := newCollector()
	seen := make(chan []string, 1)
	r := New(&fakeStrategy{kind: KindDirect, body: func(ctx context.Context, run *Run) error {
		entries, _ := os.ReadDir(run.Result.OutputDir)
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		seen <- names
		return nil
	}}, bc, testOptions())
	require.NoError(t, r.Start(res))
	waitDone(t, r)
	assert.Equal(t, []string{"keep.txt"}, <-seen)
}

func TestRecorder_DefaultsBufferingAndClient(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	runs := make(chan *Run, 1)
	opts := testOptions()
	opts.Buffering = 7
	r := New(&fakeStrategy{kind: KindDirect, body: func(ctx context.Context, run *Run) error {
		runs <- run
		return nil
	}}, newCollector(), opts)
	res := testResult(t, KindDirect)
	res.Buffering = 0
	require.NoError(t, r.Start(res))
	waitDone(t, r)

	run := <-runs
	assert.Equal(t, 7, run.Result.Buffering)
	assert.NotNil(t, run.Client)
	assert.Equal(t, r.RunID(), run.ID)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want events.ErrorClass
	}{
		{"nil", nil, events.ClassNone},
		{"drm beats access", fmt.Errorf("wrap: %w", &drm.Error{Source: drm.SourceError, Indicators: []string{"x"}}), events.ClassDRMProtected},
		{"forbidden", fmt.Errorf("open: %w", &httpx.StatusError{Code: 403}), events.ClassAccessDenied},
		{"timeout", fmt.Errorf("fetch: %w", context.DeadlineExceeded), events.ClassTimeout},
		{"segments", fmt.Errorf("%w: 5 in a row", ErrTooManySegmentFailures), events.ClassGenericFailure},
		{"not found", &httpx.StatusError{Code: 404}, events.ClassGenericFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{
		"direct-download":      KindDirect,
		"HLS-Finite":           KindHLSFinite,
		"hls_live":             KindHLSContinuous,
		"hls-external-process": KindHLSExternal,
	} {
		got, err := ParseKind(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseKind("dash")
	assert.ErrorIs(t, err, ErrUnknownKind)
}
