// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/events"
)

func startDirect(t *testing.T, url string) (*Recorder, *collector, ResolveResult) {
	t.Helper()
	bc := newCollector()
	res := testResult(t, KindDirect)
	res.URL = url
	r := New(&DirectStrategy{}, bc, testOptions())
	require.NoError(t, r.Start(res))
	return r, bc, res
}

func TestDirect_DownloadsAndSignalsReadiness(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	payload := bytes.Repeat([]byte("0123456789abcdef"), 4096) // 64 KiB, eight chunks
	var heads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth") != "tok" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if r.Method == http.MethodHead {
			heads.Add(1)
		}
		http.ServeContent(w, r, "video.mp4", time.Time{}, bytes.NewReader(payload))
	}))
	defer srv.Close()

	bc := newCollector()
	res := testResult(t, KindDirect)
	res.URL = srv.URL + "/media/video.mp4?sig=1"
	res.AuthHeaders = http.Header{"X-Auth": {"tok"}}
	r := New(&DirectStrategy{}, bc, testOptions())
	require.NoError(t, r.Start(res))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason, ev.Message)
	assert.Equal(t, int32(1), heads.Load())

	out := filepath.Join(res.OutputDir, "stream_0.mp4")
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, payload, got)

	ready := bc.snapshot()[0].Ready
	require.NotNil(t, ready)
	assert.Equal(t, out, ready.Path)
	assert.Equal(t, 1, bc.readyCount())
}

func TestDirect_HeadFailureIsIgnored(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_, _ = w.Write([]byte("ts-bytes"))
	}))
	defer srv.Close()

	r, bc, res := startDirect(t, srv.URL+"/clip.ts")
	waitDone(t, r)
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason, ev.Message)
	got, err := os.ReadFile(filepath.Join(res.OutputDir, "stream_0.ts"))
	require.NoError(t, err)
	assert.Equal(t, "ts-bytes", string(got))
}

func TestDirect_ForbiddenIsAccessDenied(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r, bc, _ := startDirect(t, srv.URL+"/v.mp4")
	waitDone(t, r)
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassAccessDenied, ev.ErrorClass)
	assert.Zero(t, bc.readyCount())
}

func TestDirect_EmptyBodyIsFailure(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, bc, _ := startDirect(t, srv.URL+"/v.mp4")
	waitDone(t, r)
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassGenericFailure, ev.ErrorClass)
	assert.Contains(t, ev.Message, ErrEmptyOutput.Error())
}

func TestDirect_StopMidDownload(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	stop := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			return
		}
		_, _ = w.Write(bytes.Repeat([]byte{1}, 8192))
		w.(http.Flusher).Flush()
		select {
		case <-stop:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(stop)

	r, bc, _ := startDirect(t, srv.URL+"/endless.mp4")
	bc.waitReady(t, 2*time.Second)
	assert.True(t, r.Stop())
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonUserStopped, ev.Reason)
}

func TestDirectFile(t *testing.T) {
	assert.Equal(t, "stream_0.mp4", DirectFile("https://x/v.mp4?x=1"))
	assert.Equal(t, "stream_0.mkv", DirectFile("https://x/a/b.MKV"))
	assert.Equal(t, "stream_0.mp4", DirectFile("https://x/play?id=3"))
}
