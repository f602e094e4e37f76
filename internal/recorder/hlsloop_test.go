// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/hls"
	"github.com/ManuGH/streamrec/internal/mpegts/tstest"
)

// hlsOrigin serves a master playlist, a mutable media playlist and
// generated segments, counting hits per path.
type hlsOrigin struct {
	mu    sync.Mutex
	media string
	// mediaStatus, when set, replaces every media playlist response
	mediaStatus int
	hits        map[string]int
	bad         map[string]bool
	srv         *httptest.Server
}

const masterText = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=500000
low/index.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000
hd/index.m3u8
`

func newHLSOrigin(t *testing.T) *hlsOrigin {
	t.Helper()
	o := &hlsOrigin{hits: map[string]int{}, bad: map[string]bool{}}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.mu.Lock()
		o.hits[r.URL.Path]++
		media := o.media
		status := o.mediaStatus
		bad := o.bad[r.URL.Path]
		o.mu.Unlock()

		switch {
		case r.URL.Path == "/master.m3u8":
			_, _ = w.Write([]byte(masterText))
		case r.URL.Path == "/hd/index.m3u8" && status != 0:
			w.WriteHeader(status)
		case r.URL.Path == "/hd/index.m3u8":
			_, _ = w.Write([]byte(media))
		case bad:
			http.NotFound(w, r)
		case strings.HasPrefix(r.URL.Path, "/hd/seg") && strings.HasSuffix(r.URL.Path, ".ts"):
			var n int
			_, _ = fmt.Sscanf(strings.TrimPrefix(r.URL.Path, "/hd/seg"), "%d", &n)
			// every segment restarts its clock like an independently encoded chunk
			_, _ = w.Write(tstest.New(int64(90_000 * (n + 1))).Build())
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func (o *hlsOrigin) setMedia(text string) {
	o.mu.Lock()
	o.media = text
	o.mu.Unlock()
}

func (o *hlsOrigin) failMedia(status int) {
	o.mu.Lock()
	o.mediaStatus = status
	o.mu.Unlock()
}

func (o *hlsOrigin) count(path string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.hits[path]
}

func (o *hlsOrigin) segmentHits() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for p, c := range o.hits {
		if strings.HasPrefix(p, "/hd/seg") {
			n += c
		}
	}
	return n
}

func (o *hlsOrigin) markBad(path string) {
	o.mu.Lock()
	o.bad[path] = true
	o.mu.Unlock()
}

func mediaText(first, count int, ended bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:%d\n", first)
	for i := first; i < first+count; i++ {
		fmt.Fprintf(&b, "#EXTINF:6.0,\nseg%d.ts\n", i)
	}
	if ended {
		b.WriteString("#EXT-X-ENDLIST\n")
	}
	return b.String()
}

func startHLS(t *testing.T, o *hlsOrigin, mode Mode, buffering int) (*Recorder, *collector, ResolveResult) {
	t.Helper()
	bc := newCollector()
	strategy := &HLSStrategy{Mode: mode}
	res := testResult(t, strategy.Kind())
	res.URL = o.srv.URL + "/master.m3u8"
	res.Buffering = buffering
	r := New(strategy, bc, testOptions())
	require.NoError(t, r.Start(res))
	return r, bc, res
}

func TestHLSFinite_CompletesAfterEndList(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.setMedia(mediaText(10, 3, true))

	r, bc, res := startHLS(t, o, ModeFinite, 5)
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason, ev.Message)
	assert.Equal(t, 1, o.count("/hd/index.m3u8"), "no fetch after the end marker")
	assert.Equal(t, 3, o.segmentHits())
	assert.Zero(t, o.count("/low/index.m3u8"), "highest bandwidth variant is used")

	got := bc.snapshot()
	require.Len(t, got, 2)
	require.NotNil(t, got[0].Ready, "buffering is clamped to the playlist length")
	assert.Equal(t, 2, got[0].Ready.SegmentIndex)
	assert.Equal(t, filepath.Join(res.OutputDir, "stream_0.ts"), got[0].Ready.Path)

	data, err := os.ReadFile(filepath.Join(res.OutputDir, "stream_0.ts"))
	require.NoError(t, err)
	assert.Equal(t, 3*len(tstest.New(0).Build()), len(data))
	_, err = os.Stat(filepath.Join(res.OutputDir, hls.JournalFile))
	assert.NoError(t, err)
}

func TestHLSFinite_EventPlaylistEndingDoesNotRerecord(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.setMedia(mediaText(0, 3, false))

	r, bc, res := startHLS(t, o, ModeFinite, 2)
	require.Eventually(t, func() bool { return o.count("/hd/seg2.ts") == 1 }, 3*time.Second, 5*time.Millisecond)
	o.setMedia(mediaText(0, 5, true))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason, ev.Message)
	for i := 0; i < 5; i++ {
		assert.Equal(t, 1, o.count(fmt.Sprintf("/hd/seg%d.ts", i)), "segment %d", i)
	}
	data, err := os.ReadFile(filepath.Join(res.OutputDir, "stream_0.ts"))
	require.NoError(t, err)
	assert.Equal(t, 5*len(tstest.New(0).Build()), len(data))
}

func TestHLSFinite_DRMInPlaylistAbortsBeforeDownload(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.setMedia("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-KEY:METHOD=SAMPLE-AES,URI=\"skd://key\",KEYFORMAT=\"com.apple.streamingkeydelivery\"\n#EXTINF:6,\nseg1.ts\n#EXT-X-ENDLIST\n")

	r, bc, _ := startHLS(t, o, ModeFinite, 1)
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassDRMProtected, ev.ErrorClass)
	assert.Zero(t, o.segmentHits())
}

func TestHLSFinite_ConsecutiveSegmentFailuresAbort(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	for i := 0; i < 6; i++ {
		o.markBad(fmt.Sprintf("/hd/seg%d.ts", i))
	}
	o.setMedia(mediaText(0, 8, true))

	r, bc, _ := startHLS(t, o, ModeFinite, 1)
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassGenericFailure, ev.ErrorClass)
	assert.Contains(t, ev.Message, ErrTooManySegmentFailures.Error())
	// five segments, two attempts each
	assert.Equal(t, 10, o.segmentHits())
	assert.Zero(t, bc.readyCount())
}

func TestHLSContinuous_DedupsAndReloadsOnEndList(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.setMedia(mediaText(100, 3, false))

	r, bc, _ := startHLS(t, o, ModeContinuous, 2)
	bc.waitReady(t, 3*time.Second)

	require.Eventually(t, func() bool { return o.count("/hd/index.m3u8") >= 3 }, 3*time.Second, 5*time.Millisecond)
	o.setMedia(mediaText(101, 3, false))
	require.Eventually(t, func() bool { return o.count("/hd/seg103.ts") == 1 }, 3*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, o.count("/hd/seg100.ts"), "already recorded segments are skipped")
	assert.Equal(t, 1, o.count("/hd/seg102.ts"))

	masters := o.count("/master.m3u8")
	o.setMedia(mediaText(101, 3, true))
	require.Eventually(t, func() bool { return o.count("/master.m3u8") > masters }, 3*time.Second, 5*time.Millisecond,
		"end marker on a live playlist forces a master reload")
	assert.Equal(t, StateRunning, r.State(), "live recording never ends by itself")

	assert.True(t, r.Stop())
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonUserStopped, ev.Reason)
	assert.Equal(t, 1, bc.readyCount())
}

func TestHLSContinuous_EmptyPlaylistForcesMasterReload(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.setMedia("#EXTM3U\n#EXT-X-TARGETDURATION:6\n#EXT-X-MEDIA-SEQUENCE:1\n")

	r, bc, _ := startHLS(t, o, ModeContinuous, 1)
	require.Eventually(t, func() bool { return o.count("/master.m3u8") >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, o.count("/hd/index.m3u8"), 5)

	assert.True(t, r.Stop())
	assert.Equal(t, events.ReasonUserStopped, bc.waitStop(t, time.Second).Reason)
}

func TestHLSContinuous_MediaFetchFailuresForceMasterReload(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	o.failMedia(http.StatusInternalServerError)

	r, bc, _ := startHLS(t, o, ModeContinuous, 1)
	require.Eventually(t, func() bool { return o.count("/master.m3u8") >= 2 }, 3*time.Second, 5*time.Millisecond,
		"five failed media fetches reload the master playlist")
	assert.GreaterOrEqual(t, o.count("/hd/index.m3u8"), 5)
	assert.Equal(t, StateRunning, r.State())
	assert.Zero(t, o.segmentHits())

	assert.True(t, r.Stop())
	assert.Equal(t, events.ReasonUserStopped, bc.waitStop(t, time.Second).Reason)
}

func TestHLSFinite_UnparsablePlaylistForcesMasterReload(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	o := newHLSOrigin(t)
	// a playlist header with no media or variant tags cannot be decoded
	o.setMedia("#EXTM3U\n# maintenance\n")

	r, bc, _ := startHLS(t, o, ModeFinite, 1)
	require.Eventually(t, func() bool { return o.count("/master.m3u8") >= 2 }, 3*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, o.count("/hd/index.m3u8"), 5)

	o.setMedia(mediaText(0, 2, true))
	waitDone(t, r)
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason, ev.Message)
	assert.Equal(t, 2, o.segmentHits())
}

func TestHLS_NextPoll(t *testing.T) {
	r := &hlsRun{opts: testOptions().withDefaults().HLS}
	r.opts.MaxSleep = 3 * time.Second
	r.opts.IdleSleep = time.Second
	assert.Equal(t, 3*time.Second, r.nextPoll(10*time.Second))
	assert.Equal(t, 2*time.Second, r.nextPoll(4*time.Second))
	assert.Equal(t, time.Second, r.nextPoll(0))
}
