// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/events"
)

// fakeFFmpeg writes a script that records its arguments to args.txt next
// to itself and then runs body.
func fakeFFmpeg(t *testing.T, body string) (bin, argsFile string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in requires a POSIX shell")
	}
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args.txt")
	script := "#!/bin/sh\nfor a in \"$@\"; do printf '%s\\n--\\n' \"$a\"; done > " + argsFile + "\n" + body + "\n"
	bin = filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(bin, []byte(script), 0o755))
	return bin, argsFile
}

func startExternal(t *testing.T, bin string, res ResolveResult) (*Recorder, *collector) {
	t.Helper()
	opts := testOptions()
	opts.FFmpeg.Bin = bin
	bc := newCollector()
	r := New(&ExternalStrategy{}, bc, opts)
	require.NoError(t, r.Start(res))
	return r, bc
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	var raw []byte
	require.Eventually(t, func() bool {
		var err error
		raw, err = os.ReadFile(path)
		return err == nil && len(raw) > 0
	}, 2*time.Second, 5*time.Millisecond)
	args := strings.Split(strings.TrimSuffix(string(raw), "\n--\n"), "\n--\n")
	return args
}

func TestExternal_ReadyAfterTicksThenStop(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bin, argsFile := fakeFFmpeg(t, "exec sleep 30")
	res := testResult(t, KindHLSExternal)
	res.AuthHeaders = http.Header{"Cookie": {"sid=1"}, "Referer": {"https://site.example/"}}
	r, bc := startExternal(t, bin, res)

	ready := bc.waitReady(t, 2*time.Second)
	assert.Equal(t, filepath.Join(res.OutputDir, "stream_0.ts"), ready.Path)
	assert.Equal(t, res.URL, ready.URL)

	args := readArgs(t, argsFile)
	idx := -1
	for i, a := range args {
		if a == "-headers" {
			idx = i
		}
	}
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "Cookie: sid=1\r\nReferer: https://site.example/\r\n", args[idx+1])
	assert.Equal(t, filepath.Join(res.OutputDir, "stream_0.ts"), args[len(args)-1])

	assert.True(t, r.Stop())
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonUserStopped, ev.Reason)
}

func TestExternal_PrebuiltHeadersWin(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bin, argsFile := fakeFFmpeg(t, "exit 0")
	res := testResult(t, KindHLSExternal)
	res.FFmpegHeaders = "Authorization: Bearer x\r\n"
	res.AuthHeaders = http.Header{"Cookie": {"ignored"}}
	r, bc := startExternal(t, bin, res)
	waitDone(t, r)

	assert.Contains(t, readArgs(t, argsFile), "Authorization: Bearer x\r\n")
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonCompleted, ev.Reason)
}

func TestExternal_UnexpectedExitIsFailure(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bin, _ := fakeFFmpeg(t, `echo "[https @ 0x1] HTTP error 403 Forbidden" >&2
exit 1`)
	r, bc := startExternal(t, bin, testResult(t, KindHLSExternal))
	waitDone(t, r)

	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Equal(t, events.ClassGenericFailure, ev.ErrorClass)
	assert.Contains(t, ev.Message, "exit code 1")
	assert.Contains(t, ev.Message, "403 Forbidden")
	assert.Equal(t, StateFailed, r.State())
}

func TestExternal_MissingBinary(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	r, bc := startExternal(t, filepath.Join(t.TempDir(), "no-ffmpeg"), testResult(t, KindHLSExternal))
	waitDone(t, r)
	ev := bc.waitStop(t, time.Second)
	assert.Equal(t, events.ReasonError, ev.Reason)
	assert.Contains(t, ev.Message, "start ffmpeg")
}
