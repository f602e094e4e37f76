// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import (
	"net/http"
	"sort"
	"strings"
)

const maskedHeaders = "[HEADERS_MASKED]"

// Spec describes one transcode of an HLS playlist into a single TS file.
type Spec struct {
	Input   string
	Headers string // ffmpeg -headers format, "Name: value\r\n" per line
	Output  string
}

// HeaderString renders h in the multi-line format ffmpeg expects for
// -headers. Names are sorted so the command line is stable.
func HeaderString(h http.Header) string {
	if len(h) == 0 {
		return ""
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		for _, v := range h[name] {
			b.WriteString(http.CanonicalHeaderKey(name))
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	return b.String()
}

// Args builds the argument list. Output is normalised to baseline H.264 and
// AAC in MPEG-TS so constrained set-top players can decode it.
func Args(spec Spec) []string {
	args := []string{
		"-y", "-hide_banner", "-nostdin",
		"-reconnect", "1",
		"-reconnect_streamed", "1",
		"-reconnect_delay_max", "30",
	}
	if spec.Headers != "" {
		args = append(args, "-headers", spec.Headers)
	}
	args = append(args,
		"-probesize", "128M",
		"-analyzeduration", "20M",
		"-i", spec.Input,
		"-c:v", "libx264",
		"-profile:v", "baseline",
		"-level:v", "3.1",
		"-preset", "ultrafast",
		"-tune", "zerolatency",
		"-threads", "0",
		"-x264opts", "bframes=0:cabac=0:weightp=0:8x8dct=0:aud=1:me=dia:subme=1:trellis=0:ref=1:slices=8",
		"-c:a", "aac",
		"-bsf:a", "aac_adtstoasc",
		"-f", "mpegts",
		"-mpegts_copyts", "1",
		"-mpegts_start_pid", "0x100",
		"-mpegts_service_id", "1",
		"-fflags", "+genpts+igndts+flush_packets+discardcorrupt",
		"-max_muxing_queue_size", "512",
		"-avoid_negative_ts", "make_zero",
		"-err_detect", "ignore_err",
		"-loglevel", "error",
		spec.Output,
	)
	return args
}

// Masked returns a printable command line with the -headers value hidden.
func Masked(bin string, args []string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, bin)
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "-headers" && i+1 < len(args) {
			parts = append(parts, a, maskedHeaders)
			i++
			continue
		}
		if strings.ContainsAny(a, " \t") {
			a = `"` + a + `"`
		}
		parts = append(parts, a)
	}
	return strings.Join(parts, " ")
}
