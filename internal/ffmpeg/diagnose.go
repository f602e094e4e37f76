// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ffmpeg

import "strings"

// Signature is a known failure pattern in ffmpeg's stderr.
type Signature string

const (
	SigNone         Signature = ""
	SigForbidden    Signature = "forbidden"
	SigNotFound     Signature = "not_found"
	SigUnauthorized Signature = "unauthorized"
	SigInvalidData  Signature = "invalid_data"
	SigProtocol     Signature = "protocol"
)

var signatures = []struct {
	sig     Signature
	needles []string
}{
	{SigForbidden, []string{"403", "Forbidden"}},
	{SigNotFound, []string{"404", "Not Found"}},
	{SigUnauthorized, []string{"401", "Unauthorized"}},
	{SigInvalidData, []string{"Invalid data"}},
	{SigProtocol, []string{"Protocol not found"}},
}

// Diagnose returns the first known signature found in the stderr lines.
func Diagnose(lines []string) Signature {
	text := strings.Join(lines, "\n")
	for _, s := range signatures {
		for _, n := range s.needles {
			if strings.Contains(text, n) {
				return s.sig
			}
		}
	}
	return SigNone
}

// Hint is a short operator-facing explanation of sig.
func (s Signature) Hint() string {
	switch s {
	case SigForbidden:
		return "403 Forbidden: authentication failed"
	case SigNotFound:
		return "404 Not Found: URL invalid or expired"
	case SigUnauthorized:
		return "401 Unauthorized: credentials invalid"
	case SigInvalidData:
		return "invalid data: URL may not be a valid stream"
	case SigProtocol:
		return "protocol error: check URL format and connectivity"
	default:
		return ""
	}
}
