// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package drm recognises rights-protection signalling in playlists, URLs,
// HTTP responses and key declarations. A positive result is terminal: the
// recorder cannot bypass protection and never retries.
package drm

import (
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
)

// Source names where an indicator was found.
type Source string

const (
	SourcePlaylist   Source = "playlist"
	SourceURL        Source = "url"
	SourceContent    Source = "content"
	SourceHeaders    Source = "headers"
	SourceError      Source = "error"
	SourceKey        Source = "key"
	SourceScrambling Source = "scrambling"
)

// Finding is one matched indicator.
type Finding struct {
	Source    Source
	System    string
	Indicator string
}

// Report aggregates findings of one inspection.
type Report struct {
	Findings []Finding
}

func (r Report) Protected() bool { return len(r.Findings) > 0 }

// Systems returns the distinct protection systems found, sorted.
func (r Report) Systems() []string {
	seen := make(map[string]struct{}, len(r.Findings))
	for _, f := range r.Findings {
		seen[f.System] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Merge appends the findings of other.
func (r *Report) Merge(other Report) {
	r.Findings = append(r.Findings, other.Findings...)
}

// Err converts a positive report into an *Error, or returns nil.
func (r Report) Err() error {
	if !r.Protected() {
		return nil
	}
	e := &Error{Source: r.Findings[0].Source}
	for _, f := range r.Findings {
		e.Indicators = append(e.Indicators, f.Indicator)
	}
	return e
}

type pattern struct {
	system string
	expr   string
	re     *regexp.Regexp
}

func compile(system string, exprs ...string) []pattern {
	out := make([]pattern, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, pattern{system: system, expr: e, re: regexp.MustCompile("(?i)" + e)})
	}
	return out
}

var systemPatterns = concat(
	compile("widevine", `widevine`, `drm\.widevine`, `wv-keyos`, `application/dash\+xml.*widevine`),
	compile("playready", `playready`, `microsoft\.playready`, `mspr-2\.0`, `application/dash\+xml.*playready`),
	compile("fairplay", `fairplay`, `application/vnd\.apple\.fps`, `skd://`),
	compile("clearkey", `clearkey`, `clear-key`, `org\.w3\.clearkey`),
	compile("generic_drm", `contentprotection`, `\bkeyid\b`, `key_id`, `\bcenc\b`, `\bcbcs\b`),
)

func concat(groups ...[]pattern) []pattern {
	var out []pattern
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var headerNameIndicators = []string{
	"x-drm-",
	"x-widevine-",
	"x-playready-",
	"content-protection",
}

// Keywords in transport errors that only protection layers produce. Plain
// HTTP status text (forbidden, unauthorized) is classified as access denied
// elsewhere and deliberately absent.
var errorKeywords = []string{
	"drm_protected",
	"drm protected",
	"license",
	"content protection",
	"digital rights",
	"subscription required",
	"geo-blocked",
	"not available in your region",
}

// keyLicensePatterns mark key URIs served by licence servers rather than
// plain key files.
var keyLicensePatterns = []string{"widevine", "playready", "fairplay", "license/", "/drm/", "drmtoday", "axinom"}

// Rendition folder names some providers use for clear content.
var keyFalsePositives = []string{"480pdrm", "720pdrm", "1080pdrm"}

func matchPatterns(src Source, text string) Report {
	var r Report
	if text == "" {
		return r
	}
	for _, p := range systemPatterns {
		if p.re.MatchString(text) {
			r.Findings = append(r.Findings, Finding{Source: src, System: p.system, Indicator: fmt.Sprintf("%s pattern: %s", src, p.expr)})
		}
	}
	return r
}

// ScanURL inspects a URL for protection-system markers.
func ScanURL(u string) Report {
	return matchPatterns(SourceURL, u)
}

// ScanContent inspects a textual body (error page, manifest, JSON).
func ScanContent(body string) Report {
	r := matchPatterns(SourceContent, body)
	lower := strings.ToLower(body)
	if strings.Contains(lower, "<contentprotection") {
		r.Findings = append(r.Findings, Finding{Source: SourceContent, System: "dash_protection", Indicator: "DASH ContentProtection element"})
	}
	return r
}

// ScanPlaylist inspects raw HLS playlist text. Public AES-128 keys are not
// protection; every other non-NONE key method is.
func ScanPlaylist(text string) Report {
	r := matchPatterns(SourcePlaylist, text)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(strings.ToUpper(line), "#EXT-X-KEY:") && !strings.HasPrefix(strings.ToUpper(line), "#EXT-X-SESSION-KEY:") {
			continue
		}
		method := strings.ToUpper(attr(line, "METHOD"))
		switch {
		case method == "" || method == "NONE":
			continue
		case method == "AES-128" && IsPublicAES128(line, text):
			continue
		}
		r.Findings = append(r.Findings, Finding{Source: SourcePlaylist, System: "hls_encryption", Indicator: "HLS encryption: " + line})
	}
	return r
}

// ScanHeaders inspects HTTP response headers.
func ScanHeaders(h http.Header) Report {
	var r Report
	for name, values := range h {
		lname := strings.ToLower(name)
		for _, ind := range headerNameIndicators {
			if strings.Contains(lname, ind) {
				system := "generic_drm"
				switch {
				case strings.Contains(lname, "widevine"):
					system = "widevine"
				case strings.Contains(lname, "playready"):
					system = "playready"
				}
				r.Findings = append(r.Findings, Finding{Source: SourceHeaders, System: system, Indicator: "header name: " + name})
			}
		}
		for _, v := range values {
			for _, f := range matchPatterns(SourceHeaders, v).Findings {
				f.Indicator = fmt.Sprintf("header value (%s): %s", name, f.Indicator)
				r.Findings = append(r.Findings, f)
			}
		}
	}
	return r
}

// ScanError inspects an error message for protection-specific wording.
func ScanError(msg string) Report {
	var r Report
	lower := strings.ToLower(msg)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			r.Findings = append(r.Findings, Finding{Source: SourceError, System: "error_based", Indicator: "error keyword: " + kw})
		}
	}
	return r
}

// KeyIsDRM decides whether a segment key declaration denotes a protection
// system. AES-128 counts only when its key URI points at a licence server.
func KeyIsDRM(method, uri string) (bool, string) {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" || method == "NONE" {
		return false, ""
	}
	if method != "AES-128" {
		return true, "segment key method: " + method
	}
	lower := strings.ToLower(uri)
	for _, fp := range keyFalsePositives {
		if strings.Contains(lower, fp) {
			return false, ""
		}
	}
	for _, p := range keyLicensePatterns {
		if strings.Contains(lower, p) {
			return true, "segment key licence URI: " + p
		}
	}
	return false, ""
}

var (
	publicProviders   = []string{"pluto.tv", "plutotv", "samsung", "samsungtv"}
	publicKeyServices = []string{"pluto.tv", "samsung", "tubi", "crackle", "xumo"}
	simpleKeyFile     = regexp.MustCompile(`(?i)(\.key|key\d*\.bin)$`)
)

// IsPublicAES128 reports whether an EXT-X-KEY line is plain AES-128 with a
// publicly fetchable key rather than a licence-server scheme.
func IsPublicAES128(keyLine, playlist string) bool {
	if !strings.Contains(strings.ToUpper(keyLine), "METHOD=AES-128") {
		return false
	}
	lowerLine := strings.ToLower(keyLine)
	lowerPlaylist := strings.ToLower(playlist)
	for _, p := range publicProviders {
		if strings.Contains(lowerPlaylist, p) || strings.Contains(lowerLine, p) {
			return true
		}
	}
	uri := strings.ToLower(attr(keyLine, "URI"))
	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		return false
	}
	if simpleKeyFile.MatchString(uri) {
		return true
	}
	for _, s := range publicKeyServices {
		if strings.Contains(uri, s) {
			return true
		}
	}
	return false
}

// attr extracts an attribute value from an HLS tag line.
func attr(line, name string) string {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return ""
	}
	rest := line[idx+1:]
	for rest != "" {
		eq := strings.IndexByte(rest, '=')
		if eq < 0 {
			return ""
		}
		key := strings.TrimSpace(rest[:eq])
		rest = rest[eq+1:]
		var val string
		if strings.HasPrefix(rest, `"`) {
			end := strings.IndexByte(rest[1:], '"')
			if end < 0 {
				val, rest = rest[1:], ""
			} else {
				val, rest = rest[1:end+1], rest[end+2:]
			}
			rest = strings.TrimPrefix(rest, ",")
		} else if comma := strings.IndexByte(rest, ','); comma >= 0 {
			val, rest = rest[:comma], rest[comma+1:]
		} else {
			val, rest = rest, ""
		}
		if strings.EqualFold(key, name) {
			return val
		}
	}
	return ""
}
