// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package hls

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grafov/m3u8"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
)

var (
	ErrNoVariants   = errors.New("master playlist has no variants")
	ErrNotMedia     = errors.New("not a media playlist")
	ErrNotPlaylist  = errors.New("response is not an m3u8 playlist")
	ErrRelativeBase = errors.New("base url is not absolute")
)

// Key is the encryption declaration in effect for a segment.
type Key struct {
	Method string
	URI    string
	IV     string
}

// Encrypted reports whether the segment needs decryption.
func (k Key) Encrypted() bool {
	return k.Method != "" && !strings.EqualFold(k.Method, "NONE")
}

// Segment is one media playlist entry. URI is as written in the playlist.
type Segment struct {
	URI           string
	Sequence      uint64
	Duration      time.Duration
	Key           Key
	Discontinuity bool
}

// MediaPlaylist is the parsed form of one media playlist fetch.
type MediaPlaylist struct {
	URL            string
	MediaSequence  uint64
	TargetDuration time.Duration
	Ended          bool
	Segments       []Segment
	Raw            string
}

// Fetcher downloads playlists with a borrowed client. Header is applied per
// request and never stored on the client.
type Fetcher struct {
	Client  *http.Client
	Header  http.Header
	Timeout time.Duration
}

// Fetch returns playlist text and the final URL after redirects.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, string, error) {
	body, final, err := httpx.Fetch(ctx, f.Client, rawURL, f.Header, f.Timeout)
	if err != nil {
		return "", "", err
	}
	text := string(body)
	if !strings.HasPrefix(strings.TrimLeft(text, "\ufeff \t\r\n"), "#EXTM3U") {
		return "", final, fmt.Errorf("%w (%d bytes)", ErrNotPlaylist, len(body))
	}
	return text, final, nil
}

// ResolveURL resolves ref against base. Absolute refs are returned unchanged.
func ResolveURL(base, ref string) (string, error) {
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse reference: %w", err)
	}
	if r.IsAbs() {
		return r.String(), nil
	}
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base: %w", err)
	}
	if !b.IsAbs() {
		return "", fmt.Errorf("%w: %q", ErrRelativeBase, base)
	}
	return b.ResolveReference(r).String(), nil
}

// SelectVariant resolves a master playlist to one media playlist URL: the
// variant with the highest declared bandwidth, first one winning ties. A
// playlist that already is a media playlist resolves to itself.
func SelectVariant(text, masterURL string) (string, error) {
	pl, typ, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return "", fmt.Errorf("decode master playlist: %w", err)
	}
	if typ == m3u8.MEDIA {
		return masterURL, nil
	}
	master, ok := pl.(*m3u8.MasterPlaylist)
	if !ok {
		return "", ErrNoVariants
	}
	var best *m3u8.Variant
	for _, v := range master.Variants {
		if v == nil || v.URI == "" || v.Iframe {
			continue
		}
		if best == nil || v.Bandwidth > best.Bandwidth {
			best = v
		}
	}
	if best == nil {
		return "", ErrNoVariants
	}
	return ResolveURL(masterURL, best.URI)
}

// ParseMedia parses a media playlist. Segment sequence numbers are the
// declared media sequence plus the segment's position.
func ParseMedia(text, playlistURL string) (*MediaPlaylist, error) {
	pl, typ, err := m3u8.DecodeFrom(strings.NewReader(text), false)
	if err != nil {
		return nil, fmt.Errorf("decode media playlist: %w", err)
	}
	media, ok := pl.(*m3u8.MediaPlaylist)
	if typ != m3u8.MEDIA || !ok {
		return nil, ErrNotMedia
	}

	out := &MediaPlaylist{
		URL:            playlistURL,
		MediaSequence:  media.SeqNo,
		TargetDuration: seconds(media.TargetDuration),
		Ended:          media.Closed,
		Raw:            text,
	}
	// the decoder attaches EXT-X-KEY only to the segment that follows it
	var key Key
	for i, s := range media.Segments {
		if s == nil {
			break
		}
		if s.Key != nil {
			key = Key{Method: s.Key.Method, URI: s.Key.URI, IV: s.Key.IV}
		}
		out.Segments = append(out.Segments, Segment{
			URI:           s.URI,
			Sequence:      media.SeqNo + uint64(i),
			Duration:      seconds(s.Duration),
			Key:           key,
			Discontinuity: s.Discontinuity,
		})
	}
	return out, nil
}

func seconds(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// ScanDRM inspects raw playlist text before any segment is touched.
func ScanDRM(text string) error {
	r := drm.ScanPlaylist(text)
	if r.Protected() {
		metrics.IncDRM(string(drm.SourcePlaylist))
	}
	return r.Err()
}
