// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout = 5 * time.Second
	// Dial and header waits of short clients never exceed these caps even
	// when the overall timeout is larger.
	maxDialTimeout   = 3 * time.Second
	maxHeaderTimeout = 3 * time.Second
	// Origins of progressive downloads may take long to send headers.
	streamingHeaderTimeout = 30 * time.Second

	defaultMaxIdleConns        = 16
	defaultMaxIdleConnsPerHost = 4
)

type transportLimits struct {
	dial   time.Duration
	header time.Duration
}

// NewClient is used for playlists, keys and segments, where the whole
// exchange has a known upper bound.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	lim := transportLimits{dial: min(timeout, maxDialTimeout), header: min(timeout, maxHeaderTimeout)}
	return &http.Client{Timeout: timeout, Transport: lim.transport()}
}

// NewStreamingClient has no overall deadline because download bodies run
// for the length of a recording. Callers cancel through the request context.
func NewStreamingClient() *http.Client {
	lim := transportLimits{dial: maxDialTimeout, header: streamingHeaderTimeout}
	return &http.Client{Transport: lim.transport()}
}

// Traced returns a copy of c whose transport emits client spans.
func Traced(c *http.Client) *http.Client {
	if c == nil {
		return nil
	}
	rt := c.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	traced := *c
	traced.Transport = otelhttp.NewTransport(rt)
	return &traced
}

func (l transportLimits) transport() *http.Transport {
	dialer := &net.Dialer{Timeout: l.dial, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		TLSHandshakeTimeout:   l.dial,
		ResponseHeaderTimeout: l.header,
		ExpectContinueTimeout: time.Second,
		IdleConnTimeout:       30 * time.Second,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
	}
}
