// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient_DefaultTimeoutAndTransport(t *testing.T) {
	client := NewClient(0)
	if client.Timeout != defaultClientTimeout {
		t.Fatalf("timeout = %v, want %v", client.Timeout, defaultClientTimeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("transport type = %T, want *http.Transport", client.Transport)
	}
	if transport.MaxIdleConnsPerHost != defaultMaxIdleConnsPerHost {
		t.Fatalf("MaxIdleConnsPerHost = %d, want %d", transport.MaxIdleConnsPerHost, defaultMaxIdleConnsPerHost)
	}
}

func TestNewClient_UsesShortTimeoutAsProvided(t *testing.T) {
	want := 1500 * time.Millisecond
	client := NewClient(want)
	transport := client.Transport.(*http.Transport)
	if client.Timeout != want {
		t.Fatalf("timeout = %v, want %v", client.Timeout, want)
	}
	if transport.ResponseHeaderTimeout != want {
		t.Fatalf("ResponseHeaderTimeout = %v, want %v", transport.ResponseHeaderTimeout, want)
	}
}

func TestNewStreamingClient_HasNoOverallDeadline(t *testing.T) {
	client := NewStreamingClient()
	if client.Timeout != 0 {
		t.Fatalf("timeout = %v, want 0", client.Timeout)
	}
	transport := client.Transport.(*http.Transport)
	if transport.ResponseHeaderTimeout != streamingHeaderTimeout {
		t.Fatalf("ResponseHeaderTimeout = %v, want %v", transport.ResponseHeaderTimeout, streamingHeaderTimeout)
	}
}

func TestTracedLeavesOriginalUntouched(t *testing.T) {
	orig := NewClient(time.Second)
	origTransport := orig.Transport
	traced := Traced(orig)
	if orig.Transport != origTransport {
		t.Fatal("original transport was replaced")
	}
	if traced.Transport == origTransport {
		t.Fatal("traced client still uses the bare transport")
	}
	if traced.Timeout != orig.Timeout {
		t.Fatalf("timeout = %v, want %v", traced.Timeout, orig.Timeout)
	}
}
