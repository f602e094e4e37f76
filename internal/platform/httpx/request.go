// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	ErrAccessDenied = errors.New("access denied")
	ErrNotFound     = errors.New("not found")
	ErrNoClient     = errors.New("no http client")
)

// StatusError reports a non-2xx response.
type StatusError struct {
	Code   int
	URL    string
	Header http.Header
	Body   string // first bytes of the body, for DRM/error-page heuristics
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d %s", e.Code, http.StatusText(e.Code))
}

// Unwrap maps well-known status codes to sentinel errors.
func (e *StatusError) Unwrap() error {
	switch e.Code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAccessDenied
	case http.StatusNotFound, http.StatusGone:
		return ErrNotFound
	default:
		return nil
	}
}

const errorBodyPeek = 2048

// Do sends a request built from method/url with the extra headers applied
// per request. The client is borrowed: neither its jar nor its default
// headers are modified. Non-2xx responses are closed and returned as *StatusError.
func Do(ctx context.Context, client *http.Client, method, url string, header http.Header) (*http.Response, error) {
	if client == nil {
		return nil, ErrNoClient
	}
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		peek, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyPeek))
		return nil, &StatusError{
			Code:   resp.StatusCode,
			URL:    url,
			Header: resp.Header.Clone(),
			Body:   string(peek),
		}
	}
	return resp, nil
}

// Fetch performs a GET bounded by timeout and returns the whole body along
// with the final URL after redirects.
func Fetch(ctx context.Context, client *http.Client, url string, header http.Header, timeout time.Duration) ([]byte, string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	resp, err := Do(ctx, client, http.MethodGet, url, header)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	final := url
	if resp.Request != nil && resp.Request.URL != nil {
		final = resp.Request.URL.String()
	}
	return body, final, nil
}

// IsTimeout reports whether err stems from a deadline or a network timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}
