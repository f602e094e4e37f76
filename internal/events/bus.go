// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events carries recorder notifications (readiness, termination) to
// whoever drives the client-facing transport.
package events

import "context"

// Message is an opaque event payload; publishers send ReadyEvent or StopEvent.
type Message interface{}

type Subscriber interface {
	// C returns a read-only message channel. It is closed by Close.
	C() <-chan Message
	Close() error
}

// Bus is the in-process event transport.
type Bus interface {
	Publish(ctx context.Context, topic string, msg Message) error
	Subscribe(ctx context.Context, topic string) (Subscriber, error)
}
