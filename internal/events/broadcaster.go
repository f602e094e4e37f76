// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"time"

	"github.com/ManuGH/streamrec/internal/log"
)

// Broadcaster receives recorder notifications. Implementations must not
// block indefinitely: recorder workers call it on their exit path.
type Broadcaster interface {
	Ready(ReadyEvent)
	Stopped(StopEvent)
}

const defaultPublishTimeout = 2 * time.Second

// BusBroadcaster publishes notifications on a Bus.
type BusBroadcaster struct {
	Bus     Bus
	Timeout time.Duration
}

func NewBusBroadcaster(b Bus) *BusBroadcaster {
	return &BusBroadcaster{Bus: b, Timeout: defaultPublishTimeout}
}

func (b *BusBroadcaster) Ready(ev ReadyEvent) { b.publish(TopicReady, ev) }

func (b *BusBroadcaster) Stopped(ev StopEvent) { b.publish(TopicStop, ev) }

func (b *BusBroadcaster) publish(topic string, msg Message) {
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := b.Bus.Publish(ctx, topic, msg); err != nil {
		logger := log.WithComponent("events")
		logger.Error().Err(err).Str("topic", topic).Msg("broadcast failed")
	}
}

// Func adapts two callbacks to a Broadcaster. Nil callbacks are ignored.
type Func struct {
	OnReady func(ReadyEvent)
	OnStop  func(StopEvent)
}

func (f Func) Ready(ev ReadyEvent) {
	if f.OnReady != nil {
		f.OnReady(ev)
	}
}

func (f Func) Stopped(ev StopEvent) {
	if f.OnStop != nil {
		f.OnStop(ev)
	}
}
