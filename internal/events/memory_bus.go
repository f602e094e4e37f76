// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
)

const (
	defaultSubBuffer = 64
	// Only every n-th drop is logged; the counter carries the rest.
	dropLogEvery = 100
)

// MemoryBus fans messages out to per-topic subscriber queues. A subscriber
// receives messages in publish order. Publish blocks on a full queue until
// the publish context ends.
type MemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*memSub]struct{}
	buffer int
	drops  atomic.Uint64
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		topics: make(map[string]map[*memSub]struct{}),
		buffer: defaultSubBuffer,
	}
}

func (b *MemoryBus) Publish(ctx context.Context, topic string, msg Message) error {
	if ctx == nil {
		return errors.New("events: nil publish context")
	}
	// The read lock is held across sends so Close cannot close a queue
	// mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		select {
		case sub.ch <- msg:
		case <-ctx.Done():
			b.recordDrop(topic, ctx.Err())
			return errors.Join(errors.New("events: publish "+topic), ctx.Err())
		}
	}
	metrics.IncBusPublished(topic)
	return nil
}

func (b *MemoryBus) recordDrop(topic string, cause error) {
	reason := "context_done"
	if errors.Is(cause, context.DeadlineExceeded) {
		reason = "timeout"
	} else if errors.Is(cause, context.Canceled) {
		reason = "canceled"
	}
	metrics.IncBusDropReason(topic, reason)

	if n := b.drops.Add(1); n%dropLogEvery == 1 {
		logger := xglog.WithComponent("events")
		logger.Warn().
			Str("topic", topic).
			Str("reason", reason).
			Uint64("drops_total", n).
			Msg("subscriber did not keep up, message dropped")
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, topic string) (Subscriber, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub := &memSub{bus: b, topic: topic, ch: make(chan Message, b.buffer)}

	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.topics[topic]
	if !ok {
		set = make(map[*memSub]struct{})
		b.topics[topic] = set
	}
	set[sub] = struct{}{}
	return sub, nil
}

func (b *MemoryBus) unsubscribe(sub *memSub) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if set := b.topics[sub.topic]; set != nil {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.topics, sub.topic)
		}
	}
	close(sub.ch)
}

type memSub struct {
	bus   *MemoryBus
	topic string
	ch    chan Message
	once  sync.Once
}

func (s *memSub) C() <-chan Message { return s.ch }

// Close detaches the subscription and closes its channel. Repeated calls
// are no-ops.
func (s *memSub) Close() error {
	s.once.Do(func() { s.bus.unsubscribe(s) })
	return nil
}

var _ Bus = (*MemoryBus)(nil)
