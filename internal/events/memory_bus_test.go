// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/streamrec/internal/metrics"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), TopicReady)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	ev := ReadyEvent{URL: "http://x/a.m3u8", Path: "/tmp/stream_0.ts", Recorder: "hls_finite"}
	require.NoError(t, b.Publish(context.Background(), TopicReady, ev))

	select {
	case got := <-sub.C():
		assert.Equal(t, ev, got)
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
	}
}

func TestMemoryBus_PublishWithoutSubscribers(t *testing.T) {
	b := NewMemoryBus()
	assert.NoError(t, b.Publish(context.Background(), TopicStop, StopEvent{}))
}

func TestMemoryBus_PublishDropsOnSlowSubscriber(t *testing.T) {
	b := NewMemoryBus()
	b.buffer = 1
	sub, err := b.Subscribe(context.Background(), TopicStop)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	require.NoError(t, b.Publish(context.Background(), TopicStop, StopEvent{Reason: ReasonCompleted}))

	before := testutil.ToFloat64(metrics.BusDropsTotal.WithLabelValues(TopicStop, "timeout"))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = b.Publish(ctx, TopicStop, StopEvent{Reason: ReasonError})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	after := testutil.ToFloat64(metrics.BusDropsTotal.WithLabelValues(TopicStop, "timeout"))
	assert.Equal(t, before+1, after)
}

func TestMemoryBus_CloseIsIdempotent(t *testing.T) {
	b := NewMemoryBus()
	sub, err := b.Subscribe(context.Background(), TopicReady)
	require.NoError(t, err)
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	_, ok := <-sub.C()
	assert.False(t, ok)
	assert.NoError(t, b.Publish(context.Background(), TopicReady, ReadyEvent{}))
}

func TestBusBroadcaster_RoutesByTopic(t *testing.T) {
	b := NewMemoryBus()
	ready, err := b.Subscribe(context.Background(), TopicReady)
	require.NoError(t, err)
	defer func() { _ = ready.Close() }()
	stop, err := b.Subscribe(context.Background(), TopicStop)
	require.NoError(t, err)
	defer func() { _ = stop.Close() }()

	bc := NewBusBroadcaster(b)
	bc.Ready(ReadyEvent{SegmentIndex: 4})
	bc.Stopped(StopEvent{Reason: ReasonError, ErrorClass: ClassDRMProtected})

	assert.Equal(t, ReadyEvent{SegmentIndex: 4}, <-ready.C())
	got := (<-stop.C()).(StopEvent)
	assert.True(t, got.Failed())
	assert.Equal(t, ClassDRMProtected, got.ErrorClass)
}

func TestBusBroadcaster_FullSubscriberDoesNotBlock(t *testing.T) {
	b := NewMemoryBus()
	b.buffer = 1
	sub, err := b.Subscribe(context.Background(), TopicStop)
	require.NoError(t, err)
	defer func() { _ = sub.Close() }()

	bc := &BusBroadcaster{Bus: b, Timeout: 10 * time.Millisecond}
	bc.Stopped(StopEvent{Reason: ReasonCompleted})

	before := testutil.ToFloat64(metrics.BusDropsTotal.WithLabelValues(TopicStop, "timeout"))
	start := time.Now()
	bc.Stopped(StopEvent{Reason: ReasonUserStopped})
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.BusDropsTotal.WithLabelValues(TopicStop, "timeout")))

	got := (<-sub.C()).(StopEvent)
	assert.Equal(t, ReasonCompleted, got.Reason)
}
