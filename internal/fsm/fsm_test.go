// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

func TestMachine_FireAndObserve(t *testing.T) {
	trs := []Transition[state, event]{
		{From: "idle", Event: "start", To: "running"},
		{From: "running", Event: "stop", To: "stopped"},
	}
	m, err := New[state, event]("idle", trs)
	require.NoError(t, err)

	var seen []string
	m.Observe(func(from, to state, ev event) {
		seen = append(seen, string(from)+">"+string(to))
	})

	assert.True(t, m.Can("start"))
	assert.False(t, m.Can("stop"))

	to, err := m.Fire(context.Background(), "start")
	require.NoError(t, err)
	assert.Equal(t, state("running"), to)

	_, err = m.Fire(context.Background(), "start")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = m.Fire(context.Background(), "stop")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle>running", "running>stopped"}, seen)
}

func TestMachine_DuplicateTransition(t *testing.T) {
	_, err := New[state, event]("a", []Transition[state, event]{
		{From: "a", Event: "x", To: "b"},
		{From: "a", Event: "x", To: "c"},
	})
	assert.Error(t, err)
}

func TestMachine_GuardRejects(t *testing.T) {
	boom := errors.New("nope")
	m, err := New[state, event]("a", []Transition[state, event]{{
		From: "a", Event: "x", To: "b",
		Guard: func(context.Context, state, event) error { return boom },
	}})
	require.NoError(t, err)

	cur, err := m.Fire(context.Background(), "x")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, state("a"), cur)
	assert.Equal(t, state("a"), m.State())
}

func TestFromAll(t *testing.T) {
	trs := FromAll[state, event]([]state{"a", "b"}, "fail", "failed")
	require.Len(t, trs, 2)
	assert.Equal(t, state("b"), trs[1].From)
	assert.Equal(t, state("failed"), trs[1].To)
}
