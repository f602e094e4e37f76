// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm implements the strict state table behind the recorder
// lifecycle. Every (state, event) pair must be declared up front.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned by Fire when the current state has no
// edge for the event.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition is one declared edge. Guard, when set, runs under the machine
// lock and must not call back into the machine.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
	Guard func(ctx context.Context, from S, event E) error
}

// Observer sees every applied edge. Observers run after the lock is released.
type Observer[S ~string, E ~string] func(from, to S, event E)

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

type Machine[S ~string, E ~string] struct {
	mu        sync.Mutex
	cur       S
	table     map[edge[S, E]]Transition[S, E]
	observers []Observer[S, E]
}

// New builds a machine in state initial. Declaring the same edge twice is
// an error.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	table := make(map[edge[S, E]]Transition[S, E], len(transitions))
	for _, tr := range transitions {
		k := edge[S, E]{from: tr.From, event: tr.Event}
		if prev, dup := table[k]; dup {
			return nil, fmt.Errorf("fsm: edge %s --%s--> declared twice (%s, %s)", tr.From, tr.Event, prev.To, tr.To)
		}
		table[k] = tr
	}
	return &Machine[S, E]{cur: initial, table: table}, nil
}

// FromAll declares the same event edge from several states.
func FromAll[S ~string, E ~string](from []S, event E, to S) []Transition[S, E] {
	edges := make([]Transition[S, E], len(from))
	for i, s := range from {
		edges[i] = Transition[S, E]{From: s, Event: event, To: to}
	}
	return edges
}

func (m *Machine[S, E]) Observe(fn Observer[S, E]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cur
}

// Can reports whether Fire(event) would find an edge right now.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.table[edge[S, E]{from: m.cur, event: event}]
	return ok
}

// Fire moves the machine along the edge for event and returns the new state.
// On error the state is unchanged and returned as is.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.cur
	tr, ok := m.table[edge[S, E]{from: from, event: event}]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, event, from)
	}
	if tr.Guard != nil {
		if err := tr.Guard(ctx, from, event); err != nil {
			m.mu.Unlock()
			return from, err
		}
	}
	m.cur = tr.To
	observers := make([]Observer[S, E], len(m.observers))
	copy(observers, m.observers)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(from, tr.To, event)
	}
	return tr.To, nil
}
