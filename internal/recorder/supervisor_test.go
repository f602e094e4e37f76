// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/streamrec/internal/events"
)

func fakeFactory(kind Kind) (Strategy, error) {
	return &fakeStrategy{kind: kind, body: untilStopped}, nil
}

func TestSupervisor_StartStopsPreviousRunFirst(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	bc := newCollector()
	s := NewSupervisor(fakeFactory, bc, testOptions())
	assert.Equal(t, StateIdle, s.Status().State)

	require.NoError(t, s.Start(testResult(t, KindHLSContinuous)))
	first := s.Status()
	assert.Equal(t, StateRunning, first.State)
	assert.Equal(t, KindHLSContinuous, first.Kind)
	bc.waitReady(t, time.Second)

	require.NoError(t, s.Start(testResult(t, KindDirect)))
	second := s.Status()
	assert.Equal(t, StateRunning, second.State)
	assert.Equal(t, KindDirect, second.Kind)
	assert.NotEqual(t, first.RunID, second.RunID)
	bc.waitReady(t, time.Second)

	got := bc.snapshot()
	require.Len(t, got, 3)
	require.NotNil(t, got[1].Stop, "previous run terminates before the new run is ready")
	assert.Equal(t, first.RunID, got[1].Stop.RunID)
	assert.Equal(t, events.ReasonUserStopped, got[1].Stop.Reason)
	require.NotNil(t, got[2].Ready)
	assert.Equal(t, second.RunID, got[2].Ready.RunID)

	assert.True(t, s.Stop())
	assert.Equal(t, StateStopped, s.Status().State)
	assert.Equal(t, 2, bc.stopCount())
}

func TestSupervisor_StopWhenIdle(t *testing.T) {
	s := NewSupervisor(fakeFactory, newCollector(), testOptions())
	assert.True(t, s.Stop())
	assert.Nil(t, s.Done())
}

func TestSupervisor_StatusMasksURL(t *testing.T) {
	defer goleak.VerifyNone(t, leakOptions...)

	s := NewSupervisor(fakeFactory, newCollector(), testOptions())
	res := testResult(t, KindDirect)
	res.URL = "https://user:pw@cdn.example.com/v.mp4?token=secret"
	require.NoError(t, s.Start(res))
	st := s.Status()
	assert.NotContains(t, st.URL, "secret")
	assert.NotContains(t, st.URL, "pw")
	assert.False(t, st.StartedAt.IsZero())
	assert.True(t, s.Stop())
}

func TestSupervisor_UnknownKind(t *testing.T) {
	s := NewSupervisor(nil, newCollector(), testOptions())
	res := testResult(t, Kind("dash"))
	assert.ErrorIs(t, s.Start(res), ErrUnknownKind)
	assert.Equal(t, StateIdle, s.Status().State)
}
