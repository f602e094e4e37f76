// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package recorder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/streamrec/internal/drm"
	"github.com/ManuGH/streamrec/internal/events"
	"github.com/ManuGH/streamrec/internal/fsm"
	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
	"github.com/ManuGH/streamrec/internal/platform/httpx"
	"github.com/ManuGH/streamrec/internal/telemetry"
)

type event string

const (
	evStart    event = "start"
	evLaunched event = "launched"
	evStop     event = "stop"
	evDrain    event = "drain"
	evExit     event = "exit"
	evFail     event = "fail"
	evDetach   event = "detach"
)

func newMachine() *fsm.Machine[State, event] {
	transitions := []fsm.Transition[State, event]{
		{From: StateIdle, Event: evStart, To: StateStarting},
		{From: StateStarting, Event: evLaunched, To: StateRunning},
		{From: StateRunning, Event: evStop, To: StateStopping},
		{From: StateRunning, Event: evDrain, To: StateStopping},
		{From: StateStopping, Event: evExit, To: StateStopped},
		{From: StateStopping, Event: evDetach, To: StateDetached},
	}
	transitions = append(transitions,
		fsm.FromAll([]State{StateStarting, StateRunning, StateStopping}, evFail, StateFailed)...)
	m, err := fsm.New(StateIdle, transitions)
	if err != nil {
		panic(err)
	}
	return m
}

// Recorder runs one Strategy once. It guarantees at most one readiness
// event and exactly one termination event per started run, the former
// always before the latter.
type Recorder struct {
	strategy Strategy
	bc       events.Broadcaster
	opts     Options
	machine  *fsm.Machine[State, event]
	done     chan struct{}

	stopRequested atomic.Bool

	mu        sync.Mutex
	run       *Run
	cancel    context.CancelFunc
	logger    zerolog.Logger
	readySent bool
	stopSent  bool
}

// New wraps strategy. bc receives the run's notifications and must not
// call back into the Recorder.
func New(strategy Strategy, bc events.Broadcaster, opts Options) *Recorder {
	r := &Recorder{
		strategy: strategy,
		bc:       bc,
		opts:     opts.withDefaults(),
		machine:  newMachine(),
		done:     make(chan struct{}),
		logger:   xglog.WithComponent("recorder"),
	}
	kind := string(strategy.Kind())
	r.machine.Observe(func(from, to State, ev event) {
		metrics.RecorderStateTransitions.WithLabelValues(string(to)).Inc()
		r.log().Debug().
			Str(xglog.FieldOldState, string(from)).
			Str(xglog.FieldNewState, string(to)).
			Str(xglog.FieldEvent, string(ev)).
			Str(xglog.FieldRecorder, kind).
			Msg("recorder state")
	})
	return r
}

func (r *Recorder) Kind() Kind { return r.strategy.Kind() }

func (r *Recorder) State() State { return r.machine.State() }

// Done is closed when the worker has exited.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// RunID is empty before Start.
func (r *Recorder) RunID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return ""
	}
	return r.run.ID
}

// StartedAt is the zero time before Start.
func (r *Recorder) StartedAt() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.run == nil {
		return time.Time{}
	}
	return r.run.Started
}

func (r *Recorder) log() *zerolog.Logger {
	r.mu.Lock()
	defer r.mu.Unlock()
	l := r.logger
	return &l
}

// Start launches the worker and returns once the recorder is Running. A
// Recorder is single-use: any call after the first fails with
// ErrAlreadyRunning.
func (r *Recorder) Start(result ResolveResult) error {
	if err := result.Validate(); err != nil {
		return err
	}
	if result.Kind != r.strategy.Kind() {
		return fmt.Errorf("%w: %s recorder cannot run %s", ErrUnknownKind, r.strategy.Kind(), result.Kind)
	}
	if _, err := r.machine.Fire(context.Background(), evStart); err != nil {
		return fmt.Errorf("%w: state %s", ErrAlreadyRunning, r.State())
	}

	if result.Buffering == 0 {
		result.Buffering = r.opts.Buffering
	}
	client := result.Client
	if client == nil {
		client = r.opts.Client
	}
	if client == nil {
		client = httpx.NewStreamingClient()
	}

	id := uuid.New().String()
	kind := string(result.Kind)
	logger := xglog.WithComponent("recorder").With().
		Str(xglog.FieldRecorder, kind).
		Str(xglog.FieldRunID, id).
		Logger()
	ctx, cancel := context.WithCancel(xglog.ContextWithRecorder(xglog.ContextWithRunID(context.Background(), id), kind))

	run := &Run{
		ID:      id,
		Result:  result,
		Options: r.opts,
		Client:  client,
		Logger:  logger,
		Started: time.Now(),
		ready:   r.emitReady,
	}
	r.mu.Lock()
	r.run = run
	r.cancel = cancel
	r.logger = logger
	r.mu.Unlock()

	if err := prepareOutput(result); err != nil {
		cancel()
		r.finish(err)
		close(r.done)
		return err
	}

	logger.Info().Str(xglog.FieldURL, xglog.MaskURL(result.URL)).Str(xglog.FieldPath, result.OutputDir).Msg("recorder starting")
	if _, err := r.machine.Fire(ctx, evLaunched); err != nil {
		cancel()
		r.finish(err)
		close(r.done)
		return err
	}
	metrics.SetActive(kind, true)
	go r.work(ctx)
	return nil
}

// prepareOutput creates the output directory and removes stale stream*
// files of an earlier run.
func prepareOutput(result ResolveResult) error {
	if err := os.MkdirAll(result.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if !result.CleanupStale {
		return nil
	}
	stale, err := filepath.Glob(filepath.Join(result.OutputDir, "stream*"))
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := os.RemoveAll(p); err != nil {
			return fmt.Errorf("remove stale output: %w", err)
		}
	}
	return nil
}

func (r *Recorder) work(ctx context.Context) {
	defer close(r.done)

	kind := string(r.strategy.Kind())
	ctx, span := telemetry.StartRun(ctx, kind, r.RunID())
	defer span.End()

	err := r.record(ctx)
	ev := r.finish(err)
	span.SetAttributes(attribute.String(telemetry.RecorderReason, string(ev.Reason)))
	if ev.Failed() {
		telemetry.RecordError(span, err, string(ev.ErrorClass))
	}
}

// record runs the strategy and turns a panic into an error.
func (r *Recorder) record(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			r.log().Error().Str("stack", string(debug.Stack())).Interface("panic", p).Msg("recorder worker panicked")
			err = fmt.Errorf("%w: %v", ErrWorkerPanic, p)
		}
	}()
	r.mu.Lock()
	run := r.run
	r.mu.Unlock()
	return r.strategy.Record(ctx, run)
}

// finish derives the termination event from the worker result, sends it
// once and settles the state machine.
func (r *Recorder) finish(err error) events.StopEvent {
	ev := events.StopEvent{Reason: events.ReasonCompleted}
	switch {
	case r.stopRequested.Load() && !drm.IsProtected(err):
		ev.Reason = events.ReasonUserStopped
	case err != nil:
		ev.Reason = events.ReasonError
		ev.ErrorClass = Classify(err)
		ev.Message = err.Error()
	}

	logger := r.log()
	if ev.Failed() {
		logger.Error().Err(err).Str(xglog.FieldErrorClass, string(ev.ErrorClass)).Msg("recorder failed")
	} else {
		logger.Info().Str("reason", string(ev.Reason)).Msg("recorder finished")
	}

	r.emitStop(ev)

	ctx := context.Background()
	if ev.Failed() {
		_, _ = r.machine.Fire(ctx, evFail)
	} else {
		_, _ = r.machine.Fire(ctx, evDrain)
		_, _ = r.machine.Fire(ctx, evExit)
	}
	metrics.SetActive(string(r.strategy.Kind()), false)
	return ev
}

func (r *Recorder) emitReady(ev events.ReadyEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.readySent || r.stopSent || r.run == nil {
		return
	}
	r.readySent = true
	ev.RunID = r.run.ID
	ev.Recorder = string(r.strategy.Kind())
	metrics.ObserveReadiness(ev.Recorder, r.run.Started)
	r.logger.Info().
		Str(xglog.FieldPath, ev.Path).
		Int(xglog.FieldSectionIndex, ev.SectionIndex).
		Int(xglog.FieldSegmentIndex, ev.SegmentIndex).
		Msg("recording ready for playback")
	if r.bc != nil {
		r.bc.Ready(ev)
	}
}

// emitStop sends ev unless a termination event was already sent.
func (r *Recorder) emitStop(ev events.StopEvent) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopSent {
		return false
	}
	r.stopSent = true
	if r.run != nil {
		ev.RunID = r.run.ID
	}
	ev.Recorder = string(r.strategy.Kind())
	outcome := string(ev.Reason)
	if ev.Failed() {
		outcome = string(ev.ErrorClass)
	}
	metrics.ObserveRun(ev.Recorder, outcome)
	if r.bc != nil {
		r.bc.Stopped(ev)
	}
	return true
}

// Stop cancels the run and waits up to the stop timeout for the worker. It
// returns false when the worker missed the deadline; the recorder is then
// Detached and its termination event has already been sent.
func (r *Recorder) Stop() bool {
	switch r.State() {
	case StateIdle:
		return true
	case StateDetached:
		select {
		case <-r.done:
			return true
		default:
			return false
		}
	}

	r.stopRequested.Store(true)
	_, _ = r.machine.Fire(context.Background(), evStop)
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	timer := time.NewTimer(r.opts.StopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		return true
	case <-timer.C:
	}

	if _, err := r.machine.Fire(context.Background(), evDetach); err != nil && !errors.Is(err, fsm.ErrInvalidTransition) {
		r.log().Warn().Err(err).Msg("detach transition failed")
	}
	metrics.RecorderDetachedTotal.Inc()
	r.log().Warn().Dur("timeout", r.opts.StopTimeout).Msg("recorder worker did not exit in time, detaching")
	r.emitStop(events.StopEvent{Reason: events.ReasonUserStopped, Message: "worker did not exit within stop timeout"})
	metrics.SetActive(string(r.strategy.Kind()), false)
	return false
}
