// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg supervises an external ffmpeg process that pulls an HLS
// playlist and writes a normalised transport stream.
package ffmpeg

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/streamrec/internal/procgroup"
)

const diagnosticLines = 100

// Runner starts ffmpeg processes.
type Runner struct {
	Bin    string
	Logger zerolog.Logger
}

func NewRunner(bin string, logger zerolog.Logger) *Runner {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Runner{Bin: bin, Logger: logger}
}

// Start launches ffmpeg for spec. The process runs in its own process group
// and outlives no caller: Stop or a natural exit always reaps it.
func (r *Runner) Start(spec Spec) (*Handle, error) {
	args := Args(spec)
	// #nosec G204 - binary comes from config; args are built here
	cmd := exec.Command(r.Bin, args...)
	procgroup.Set(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stderr: %w", err)
	}
	r.Logger.Info().Str("cmd", Masked(r.Bin, args)).Msg("starting ffmpeg")
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("exec start: %w", err)
	}

	h := &Handle{
		cmd:  cmd,
		done: make(chan struct{}),
		ring: NewRingBuffer(diagnosticLines),
	}
	go h.monitor(stderr)
	return h, nil
}

// Handle is one running ffmpeg process.
type Handle struct {
	cmd  *exec.Cmd
	done chan struct{}
	ring *RingBuffer

	err      error
	stopOnce sync.Once
	stopErr  error
}

// Done is closed once the process has exited and stderr is drained.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err is the wait error; valid after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// ExitCode is the process exit status, or -1 while running or when killed
// by a signal.
func (h *Handle) ExitCode() int {
	if !h.Exited() {
		return -1
	}
	var exitErr *exec.ExitError
	if errors.As(h.err, &exitErr) {
		return exitErr.ExitCode()
	}
	if h.err != nil {
		return -1
	}
	return 0
}

// Diagnostics returns the retained stderr tail.
func (h *Handle) Diagnostics() []string { return h.ring.Lines() }

// Stop sends SIGTERM to the process group and SIGKILL after grace.
func (h *Handle) Stop(grace time.Duration) error {
	h.stopOnce.Do(func() {
		if h.Exited() {
			h.stopErr = h.err
			return
		}
		waitCh := make(chan error, 1)
		go func() {
			<-h.done
			waitCh <- h.err
		}()
		h.stopErr = procgroup.Terminate(h.cmd, waitCh, grace)
	})
	return h.stopErr
}

func (h *Handle) monitor(stderr io.Reader) {
	defer close(h.done)
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		h.ring.Add(scanner.Text())
	}
	h.err = h.cmd.Wait()
}
