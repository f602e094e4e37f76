// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procgroup

import (
	"os/exec"
	"time"

	xglog "github.com/ManuGH/streamrec/internal/log"
	"github.com/ManuGH/streamrec/internal/metrics"
)

// Terminate asks the group to exit and escalates to Forced after grace.
// waitCh must deliver the result of cmd.Wait; Terminate always drains it and
// returns that result.
func Terminate(cmd *exec.Cmd, waitCh <-chan error, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	logger := xglog.WithComponent("procgroup").With().Int("pid", cmd.Process.Pid).Logger()

	send(cmd, Graceful)
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case err := <-waitCh:
		metrics.IncProcWait(waitResult("", err))
		return err
	case <-timer.C:
	}

	logger.Warn().Dur("grace", grace).Msg("process group ignored SIGTERM, killing")
	send(cmd, Forced)
	err := <-waitCh
	metrics.IncProcWait(waitResult("forced_", err))
	return err
}

func send(cmd *exec.Cmd, s Signal) {
	result := "sent"
	if err := Send(cmd, s); err != nil {
		result = "error"
		logger := xglog.WithComponent("procgroup")
		logger.Debug().Err(err).Str("signal", s.String()).Msg("signal delivery failed")
	}
	metrics.IncProcTerminate(s.String(), result)
}

func waitResult(prefix string, err error) string {
	if err == nil {
		return prefix + "exit0"
	}
	return prefix + "exit_nonzero"
}
