// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build windows

package procgroup

import (
	"errors"
	"os"
	"os/exec"
)

func Set(*exec.Cmd) {}

// Send kills the process for Forced. Windows has no graceful console signal
// for a detached child, so Graceful is a no-op and Terminate escalates after
// the grace period.
func Send(cmd *exec.Cmd, s Signal) error {
	if cmd == nil || cmd.Process == nil || s != Forced {
		return nil
	}
	err := cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
