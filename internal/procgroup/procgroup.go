// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procgroup spawns external tools as process group leaders and
// tears whole groups down with a SIGTERM, grace, SIGKILL sequence.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
)

var (
	ErrKillFailed = errors.New("process did not exit after SIGKILL")
)

// DefaultKillTimeout bounds the wait after SIGKILL.
const DefaultKillTimeout = 5 * time.Second

// Terminate stops the process group of cmd. It sends SIGTERM, waits up to
// grace for done to close, then sends SIGKILL and waits up to
// DefaultKillTimeout. done must be closed by whoever owns cmd.Wait.
// Safe to call on nil or unstarted commands.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pid := cmd.Process.Pid
	logger := log.WithComponent("procgroup")

	signal(cmd, syscall.SIGTERM)

	select {
	case <-done:
		metrics.IncProcWait("graceful")
		return nil
	case <-time.After(grace):
	}

	logger.Warn().Int(log.FieldPID, pid).Dur("grace", grace).Msg("SIGTERM grace period exceeded, sending SIGKILL to process group")
	signal(cmd, syscall.SIGKILL)

	select {
	case <-done:
		metrics.IncProcWait("forced")
		return nil
	case <-time.After(DefaultKillTimeout):
		metrics.IncProcWait("stuck")
		return ErrKillFailed
	}
}

func signal(cmd *exec.Cmd, sig syscall.Signal) {
	name := "SIGTERM"
	if sig == syscall.SIGKILL {
		name = "SIGKILL"
	}
	err := Kill(cmd, sig)
	switch {
	case err == nil:
		metrics.IncProcTerminate(name, "sent")
	case errors.Is(err, syscall.ESRCH):
		metrics.IncProcTerminate(name, "esrch")
	default:
		metrics.IncProcTerminate(name, "error")
		logger := log.WithComponent("procgroup")
		logger.Debug().Err(err).Int(log.FieldPID, cmd.Process.Pid).Str("signal", name).Msg("signal delivery failed")
	}
}
