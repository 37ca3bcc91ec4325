// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package procio runs external tools with both output pipes drained
// concurrently and exposes the running process as a terminable handle.
package procio

import (
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/ManuGH/xgrab/internal/procgroup"
)

// Process is a live external process owned by a job.
type Process interface {
	Pid() int
	// Terminate stops the process group: SIGTERM, grace, SIGKILL.
	Terminate(grace time.Duration) error
	// Done is closed once the process has been reaped.
	Done() <-chan struct{}
}

// Tracker receives process ownership. Attach returns an error when the
// owner no longer wants a process (for example the job was paused while
// the tool was starting); the caller must then terminate it.
type Tracker interface {
	Attach(p Process) error
	Detach(p Process)
}

type handle struct {
	cmd        *exec.Cmd
	done       chan struct{}
	terminated atomic.Bool
}

func newHandle(cmd *exec.Cmd) *handle {
	return &handle{cmd: cmd, done: make(chan struct{})}
}

func (h *handle) Pid() int {
	if h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

func (h *handle) Terminate(grace time.Duration) error {
	h.terminated.Store(true)
	return procgroup.Terminate(h.cmd, h.done, grace)
}

func (h *handle) Done() <-chan struct{} { return h.done }
