// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package procio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/procgroup"
)

// DefaultGrace is the SIGTERM grace period used when a tracked process
// is rejected at attach time or the context is cancelled.
const DefaultGrace = 3 * time.Second

// Command describes one external tool invocation.
type Command struct {
	Tool string // metrics/log label, e.g. "yt-dlp"
	Bin  string
	Args []string
	Dir  string

	// Stdout receives raw stdout when OnStdoutLine is nil.
	Stdout io.Writer
	// OnStdoutLine receives stdout split on CR/LF.
	OnStdoutLine func(string)
	// OnStderrLine receives stderr lines; the tail is kept in Result.Stderr either way.
	OnStderrLine func(string)

	Tracker Tracker
	// StderrLines bounds the retained stderr tail. Zero means 64.
	StderrLines int
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode   int
	Stderr     []string
	Duration   time.Duration
	Terminated bool // Terminate was called on the handle
}

// Run starts the command, drains stdout and stderr on two goroutines, joins
// both and only then reaps the process. The returned error covers failures
// to spawn or attach; a non-zero exit is reported through Result.ExitCode.
func Run(ctx context.Context, c Command) (Result, error) {
	logger := log.WithContext(ctx, log.WithComponent("procio"))

	cmd := exec.CommandContext(ctx, c.Bin, c.Args...) // #nosec G204 -- binary and args come from config and selection
	cmd.Dir = c.Dir
	procgroup.Set(cmd)
	cmd.Cancel = func() error { return procgroup.Kill(cmd, syscall.SIGKILL) }

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("stderr pipe: %w", err)
	}

	tail := c.StderrLines
	if tail <= 0 {
		tail = 64
	}
	ring := NewLineRing(tail)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		metrics.IncProcStart(c.Tool, "error")
		return Result{}, fmt.Errorf("start %s: %w", c.Tool, err)
	}
	metrics.IncProcStart(c.Tool, "ok")
	h := newHandle(cmd)
	logger.Debug().Str(log.FieldTool, c.Tool).Int(log.FieldPID, h.Pid()).Strs("args", c.Args).Msg("process started")

	var attachErr error
	if c.Tracker != nil {
		if attachErr = c.Tracker.Attach(h); attachErr != nil {
			go func() { _ = h.Terminate(DefaultGrace) }()
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		if c.OnStdoutLine != nil {
			return EachLine(stdout, c.OnStdoutLine)
		}
		dst := c.Stdout
		if dst == nil {
			dst = io.Discard
		}
		_, err := io.Copy(dst, stdout)
		return err
	})
	g.Go(func() error {
		return EachLine(stderr, func(line string) {
			ring.Add(line)
			if c.OnStderrLine != nil {
				c.OnStderrLine(line)
			}
		})
	})
	drainErr := g.Wait()

	waitErr := cmd.Wait()
	close(h.done)
	if c.Tracker != nil && attachErr == nil {
		c.Tracker.Detach(h)
	}

	res := Result{
		ExitCode:   exitCode(waitErr),
		Stderr:     ring.LastN(tail),
		Duration:   time.Since(start),
		Terminated: h.terminated.Load() || ctx.Err() != nil,
	}

	switch {
	case res.Terminated:
		metrics.IncProcExit(c.Tool, "interrupted")
	case res.ExitCode != 0:
		metrics.IncProcExit(c.Tool, "nonzero")
	default:
		metrics.IncProcExit(c.Tool, "ok")
	}
	if drainErr != nil {
		logger.Warn().Err(drainErr).Str(log.FieldTool, c.Tool).Msg("output drain ended early")
	}
	logger.Debug().
		Str(log.FieldTool, c.Tool).
		Int(log.FieldExitCode, res.ExitCode).
		Dur("duration", res.Duration).
		Bool("terminated", res.Terminated).
		Msg("process exited")

	if attachErr != nil {
		return res, attachErr
	}
	return res, nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return code
		}
	}
	return -1
}
