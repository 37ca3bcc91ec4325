// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ytdlp

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/log"
)

// FetchRequest describes the acquisition of one format into one file.
type FetchRequest struct {
	URL        string
	FormatID   string
	Output     string
	CookieFile string
	// OnProgress receives the tool's percentage for the current file.
	OnProgress func(pct float64)
	Tracker    procio.Tracker
	// Halt is closed when the owning job is paused, cancelled or removed.
	// No further attempt starts after that.
	Halt <-chan struct{}
}

// Fetcher downloads single formats with yt-dlp.
type Fetcher struct {
	Bin string
	// Retries is passed to yt-dlp for transient network errors.
	Retries int
	// Attempts bounds whole-process restarts after a failed exit.
	Attempts int
	Backoff  time.Duration
}

// NewFetcher returns a Fetcher with the given limits.
func NewFetcher(bin string, retries, attempts int) *Fetcher {
	if bin == "" {
		bin = "yt-dlp"
	}
	if retries < 0 {
		retries = 0
	}
	if attempts < 1 {
		attempts = 1
	}
	return &Fetcher{Bin: bin, Retries: retries, Attempts: attempts, Backoff: 2 * time.Second}
}

// FetchArgs returns the argument list for a single-format fetch. --continue
// resumes any partial file already at output.
func FetchArgs(req FetchRequest, retries int) []string {
	args := []string{
		"-f", req.FormatID,
		"--no-playlist",
		"-o", req.Output,
		"--no-overwrites",
		"--continue",
		"--retries", strconv.Itoa(retries),
		"--newline",
	}
	if req.CookieFile != "" {
		args = append(args, "--cookies", req.CookieFile)
	}
	return append(args, "--", req.URL)
}

// Fetch runs yt-dlp until the output file exists and is non-empty with a
// zero exit code, or the attempt budget is exhausted. A terminated process
// is not retried.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) error {
	logger := log.WithContext(ctx, log.WithComponent("ytdlp"))

	attempts := f.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var last *AcquisitionError
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := procio.Run(ctx, procio.Command{
			Tool: toolName,
			Bin:  f.Bin,
			Args: FetchArgs(req, f.Retries),
			OnStdoutLine: func(line string) {
				if pct, ok := ParseProgress(line); ok && req.OnProgress != nil {
					req.OnProgress(pct)
				}
			},
			Tracker: req.Tracker,
		})
		if err != nil {
			if res.Terminated {
				return &AcquisitionError{FormatID: req.FormatID, Attempts: attempt, Reason: err.Error(), Interrupted: true}
			}
			return &AcquisitionError{FormatID: req.FormatID, Attempts: attempt, Reason: err.Error()}
		}

		last = &AcquisitionError{
			FormatID:    req.FormatID,
			ExitCode:    res.ExitCode,
			Attempts:    attempt,
			Stderr:      res.Stderr,
			Interrupted: res.Terminated,
		}
		if res.Terminated {
			last.Reason = "process terminated"
			return last
		}

		if res.ExitCode != 0 {
			last.Reason = "non-zero exit"
		} else if reason := checkOutput(req.Output); reason != "" {
			last.Reason = reason
		} else {
			logger.Info().
				Str("format", req.FormatID).
				Int(log.FieldAttempt, attempt).
				Dur("duration", res.Duration).
				Msg("stream acquired")
			return nil
		}

		logger.Warn().
			Str("format", req.FormatID).
			Int(log.FieldAttempt, attempt).
			Int(log.FieldExitCode, res.ExitCode).
			Str("reason", last.Reason).
			Msg("acquisition attempt failed")

		if attempt < attempts {
			select {
			case <-ctx.Done():
				last.Interrupted = true
				return last
			case <-req.Halt:
				last.Interrupted = true
				return last
			case <-time.After(f.Backoff * time.Duration(attempt)):
			}
		}
	}
	return last
}

// checkOutput returns a failure reason, or "" when path is a non-empty file.
// Zero-byte output is removed.
func checkOutput(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "output file missing"
		}
		return fmt.Sprintf("stat output: %v", err)
	}
	if info.Size() == 0 {
		if err := os.Remove(path); err != nil {
			logger := log.WithComponent("ytdlp")
			logger.Warn().Err(err).Str(log.FieldPath, path).Msg("failed to remove zero-byte output")
		}
		return "output file is empty"
	}
	return ""
}
