// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ffmpeg muxes separately acquired video and audio into one
// container with stream copy.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/log"
)

const toolName = "ffmpeg"

var ErrMergeFailed = errors.New("merge failed")

// MergeError is returned when both the plain copy and the explicitly
// mapped copy failed.
type MergeError struct {
	ExitCode    int
	Stderr      []string
	Interrupted bool
}

func (e *MergeError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", ErrMergeFailed, e.ExitCode)
	if n := len(e.Stderr); n > 0 {
		msg += ": " + e.Stderr[n-1]
	}
	return msg
}

func (e *MergeError) Is(target error) bool { return target == ErrMergeFailed }

// MergeRequest names the two inputs and the output file.
type MergeRequest struct {
	Video   string
	Audio   string
	Output  string
	Tracker procio.Tracker
}

// Merger runs ffmpeg.
type Merger struct {
	Bin string
}

// NewMerger returns a Merger for the given binary.
func NewMerger(bin string) *Merger {
	if bin == "" {
		bin = "ffmpeg"
	}
	return &Merger{Bin: bin}
}

// CopyArgs builds a stream-copy mux. With mapped set, the first video track
// of input 0 and the first audio track of input 1 are selected explicitly.
func CopyArgs(video, audio, output string, mapped bool) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", "error",
		"-i", video,
		"-i", audio,
	}
	if mapped {
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
	}
	return append(args,
		"-c:v", "copy",
		"-c:a", "copy",
		"-y", output,
	)
}

// OutputExt picks a container able to hold both inputs without re-encoding.
func OutputExt(videoExt, audioExt string) string {
	v, a := strings.ToLower(videoExt), strings.ToLower(audioExt)
	switch {
	case v == "mp4" && (a == "m4a" || a == "mp4"):
		return "mp4"
	case v == "webm" && a == "webm":
		return "webm"
	}
	return "mkv"
}

// Merge muxes req.Video and req.Audio into req.Output. If the plain copy
// fails it retries once with explicit stream mapping. The output must exist
// and be non-empty.
func (m *Merger) Merge(ctx context.Context, req MergeRequest) error {
	logger := log.WithContext(ctx, log.WithComponent("ffmpeg"))

	var last *MergeError
	for _, mapped := range []bool{false, true} {
		res, err := procio.Run(ctx, procio.Command{
			Tool:    toolName,
			Bin:     m.Bin,
			Args:    CopyArgs(req.Video, req.Audio, req.Output, mapped),
			Tracker: req.Tracker,
		})
		if err != nil {
			return &MergeError{ExitCode: -1, Stderr: []string{err.Error()}, Interrupted: res.Terminated}
		}
		last = &MergeError{ExitCode: res.ExitCode, Stderr: res.Stderr, Interrupted: res.Terminated}
		if res.Terminated {
			return last
		}
		if res.ExitCode == 0 {
			if info, statErr := os.Stat(req.Output); statErr == nil && info.Size() > 0 {
				logger.Info().Bool("mapped", mapped).Dur("duration", res.Duration).Str(log.FieldPath, req.Output).Msg("streams merged")
				return nil
			}
			last.Stderr = append(last.Stderr, "output missing or empty")
		}
		logger.Warn().Bool("mapped", mapped).Int(log.FieldExitCode, res.ExitCode).Strs("stderr", res.Stderr).Msg("merge attempt failed")
		if err := os.Remove(req.Output); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn().Err(err).Str(log.FieldPath, req.Output).Msg("failed to remove partial merge output")
		}
	}
	return last
}
