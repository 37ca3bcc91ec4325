// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ytdlp

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrProbeFailed       = errors.New("metadata probe failed")
	ErrEmptyOutput       = fmt.Errorf("%w: empty output", ErrProbeFailed)
	ErrMalformedMetadata = fmt.Errorf("%w: malformed metadata", ErrProbeFailed)
	ErrAcquisitionFailed = errors.New("acquisition failed")
)

// ProbeError is a probe that exited non-zero.
type ProbeError struct {
	ExitCode int
	Stderr   string
}

func (e *ProbeError) Error() string {
	msg := fmt.Sprintf("%s: exit code %d", ErrProbeFailed, e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ProbeError) Is(target error) bool { return target == ErrProbeFailed }

// AcquisitionError describes a stream fetch that did not produce a usable file.
type AcquisitionError struct {
	FormatID string
	ExitCode int
	Attempts int
	Reason   string
	Stderr   []string
	// Interrupted is set when the process was terminated by its owner.
	Interrupted bool
}

func (e *AcquisitionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: format %s", ErrAcquisitionFailed, e.FormatID)
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit code %d)", e.ExitCode)
	}
	if n := len(e.Stderr); n > 0 {
		b.WriteString(": " + e.Stderr[n-1])
	}
	return b.String()
}

func (e *AcquisitionError) Is(target error) bool { return target == ErrAcquisitionFailed }
