// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Status is the lifecycle state of a download job.
type Status string

const (
	StatusAnalyzing           Status = "analyzing"
	StatusDownloadingCombined Status = "downloading_combined"
	StatusDownloadingVideo    Status = "downloading_video"
	StatusDownloadingAudio    Status = "downloading_audio"
	StatusMerging             Status = "merging"
	StatusPaused              Status = "paused"
	StatusCompleted           Status = "completed"
	StatusError               Status = "error"
	StatusCancelled           Status = "cancelled"
)

// IsTerminal reports whether the job will never change again.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// IsDownloading reports whether an acquisition process may be running.
func (s Status) IsDownloading() bool {
	switch s {
	case StatusDownloadingCombined, StatusDownloadingVideo, StatusDownloadingAudio:
		return true
	}
	return false
}

// IsActive reports whether the orchestrator is still driving the job.
// Paused jobs are neither active nor terminal.
func (s Status) IsActive() bool {
	switch s {
	case StatusAnalyzing, StatusMerging:
		return true
	}
	return s.IsDownloading()
}

// ProgressRange returns the overall percentage window reserved for the stage.
func (s Status) ProgressRange() (lo, hi float64) {
	switch s {
	case StatusAnalyzing:
		return 0, 10
	case StatusDownloadingCombined:
		return 10, 90
	case StatusDownloadingVideo:
		return 10, 60
	case StatusDownloadingAudio:
		return 60, 90
	case StatusMerging:
		return 90, 100
	case StatusCompleted:
		return 100, 100
	}
	// paused, error, cancelled freeze wherever the job stopped
	return 0, 100
}

// Pausable reports whether pause is accepted in this state.
func (s Status) Pausable() bool { return s.IsDownloading() }

// Cancellable reports whether cancel is accepted in this state.
func (s Status) Cancellable() bool { return s.IsActive() || s == StatusPaused }
