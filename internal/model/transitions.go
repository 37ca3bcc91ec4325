// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// Transition is a single allowed edge in the job state machine.
type Transition struct {
	From Status
	To   Status
}

var transitionsTable = []Transition{
	// Selection done
	{From: StatusAnalyzing, To: StatusDownloadingCombined},
	{From: StatusAnalyzing, To: StatusDownloadingVideo},

	// Separate-stream path
	{From: StatusDownloadingVideo, To: StatusDownloadingAudio},
	{From: StatusDownloadingAudio, To: StatusMerging},
	{From: StatusMerging, To: StatusCompleted},

	// Combined path
	{From: StatusDownloadingCombined, To: StatusCompleted},

	// Failures
	{From: StatusAnalyzing, To: StatusError},
	{From: StatusDownloadingCombined, To: StatusError},
	{From: StatusDownloadingVideo, To: StatusError},
	{From: StatusDownloadingAudio, To: StatusError},
	{From: StatusMerging, To: StatusError},

	// Operator intent
	{From: StatusDownloadingCombined, To: StatusPaused},
	{From: StatusDownloadingVideo, To: StatusPaused},
	{From: StatusDownloadingAudio, To: StatusPaused},

	{From: StatusAnalyzing, To: StatusCancelled},
	{From: StatusDownloadingCombined, To: StatusCancelled},
	{From: StatusDownloadingVideo, To: StatusCancelled},
	{From: StatusDownloadingAudio, To: StatusCancelled},
	{From: StatusMerging, To: StatusCancelled},
	{From: StatusPaused, To: StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.To == to {
			return true
		}
	}
	return false
}
