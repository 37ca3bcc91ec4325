// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransitionTable(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusAnalyzing, StatusDownloadingCombined, true},
		{StatusAnalyzing, StatusDownloadingVideo, true},
		{StatusAnalyzing, StatusDownloadingAudio, false},
		{StatusDownloadingVideo, StatusDownloadingAudio, true},
		{StatusDownloadingVideo, StatusMerging, false},
		{StatusDownloadingAudio, StatusMerging, true},
		{StatusMerging, StatusCompleted, true},
		{StatusDownloadingCombined, StatusCompleted, true},
		{StatusDownloadingCombined, StatusMerging, false},
		{StatusMerging, StatusPaused, false},
		{StatusAnalyzing, StatusPaused, false},
		{StatusPaused, StatusCancelled, true},
		{StatusPaused, StatusError, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusError, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	all := []Status{
		StatusAnalyzing, StatusDownloadingCombined, StatusDownloadingVideo, StatusDownloadingAudio,
		StatusMerging, StatusPaused, StatusCompleted, StatusError, StatusCancelled,
	}
	for _, from := range all {
		if !from.IsTerminal() {
			continue
		}
		for _, to := range all {
			assert.False(t, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestStatusFlags(t *testing.T) {
	assert.True(t, StatusDownloadingVideo.Pausable())
	assert.False(t, StatusMerging.Pausable())
	assert.True(t, StatusPaused.Cancellable())
	assert.False(t, StatusPaused.IsActive())
	assert.False(t, StatusCompleted.Cancellable())

	lo, hi := StatusDownloadingAudio.ProgressRange()
	assert.Equal(t, 60.0, lo)
	assert.Equal(t, 90.0, hi)
}

func TestJobJSONOmitsPrivateFields(t *testing.T) {
	end := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	j := Job{
		ID:          "abc",
		URL:         "https://example.com/watch?v=1",
		Status:      StatusCompleted,
		Progress:    100,
		StartedAt:   end.Add(-time.Minute),
		EndedAt:     &end,
		ArtifactKey: "prev",
		Cookies:     "SID=secret",
	}
	b, err := json.Marshal(j)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "secret")
	assert.NotContains(t, string(b), "prev")
	assert.Contains(t, string(b), `"status":"completed"`)

	var back Job
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","status":"error","future_field":1}`), &back))
	assert.Equal(t, StatusError, back.Status)
}

func TestTempPrefixUsesArtifactKey(t *testing.T) {
	assert.Equal(t, "temp_a_", Job{ID: "a"}.TempPrefix())
	assert.Equal(t, "temp_b_", Job{ID: "a", ArtifactKey: "b"}.TempPrefix())
}

func TestSelectionStreams(t *testing.T) {
	v := StreamDescriptor{ID: "137", VideoCodec: "avc1"}
	a := StreamDescriptor{ID: "140", AudioCodec: "mp4a"}
	sel := StreamSelection{Video: &v, Audio: &a}
	assert.False(t, sel.IsCombined())
	assert.Equal(t, "separate", sel.Shape())
	require.Len(t, sel.Streams(), 2)
	assert.Equal(t, "137", sel.Streams()[0].ID)
}
