// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobCounters(t *testing.T) {
	started := testutil.ToFloat64(jobsStarted)
	active := testutil.ToFloat64(jobsActive)
	completed := testutil.ToFloat64(jobsFinished.WithLabelValues("completed"))

	IncJobStarted()
	assert.Equal(t, started+1, testutil.ToFloat64(jobsStarted))
	assert.Equal(t, active+1, testutil.ToFloat64(jobsActive))

	IncJobFinished("completed")
	DecJobActive()
	assert.Equal(t, completed+1, testutil.ToFloat64(jobsFinished.WithLabelValues("completed")))
	assert.Equal(t, active, testutil.ToFloat64(jobsActive))

	IncJobActive()
	assert.Equal(t, started+1, testutil.ToFloat64(jobsStarted), "restoring a job is not a new start")
	assert.Equal(t, active+1, testutil.ToFloat64(jobsActive))
	DecJobActive()
}

func TestLabelledCounters(t *testing.T) {
	before := testutil.ToFloat64(selections.WithLabelValues("best", "separate"))
	IncSelection("best", "separate")
	assert.Equal(t, before+1, testutil.ToFloat64(selections.WithLabelValues("best", "separate")))

	before = testutil.ToFloat64(jobLifecycleOps.WithLabelValues("pause", "rejected"))
	IncLifecycleOp("pause", "rejected")
	assert.Equal(t, before+1, testutil.ToFloat64(jobLifecycleOps.WithLabelValues("pause", "rejected")))

	before = testutil.ToFloat64(ledgerWrites.WithLabelValues("json", "ok"))
	IncLedgerWrite("json", "ok")
	assert.Equal(t, before+1, testutil.ToFloat64(ledgerWrites.WithLabelValues("json", "ok")))

	before = testutil.ToFloat64(procExits.WithLabelValues("yt-dlp", "nonzero"))
	IncProcExit("yt-dlp", "nonzero")
	assert.Equal(t, before+1, testutil.ToFloat64(procExits.WithLabelValues("yt-dlp", "nonzero")))

	before = testutil.ToFloat64(procWait.WithLabelValues("forced"))
	IncProcWait("forced")
	assert.Equal(t, before+1, testutil.ToFloat64(procWait.WithLabelValues("forced")))
}

func TestObserveStage(t *testing.T) {
	ObserveStage("merging", "ok", 1500*time.Millisecond)
	assert.Positive(t, testutil.CollectAndCount(stageDuration))
}

func TestPromhttpExposure(t *testing.T) {
	IncProcStart("ffmpeg", "ok")
	IncProcTerminate("SIGTERM", "sent")

	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, err)

	for _, name := range []string{
		"xgrab_process_start_total",
		"xgrab_process_terminate_total",
		"xgrab_jobs_started_total",
	} {
		assert.Contains(t, string(body), name)
	}
}
