// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package control

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/xgrab/internal/exec/ytdlp"
	"github.com/ManuGH/xgrab/internal/history"
	"github.com/ManuGH/xgrab/internal/model"
	"github.com/ManuGH/xgrab/internal/orchestrator"
	"github.com/ManuGH/xgrab/internal/orchestrator/orchestratortest"
	"github.com/ManuGH/xgrab/internal/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	dir     string
	reg     *registry.Registry
	fetcher *orchestratortest.Fetcher
	ledger  *history.Ledger
	orch    *orchestrator.Orchestrator
	ctl     *Controller
}

func newHarness(t *testing.T, meta model.VideoMetadata) *harness {
	t.Helper()
	ctx := context.Background()
	h := &harness{
		dir:     t.TempDir(),
		reg:     registry.New(),
		fetcher: orchestratortest.NewFetcher(),
		ledger:  history.Open(ctx, history.NewJSONFileStore(filepath.Join(t.TempDir(), history.DefaultJSONFile))),
	}
	h.orch = orchestrator.New(orchestrator.Deps{
		Registry: h.reg,
		Prober:   &orchestratortest.Prober{Meta: meta},
		Fetcher:  h.fetcher,
		Merger:   &orchestratortest.Merger{},
		Ledger:   h.ledger,
	}, orchestrator.Config{Directory: h.dir, CookieDir: t.TempDir()})
	h.ctl = New(h.reg, h.orch, h.ledger, WithGrace(100*time.Millisecond))
	t.Cleanup(func() {
		close(h.fetcher.Release)
		h.orch.Wait()
		_ = h.ledger.Close()
	})
	return h
}

func (h *harness) waitBlocked(t *testing.T) string {
	t.Helper()
	select {
	case id := <-h.fetcher.Blocked:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("fetch never blocked")
		return ""
	}
}

func (h *harness) tempFiles(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var out []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "temp_") {
			out = append(out, e.Name())
		}
	}
	return out
}

// pausedJob submits a job, waits until its fetch blocks, pauses it and
// lets the next fetch run through.
func (h *harness) pausedJob(t *testing.T, url string) model.Job {
	t.Helper()
	h.fetcher.SetBlock("22", true)
	job, err := h.orch.Submit(model.DownloadRequest{URL: url})
	require.NoError(t, err)
	h.waitBlocked(t)
	_, err = h.ctl.Pause(context.Background(), job.ID)
	require.NoError(t, err)
	h.fetcher.SetBlock("22", false)
	return job
}

// slowSubmitter widens the window between claiming a paused job and
// starting its successor.
type slowSubmitter struct {
	next  Submitter
	delay time.Duration
	err   error

	mu   sync.Mutex
	keys []string
}

func (s *slowSubmitter) SubmitWithKey(req model.DownloadRequest, key string) (model.Job, error) {
	time.Sleep(s.delay)
	s.mu.Lock()
	s.keys = append(s.keys, key)
	s.mu.Unlock()
	if s.err != nil {
		return model.Job{}, s.err
	}
	return s.next.SubmitWithKey(req, key)
}

func (s *slowSubmitter) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.keys...)
}

func combinedMeta() model.VideoMetadata {
	return orchestratortest.Metadata("Clip", orchestratortest.Combined("22", 720))
}

func TestPauseResume_ContinuesPartialFile(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	h.fetcher.SetBlock("22", true)

	job, err := h.orch.Submit(model.DownloadRequest{URL: "https://video.example/a"})
	require.NoError(t, err)
	h.waitBlocked(t)

	paused, err := h.ctl.Pause(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, paused.Status)
	assert.False(t, paused.Pausable)
	assert.True(t, paused.Cancellable)
	assert.Equal(t, 0, h.reg.Processes())
	assert.Empty(t, h.ledger.List(), "pause is not terminal")

	partial := h.tempFiles(t)
	require.Len(t, partial, 1)
	full := h.fetcher.Payload("22")
	info, err := os.Stat(filepath.Join(h.dir, partial[0]))
	require.NoError(t, err)
	assert.Equal(t, int64(len(full)/2), info.Size())

	h.fetcher.SetBlock("22", false)
	resumed, err := h.ctl.Resume(ctx, job.ID)
	require.NoError(t, err)
	assert.NotEqual(t, job.ID, resumed.ID)
	h.orch.Wait()

	_, stillThere := h.reg.Get(job.ID)
	assert.False(t, stillThere)

	calls := h.fetcher.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].Request.Output, calls[1].Request.Output)
	assert.Contains(t, ytdlp.FetchArgs(calls[1].Request, 0), "--continue")
	assert.Equal(t, len(full)/2, calls[0].Written)
	assert.Equal(t, len(full)-len(full)/2, calls[1].Written)

	got, err := os.ReadFile(filepath.Join(h.dir, "Clip.mp4"))
	require.NoError(t, err)
	assert.Equal(t, full, got)

	recs := h.ledger.List()
	require.Len(t, recs, 1)
	assert.Equal(t, resumed.ID, recs[0].ID)
	assert.Equal(t, model.StatusCompleted, recs[0].Status)
	assert.Empty(t, h.tempFiles(t))
}

func TestCancel_RemovesTempFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	h.fetcher.SetBlock("22", true)

	job, err := h.orch.Submit(model.DownloadRequest{URL: "https://video.example/b"})
	require.NoError(t, err)
	h.waitBlocked(t)
	require.NotEmpty(t, h.tempFiles(t))

	cancelled, err := h.ctl.Cancel(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, cancelled.Status)
	assert.Equal(t, CancelledByUser, cancelled.Error)

	calls := h.fetcher.Calls()
	require.Len(t, calls, 1)
	select {
	case <-calls[0].Request.Halt:
	default:
		t.Fatal("fetch was not told that the job stopped")
	}

	h.orch.Wait()
	assert.Empty(t, h.tempFiles(t))
	assert.Equal(t, 0, h.reg.Len())
	assert.Equal(t, 0, h.reg.Processes())

	recs := h.ledger.List()
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusCancelled, recs[0].Status)
	assert.NotNil(t, recs[0].EndedAt)
}

func TestCancel_PausedJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	h.fetcher.SetBlock("22", true)

	job, err := h.orch.Submit(model.DownloadRequest{URL: "https://video.example/c"})
	require.NoError(t, err)
	h.waitBlocked(t)
	_, err = h.ctl.Pause(ctx, job.ID)
	require.NoError(t, err)

	_, err = h.ctl.Cancel(ctx, job.ID)
	require.NoError(t, err)
	h.orch.Wait()
	assert.Empty(t, h.tempFiles(t))
	require.Len(t, h.ledger.List(), 1)

	_, err = h.ctl.Cancel(ctx, job.ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestLifecycle_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())

	_, err := h.ctl.Pause(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)
	_, err = h.ctl.Resume(ctx, "missing")
	assert.ErrorIs(t, err, registry.ErrNotFound)

	h.fetcher.SetBlock("22", true)
	job, err := h.orch.Submit(model.DownloadRequest{URL: "https://video.example/d"})
	require.NoError(t, err)
	h.waitBlocked(t)

	_, err = h.ctl.Resume(ctx, job.ID)
	assert.ErrorIs(t, err, ErrNotPaused)

	_, err = h.ctl.Pause(ctx, job.ID)
	require.NoError(t, err)
	_, err = h.ctl.Pause(ctx, job.ID)
	assert.ErrorIs(t, err, registry.ErrInvalidTransition)

	_, err = h.ctl.Cancel(ctx, job.ID)
	require.NoError(t, err)
}

func TestStopAll(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	h.fetcher.SetBlock("22", true)

	first, err := h.orch.Submit(model.DownloadRequest{URL: "https://video.example/1"})
	require.NoError(t, err)
	h.waitBlocked(t)
	_, err = h.orch.Submit(model.DownloadRequest{URL: "https://video.example/2"})
	require.NoError(t, err)
	h.waitBlocked(t)
	_, err = h.ctl.Pause(ctx, first.ID)
	require.NoError(t, err)

	require.NoError(t, h.ctl.StopAll(ctx))
	h.orch.Wait()

	for _, j := range h.reg.List() {
		assert.False(t, j.Status.IsDownloading() || j.Status == model.StatusPaused, "job %s left in %s", j.ID, j.Status)
	}
	assert.Equal(t, 0, h.reg.Len())
	assert.Equal(t, 0, h.reg.Processes())
	assert.Empty(t, h.tempFiles(t))

	recs := h.ledger.List()
	require.Len(t, recs, 2)
	for _, r := range recs {
		assert.Equal(t, model.StatusCancelled, r.Status)
		assert.Equal(t, CancelledByShutdown, r.Error)
	}
}

func TestStopAll_Idle(t *testing.T) {
	h := newHarness(t, combinedMeta())
	require.NoError(t, h.ctl.StopAll(context.Background()))
	assert.Empty(t, h.ledger.List())
}

func TestDeleteDownloaded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())

	resp := h.orch.Download(model.DownloadRequest{URL: "https://video.example/e"})
	require.True(t, resp.Success, resp.Error)
	path := filepath.Join(h.dir, resp.Filename)
	require.FileExists(t, path)

	recs := h.ctl.History()
	require.Len(t, recs, 1)
	got, ok := h.ctl.Job(recs[0].ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusCompleted, got.Status)

	deleted, err := h.ctl.DeleteDownloaded(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, recs[0].ID, deleted.ID)
	assert.NoFileExists(t, path)
	assert.Empty(t, h.ctl.History())

	_, err = h.ctl.DeleteDownloaded(ctx, recs[0].ID)
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestClearHistory_KeepsFiles(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())

	resp := h.orch.Download(model.DownloadRequest{URL: "https://video.example/f"})
	require.True(t, resp.Success, resp.Error)

	require.NoError(t, h.ctl.ClearHistory(ctx))
	assert.Empty(t, h.ctl.History())
	assert.FileExists(t, filepath.Join(h.dir, resp.Filename))
}

func TestResume_ConcurrentCallsStartOneJob(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	job := h.pausedJob(t, "https://video.example/g")

	sub := &slowSubmitter{next: h.orch, delay: 50 * time.Millisecond}
	ctl := New(h.reg, sub, h.ledger, WithGrace(100*time.Millisecond))

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ctl.Resume(ctx, job.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	h.orch.Wait()

	var resumed int
	for err := range errs {
		if err == nil {
			resumed++
			continue
		}
		assert.ErrorIs(t, err, registry.ErrNotFound)
	}
	assert.Equal(t, 1, resumed)
	assert.Equal(t, []string{job.ArtifactKey}, sub.Keys(), "one successor per paused job")

	recs := h.ledger.List()
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusCompleted, recs[0].Status)
	assert.Len(t, h.fetcher.Calls(), 2)
}

func TestResume_RacesCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	job := h.pausedJob(t, "https://video.example/h")

	sub := &slowSubmitter{next: h.orch, delay: 50 * time.Millisecond}
	ctl := New(h.reg, sub, h.ledger, WithGrace(100*time.Millisecond))

	var resumeErr, cancelErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, resumeErr = ctl.Resume(ctx, job.ID)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = ctl.Cancel(ctx, job.ID)
	}()
	wg.Wait()
	h.orch.Wait()

	require.True(t, (resumeErr == nil) != (cancelErr == nil),
		"exactly one of resume and cancel wins: resume=%v cancel=%v", resumeErr, cancelErr)

	recs := h.ledger.List()
	require.Len(t, recs, 1)
	if resumeErr == nil {
		assert.ErrorIs(t, cancelErr, registry.ErrNotFound)
		assert.Len(t, sub.Keys(), 1)
		assert.Equal(t, model.StatusCompleted, recs[0].Status)
		assert.FileExists(t, filepath.Join(h.dir, "Clip.mp4"))
	} else {
		assert.Empty(t, sub.Keys(), "a cancelled job is never resubmitted")
		assert.Equal(t, model.StatusCancelled, recs[0].Status)
		assert.Equal(t, job.ID, recs[0].ID)
	}
	assert.Empty(t, h.tempFiles(t))
	assert.Equal(t, 0, h.reg.Len())
}

func TestResume_SubmitFailureKeepsJobPaused(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, combinedMeta())
	job := h.pausedJob(t, "https://video.example/i")

	sub := &slowSubmitter{next: h.orch, err: errors.New("submit refused")}
	ctl := New(h.reg, sub, h.ledger)

	_, err := ctl.Resume(ctx, job.ID)
	require.ErrorContains(t, err, "submit refused")

	got, ok := h.reg.Get(job.ID)
	require.True(t, ok)
	assert.Equal(t, model.StatusPaused, got.Status)
	require.Len(t, h.tempFiles(t), 1, "partial file survives a failed resume")

	_, err = h.ctl.Resume(ctx, job.ID)
	require.NoError(t, err)
	h.orch.Wait()
	recs := h.ledger.List()
	require.Len(t, recs, 1)
	assert.Equal(t, model.StatusCompleted, recs[0].Status)
}
