// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/ManuGH/xgrab/internal/exec/ffmpeg"
	"github.com/ManuGH/xgrab/internal/exec/ytdlp"
	"github.com/ManuGH/xgrab/internal/fsutil"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/model"
	"github.com/ManuGH/xgrab/internal/registry"
	"github.com/ManuGH/xgrab/internal/selection"
)

// drive runs job to a terminal state or until it is interrupted. The
// returned job is the last snapshot seen.
func (o *Orchestrator) drive(job model.Job) (model.Job, error) {
	ctx := log.ContextWithJobID(o.base, job.ID)
	logger := log.WithContext(ctx, log.WithComponent("orchestrator"))

	final, err := o.stages(ctx, job)
	if err == nil {
		o.sweep(ctx, job, true)
		o.record(ctx, final)
		o.reg.Remove(job.ID)
		logger.Info().
			Str(log.FieldFinalPath, filepath.Join(final.Directory, final.Filename)).
			Dur("duration", o.now().Sub(job.StartedAt)).
			Msg("job completed")
		return final, nil
	}

	if o.interrupted(job.ID, err) {
		snap, ok := o.reg.Get(job.ID)
		if ok && snap.Status == model.StatusCancelled {
			o.sweep(ctx, job, false)
		}
		logger.Info().Err(err).Str(log.FieldNewState, string(snap.Status)).Msg("job interrupted")
		if !ok {
			return job, err
		}
		return snap, err
	}

	failed, ferr := o.reg.Finish(job.ID, model.StatusError, err.Error())
	if ferr != nil {
		// Cancelled or paused concurrently; the controller owns it now.
		logger.Info().Err(err).Msg("stage failed after interruption")
		return failed, err
	}
	logger.Error().Err(err).Msg("job failed")
	o.sweep(ctx, job, false)
	o.record(ctx, failed)
	o.reg.Remove(job.ID)
	return failed, err
}

// interrupted reports whether err stems from the job being paused,
// cancelled or removed rather than from a genuine failure.
func (o *Orchestrator) interrupted(id string, err error) bool {
	return errors.Is(err, registry.ErrInterrupted) || o.reg.Interrupted(id)
}

func (o *Orchestrator) record(ctx context.Context, rec model.Job) {
	if o.ledger == nil {
		return
	}
	if err := o.ledger.Append(ctx, rec); err != nil {
		logger := log.WithContext(ctx, log.WithComponent("orchestrator"))
		logger.Warn().Err(err).Msg("failed to record job in history")
	}
}

// sweep removes the job's intermediate files: only zero-byte leftovers
// after success, everything after a failure.
func (o *Orchestrator) sweep(ctx context.Context, job model.Job, zeroOnly bool) {
	removed, err := fsutil.SweepPrefix(job.Directory, job.TempPrefix(), zeroOnly)
	logger := log.WithContext(ctx, log.WithComponent("orchestrator"))
	if err != nil {
		logger.Warn().Err(err).Str(log.FieldPath, job.Directory).Msg("temp file sweep failed")
		return
	}
	if len(removed) > 0 {
		logger.Debug().Strs("files", removed).Msg("temp files removed")
	}
}

func (o *Orchestrator) stages(ctx context.Context, job model.Job) (model.Job, error) {
	id := job.ID
	if err := fsutil.EnsureDir(job.Directory); err != nil {
		return job, err
	}

	meta, err := o.analyze(ctx, job)
	if err != nil {
		return job, err
	}
	sel, err := o.choose(ctx, job, meta)
	if err != nil {
		return job, err
	}

	cookieFile, cleanup, err := ytdlp.WriteCookieFile(o.cfg.CookieDir, job.Cookies, o.now())
	if err != nil {
		return job, fsutil.Wrap("cookie file", err)
	}
	defer cleanup()

	var artifact, ext string
	if sel.IsCombined() {
		ext = sel.Combined.Ext
		artifact = o.tempPath(job, "combined", ext)
		if err := o.acquire(ctx, job, model.StatusDownloadingCombined, *sel.Combined, artifact, cookieFile); err != nil {
			return job, err
		}
	} else {
		video := o.tempPath(job, "video", sel.Video.Ext)
		audio := o.tempPath(job, "audio", sel.Audio.Ext)
		if err := o.acquire(ctx, job, model.StatusDownloadingVideo, *sel.Video, video, cookieFile); err != nil {
			return job, err
		}
		if err := o.acquire(ctx, job, model.StatusDownloadingAudio, *sel.Audio, audio, cookieFile); err != nil {
			return job, err
		}
		ext = ffmpeg.OutputExt(sel.Video.Ext, sel.Audio.Ext)
		artifact = o.tempPath(job, "merged", ext)
		if err := o.merge(ctx, job, video, audio, artifact); err != nil {
			return job, err
		}
		for _, p := range []string{video, audio} {
			if err := fsutil.RemoveIfExists(p); err != nil {
				logger := log.WithContext(ctx, log.WithComponent("orchestrator"))
				logger.Warn().Err(err).Str(log.FieldPath, p).Msg("failed to remove merged input")
			}
		}
	}

	// Promotion runs under the registry's hold on the job: a pause or
	// cancel either prevents it or finds the job already completed.
	return o.reg.Complete(id, func() (string, error) {
		now := o.now()
		return fsutil.Promote(artifact, job.Directory, fsutil.FinalName(meta.Title, ext, now), now)
	})
}

func (o *Orchestrator) tempPath(job model.Job, role, ext string) string {
	if ext == "" {
		ext = "bin"
	}
	return filepath.Join(job.Directory, job.TempPrefix()+role+"."+ext)
}

func (o *Orchestrator) analyze(ctx context.Context, job model.Job) (model.VideoMetadata, error) {
	start := o.now()
	meta, err := o.prober.Probe(ctx, job.URL, job.Cookies, o.reg.Tracker(job.ID))
	metrics.ObserveStage(string(model.StatusAnalyzing), stageResult(err), o.now().Sub(start))
	if err != nil {
		return meta, fmt.Errorf("probe: %w", err)
	}
	if _, err := o.reg.Update(job.ID, func(j *model.Job) error {
		j.Title = meta.Title
		return nil
	}); err != nil {
		return meta, err
	}
	if _, err := o.reg.SetProgress(job.ID, 5); err != nil {
		return meta, err
	}
	return meta, nil
}

func (o *Orchestrator) choose(ctx context.Context, job model.Job, meta model.VideoMetadata) (model.StreamSelection, error) {
	logger := log.WithContext(ctx, log.WithComponent("orchestrator"))

	sel, err := selection.Select(meta, job.Quality)
	if err != nil {
		return sel, fmt.Errorf("select: %w", err)
	}
	if err := selection.Validate(meta, sel); err != nil {
		return sel, fmt.Errorf("select: %w", err)
	}
	metrics.IncSelection(string(sel.Mode), sel.Shape())

	ev := logger.Info().Str(log.FieldMode, string(sel.Mode)).Str("shape", sel.Shape())
	for _, s := range sel.Streams() {
		ev = ev.Str(log.FieldStreamID, s.ID)
	}
	ev.Msg("streams selected")

	if _, err := o.reg.SetProgress(job.ID, 10); err != nil {
		return sel, err
	}
	return sel, nil
}

func (o *Orchestrator) acquire(ctx context.Context, job model.Job, stage model.Status, s model.StreamDescriptor, output, cookieFile string) error {
	if _, err := o.reg.Transition(job.ID, stage); err != nil {
		return err
	}
	lo, hi := stage.ProgressRange()

	start := o.now()
	err := o.fetcher.Fetch(ctx, ytdlp.FetchRequest{
		URL:        job.URL,
		FormatID:   s.ID,
		Output:     output,
		CookieFile: cookieFile,
		OnProgress: func(pct float64) {
			_, _ = o.reg.SetProgress(job.ID, ytdlp.ScaleProgress(pct, lo, hi))
		},
		Tracker: o.reg.Tracker(job.ID),
		Halt:    o.reg.Halted(job.ID),
	})
	metrics.ObserveStage(string(stage), stageResult(err), o.now().Sub(start))
	if err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	_, err = o.reg.SetProgress(job.ID, hi)
	return err
}

func (o *Orchestrator) merge(ctx context.Context, job model.Job, video, audio, output string) error {
	if _, err := o.reg.Transition(job.ID, model.StatusMerging); err != nil {
		return err
	}
	start := o.now()
	err := o.merger.Merge(ctx, ffmpeg.MergeRequest{
		Video:   video,
		Audio:   audio,
		Output:  output,
		Tracker: o.reg.Tracker(job.ID),
	})
	metrics.ObserveStage(string(model.StatusMerging), stageResult(err), o.now().Sub(start))
	if err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

func stageResult(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
