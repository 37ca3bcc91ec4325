// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package registry holds the state of in-flight jobs.
//
// Each job lives in its own entry guarded by its own mutex, so jobs never
// block each other. The live process owned by a job is kept in a separate
// map and never becomes part of a Job snapshot. All mutation goes through
// the methods here; callers only ever receive copies.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/metrics"
	"github.com/ManuGH/xgrab/internal/model"
)

var (
	ErrNotFound          = errors.New("job not found")
	ErrExists            = errors.New("job already registered")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInterrupted means the job was paused, cancelled or removed while
	// a stage was running. It is never recorded as a job error.
	ErrInterrupted = errors.New("job interrupted")
)

type entry struct {
	mu  sync.Mutex
	job model.Job

	// halt is closed once the job is paused, cancelled or removed.
	halt     chan struct{}
	haltOnce sync.Once
}

func newEntry(job model.Job) *entry {
	return &entry{job: job, halt: make(chan struct{})}
}

func (e *entry) stop() {
	e.haltOnce.Do(func() { close(e.halt) })
}

var closedHalt = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Registry is a concurrency-safe store of in-flight jobs.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// Lock order: mu before entry.mu before procMu.
	procMu sync.Mutex
	procs  map[string]procio.Process

	now      func() time.Time
	observer func(model.Job)
}

// Option configures a Registry.
type Option func(*Registry)

// WithObserver installs fn to receive a snapshot after every mutation of a
// job. fn runs while the job's entry is locked, so snapshots of one job
// arrive in order; fn must not call back into the Registry.
func WithObserver(fn func(model.Job)) Option {
	return func(r *Registry) { r.observer = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New returns an empty Registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[string]*entry),
		procs:   make(map[string]procio.Process),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Registry) lookup(id string) (*entry, bool) {
	r.mu.RLock()
	e, ok := r.entries[id]
	r.mu.RUnlock()
	return e, ok
}

func (r *Registry) notify(j model.Job) {
	if r.observer != nil {
		r.observer(j)
	}
}

// Register adds a new job. The job's flags are derived from its status.
func (r *Registry) Register(job model.Job) error {
	job.Pausable = job.Status.Pausable()
	job.Cancellable = job.Status.Cancellable()
	if job.StartedAt.IsZero() {
		job.StartedAt = r.now()
	}

	r.mu.Lock()
	if _, ok := r.entries[job.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	e := newEntry(job)
	e.mu.Lock()
	r.entries[job.ID] = e
	r.mu.Unlock()

	metrics.IncJobStarted()
	r.notify(job)
	e.mu.Unlock()
	return nil
}

// Get returns a snapshot of the job.
func (r *Registry) Get(id string) (model.Job, bool) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.job, true
}

// List returns snapshots of all jobs, oldest first.
func (r *Registry) List() []model.Job {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.Job, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.job)
		e.mu.Unlock()
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Update applies fn to a copy of the job and commits it when fn returns
// nil. Status, progress and identity changes are discarded; use
// Transition and SetProgress for those.
func (r *Registry) Update(id string, fn func(*model.Job) error) (model.Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.job
	if err := fn(&next); err != nil {
		return e.job, err
	}
	next.ID = e.job.ID
	next.Status = e.job.Status
	next.Progress = e.job.Progress
	next.Pausable = e.job.Pausable
	next.Cancellable = e.job.Cancellable
	e.job = next
	r.notify(e.job)
	return e.job, nil
}

// Transition moves the job to next if the state machine allows it.
// Entering a stage raises progress to the stage's lower bound. A job that
// is paused, cancelled or gone yields ErrInterrupted.
func (r *Registry) Transition(id string, next model.Status) (model.Job, error) {
	return r.transition(id, next, "")
}

// Finish moves the job to a terminal status with an optional detail
// message. It succeeds at most once per job.
func (r *Registry) Finish(id string, status model.Status, detail string) (model.Job, error) {
	if !status.IsTerminal() {
		return model.Job{}, fmt.Errorf("%w: %s is not terminal", ErrInvalidTransition, status)
	}
	return r.transition(id, status, detail)
}

func (r *Registry) transition(id string, next model.Status, detail string) (model.Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrInterrupted, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkTransition(id, e.job.Status, next); err != nil {
		return e.job, err
	}
	r.enter(e, next, detail)
	return e.job, nil
}

func checkTransition(id string, cur, next model.Status) error {
	if model.CanTransition(cur, next) {
		return nil
	}
	if cur == model.StatusPaused || cur == model.StatusCancelled {
		return fmt.Errorf("%w: job %s is %s", ErrInterrupted, id, cur)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur, next)
}

// enter applies an allowed transition. e.mu must be held.
func (r *Registry) enter(e *entry, next model.Status, detail string) {
	e.job.Status = next
	e.job.Pausable = next.Pausable()
	e.job.Cancellable = next.Cancellable()
	if lo, _ := next.ProgressRange(); next.IsActive() && e.job.Progress < lo {
		e.job.Progress = lo
	}
	if next == model.StatusCompleted {
		e.job.Progress = 100
	}
	if detail != "" {
		e.job.Error = detail
	}
	if next.IsTerminal() {
		end := r.now()
		e.job.EndedAt = &end
		metrics.IncJobFinished(string(next))
	}
	r.notify(e.job)
}

// Complete runs promote and marks the job completed with the file name it
// returns, all while holding the job. A pause or cancel either lands
// before promote is called, which then never runs, or after the job is
// already completed. promote errors are returned unchanged.
func (r *Registry) Complete(id string, promote func() (string, error)) (model.Job, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrInterrupted, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkTransition(id, e.job.Status, model.StatusCompleted); err != nil {
		return e.job, err
	}
	name, err := promote()
	if err != nil {
		return e.job, err
	}
	e.job.Filename = name
	r.enter(e, model.StatusCompleted, "")
	return e.job, nil
}

// SetProgress records an overall percentage for the current stage. The
// value is clamped to the stage's range and never decreases.
func (r *Registry) SetProgress(id string, pct float64) (float64, error) {
	e, ok := r.lookup(id)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInterrupted, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.job.Status.IsActive() {
		return e.job.Progress, fmt.Errorf("%w: job %s is %s", ErrInterrupted, id, e.job.Status)
	}
	lo, hi := e.job.Status.ProgressRange()
	if pct < lo {
		pct = lo
	}
	if pct > hi {
		pct = hi
	}
	if pct > e.job.Progress {
		e.job.Progress = pct
		r.notify(e.job)
	}
	return e.job.Progress, nil
}

// Pause marks a downloading job paused and detaches its process. The
// caller terminates the returned process, which may be nil.
func (r *Registry) Pause(id string) (model.Job, procio.Process, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !model.CanTransition(e.job.Status, model.StatusPaused) {
		return e.job, nil, fmt.Errorf("%w: cannot pause job in status %s", ErrInvalidTransition, e.job.Status)
	}
	e.job.Status = model.StatusPaused
	e.job.Pausable = false
	e.job.Cancellable = true
	e.stop()
	proc := r.takeProcess(id)
	r.notify(e.job)
	return e.job, proc, nil
}

// Cancel marks the job cancelled with detail and detaches its process.
// The caller terminates the returned process, which may be nil.
func (r *Registry) Cancel(id, detail string) (model.Job, procio.Process, error) {
	e, ok := r.lookup(id)
	if !ok {
		return model.Job{}, nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !model.CanTransition(e.job.Status, model.StatusCancelled) {
		return e.job, nil, fmt.Errorf("%w: cannot cancel job in status %s", ErrInvalidTransition, e.job.Status)
	}
	end := r.now()
	e.job.Status = model.StatusCancelled
	e.job.Pausable = false
	e.job.Cancellable = false
	e.job.EndedAt = &end
	if detail != "" {
		e.job.Error = detail
	}
	e.stop()
	proc := r.takeProcess(id)
	metrics.IncJobFinished(string(model.StatusCancelled))
	r.notify(e.job)
	return e.job, proc, nil
}

// Remove drops the job and any process still attached to it.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()
	if !ok {
		return
	}
	e.stop()
	r.procMu.Lock()
	delete(r.procs, id)
	r.procMu.Unlock()
	metrics.DecJobActive()
}

// ClaimPaused removes a paused job and returns its last snapshot. At most
// one caller claims a given job; a job in any other status stays put and
// yields ErrInvalidTransition.
func (r *Registry) ClaimPaused(id string) (model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return model.Job{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.job.Status != model.StatusPaused {
		return e.job, fmt.Errorf("%w: job %s is %s", ErrInvalidTransition, id, e.job.Status)
	}
	delete(r.entries, id)
	e.stop()
	r.procMu.Lock()
	delete(r.procs, id)
	r.procMu.Unlock()
	metrics.DecJobActive()
	return e.job, nil
}

// Restore puts back a job taken by ClaimPaused whose successor could not
// be started.
func (r *Registry) Restore(job model.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[job.ID]; ok {
		return fmt.Errorf("%w: %s", ErrExists, job.ID)
	}
	r.entries[job.ID] = newEntry(job)
	metrics.IncJobActive()
	r.notify(job)
	return nil
}

// Halted returns a channel that is closed once the job is paused,
// cancelled or removed. An unknown job yields a closed channel.
func (r *Registry) Halted(id string) <-chan struct{} {
	e, ok := r.lookup(id)
	if !ok {
		return closedHalt
	}
	return e.halt
}

// Interrupted reports whether the job's driver should stop: the job is
// gone, paused or cancelled.
func (r *Registry) Interrupted(id string) bool {
	j, ok := r.Get(id)
	return !ok || j.Status == model.StatusPaused || j.Status == model.StatusCancelled
}

// Process returns the process currently owned by the job.
func (r *Registry) Process(id string) (procio.Process, bool) {
	r.procMu.Lock()
	defer r.procMu.Unlock()
	p, ok := r.procs[id]
	return p, ok
}

// Processes returns the number of owned processes.
func (r *Registry) Processes() int {
	r.procMu.Lock()
	defer r.procMu.Unlock()
	return len(r.procs)
}

func (r *Registry) takeProcess(id string) procio.Process {
	r.procMu.Lock()
	defer r.procMu.Unlock()
	p := r.procs[id]
	delete(r.procs, id)
	return p
}

// Tracker returns a procio.Tracker that binds processes to the job.
func (r *Registry) Tracker(id string) procio.Tracker {
	return tracker{r: r, id: id}
}

type tracker struct {
	r  *Registry
	id string
}

// Attach accepts the process only while the job is active.
func (t tracker) Attach(p procio.Process) error {
	e, ok := t.r.lookup(t.id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInterrupted, t.id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.job.Status.IsActive() {
		return fmt.Errorf("%w: job %s is %s", ErrInterrupted, t.id, e.job.Status)
	}
	t.r.procMu.Lock()
	t.r.procs[t.id] = p
	t.r.procMu.Unlock()
	return nil
}

func (t tracker) Detach(p procio.Process) {
	t.r.procMu.Lock()
	defer t.r.procMu.Unlock()
	if cur, ok := t.r.procs[t.id]; ok && cur == p {
		delete(t.r.procs, t.id)
	}
}
