// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package orchestratortest provides in-memory stand-ins for the external
// tools and the history ledger, for tests of packages that drive jobs.
package orchestratortest

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ManuGH/xgrab/internal/exec/ffmpeg"
	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/exec/ytdlp"
	"github.com/ManuGH/xgrab/internal/model"
)

// Process is a procio.Process that exits only when terminated.
type Process struct {
	pid        int
	once       sync.Once
	done       chan struct{}
	terminated atomic.Bool
}

// NewProcess returns a running Process.
func NewProcess(pid int) *Process {
	return &Process{pid: pid, done: make(chan struct{})}
}

func (p *Process) Pid() int { return p.pid }

func (p *Process) Terminate(time.Duration) error {
	p.once.Do(func() {
		p.terminated.Store(true)
		close(p.done)
	})
	return nil
}

func (p *Process) Done() <-chan struct{} { return p.done }

// Terminated reports whether Terminate was called.
func (p *Process) Terminated() bool { return p.terminated.Load() }

// Prober returns fixed metadata.
type Prober struct {
	Meta model.VideoMetadata
	Err  error

	calls atomic.Int32
}

func (p *Prober) Probe(_ context.Context, _, _ string, _ procio.Tracker) (model.VideoMetadata, error) {
	p.calls.Add(1)
	if p.Err != nil {
		return model.VideoMetadata{}, p.Err
	}
	return p.Meta, nil
}

// Calls returns the number of Probe calls.
func (p *Prober) Calls() int { return int(p.calls.Load()) }

// FetchCall records one Fetch invocation.
type FetchCall struct {
	Request ytdlp.FetchRequest
	// Written is the number of bytes appended to the output by this call.
	Written int
}

// Fetcher writes Content[formatID] to the output, continuing any partial
// file already there the way yt-dlp --continue does.
type Fetcher struct {
	// Content is the full payload per format; a default is derived from
	// the format id when missing.
	Content map[string][]byte
	// Fail makes a format fail with the given error.
	Fail map[string]error
	// Block holds a format halfway: half the payload is written, a process
	// is attached and Fetch waits until it is terminated or Release is
	// closed.
	Block   map[string]bool
	Release chan struct{}
	// Blocked receives the format id once a blocked fetch is waiting.
	Blocked chan string

	mu    sync.Mutex
	calls []FetchCall
	pids  atomic.Int32
}

// NewFetcher returns an empty Fetcher.
func NewFetcher() *Fetcher {
	return &Fetcher{
		Content: make(map[string][]byte),
		Fail:    make(map[string]error),
		Block:   make(map[string]bool),
		Release: make(chan struct{}),
		Blocked: make(chan string, 8),
	}
}

// SetBlock changes whether id blocks halfway.
func (f *Fetcher) SetBlock(id string, block bool) {
	f.mu.Lock()
	f.Block[id] = block
	f.mu.Unlock()
}

// Payload returns the full content served for id.
func (f *Fetcher) Payload(id string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloadLocked(id)
}

func (f *Fetcher) payloadLocked(id string) []byte {
	if c, ok := f.Content[id]; ok {
		return c
	}
	return []byte("payload-of-" + id + "-0123456789abcdef")
}

// Calls returns the recorded invocations.
func (f *Fetcher) Calls() []FetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FetchCall(nil), f.calls...)
}

func (f *Fetcher) Fetch(_ context.Context, req ytdlp.FetchRequest) error {
	f.mu.Lock()
	full := f.payloadLocked(req.FormatID)
	failErr := f.Fail[req.FormatID]
	block := f.Block[req.FormatID]
	idx := len(f.calls)
	f.calls = append(f.calls, FetchCall{Request: req})
	f.mu.Unlock()

	if failErr != nil {
		return failErr
	}

	proc := NewProcess(int(f.pids.Add(1)) + 1000)
	if req.Tracker != nil {
		if err := req.Tracker.Attach(proc); err != nil {
			return &ytdlp.AcquisitionError{FormatID: req.FormatID, Attempts: 1, Reason: err.Error(), Interrupted: true}
		}
		defer req.Tracker.Detach(proc)
	}

	have := 0
	if info, err := os.Stat(req.Output); err == nil {
		have = int(info.Size())
	}
	if have > len(full) {
		have = len(full)
	}
	target := len(full)
	if block {
		target = max(have, len(full)/2)
	}
	if err := appendBytes(req.Output, full[have:target]); err != nil {
		return err
	}
	f.addWritten(idx, target-have)
	progress(req, target, len(full))

	if block {
		f.Blocked <- req.FormatID
		select {
		case <-proc.Done():
			return &ytdlp.AcquisitionError{FormatID: req.FormatID, Attempts: 1, Reason: "process terminated", Interrupted: true}
		case <-f.Release:
		}
		if err := appendBytes(req.Output, full[target:]); err != nil {
			return err
		}
		f.addWritten(idx, len(full)-target)
		progress(req, len(full), len(full))
	}
	return nil
}

func (f *Fetcher) addWritten(idx, n int) {
	f.mu.Lock()
	f.calls[idx].Written += n
	f.mu.Unlock()
}

func progress(req ytdlp.FetchRequest, have, total int) {
	if req.OnProgress == nil || total == 0 {
		return
	}
	req.OnProgress(0)
	req.OnProgress(float64(have) * 50 / float64(total))
	req.OnProgress(float64(have) * 100 / float64(total))
}

func appendBytes(path string, b []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Merger concatenates video and audio into the output.
type Merger struct {
	Err error

	calls atomic.Int32
}

func (m *Merger) Merge(_ context.Context, req ffmpeg.MergeRequest) error {
	m.calls.Add(1)
	if m.Err != nil {
		return m.Err
	}
	v, err := os.ReadFile(req.Video)
	if err != nil {
		return &ffmpeg.MergeError{ExitCode: 1, Stderr: []string{err.Error()}}
	}
	a, err := os.ReadFile(req.Audio)
	if err != nil {
		return &ffmpeg.MergeError{ExitCode: 1, Stderr: []string{err.Error()}}
	}
	return os.WriteFile(req.Output, append(v, a...), 0o600)
}

// Calls returns the number of Merge calls.
func (m *Merger) Calls() int { return int(m.calls.Load()) }

// ErrLedger is returned by a failing Ledger.
var ErrLedger = errors.New("ledger unavailable")

// Ledger records appended history in memory.
type Ledger struct {
	Fail bool

	mu      sync.Mutex
	records []model.HistoryRecord
}

func (l *Ledger) Append(_ context.Context, rec model.HistoryRecord) error {
	if l.Fail {
		return ErrLedger
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
	return nil
}

// Records returns the appended records in order.
func (l *Ledger) Records() []model.HistoryRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.HistoryRecord(nil), l.records...)
}

// Metadata builds a VideoMetadata from streams.
func Metadata(title string, streams ...model.StreamDescriptor) model.VideoMetadata {
	return model.VideoMetadata{ID: "vid", Title: title, Streams: streams}
}

// Combined returns an H.264/AAC mp4 stream with both tracks.
func Combined(id string, height int) model.StreamDescriptor {
	return model.StreamDescriptor{ID: id, Ext: "mp4", VideoCodec: "avc1.640028", AudioCodec: "mp4a.40.2", Height: &height, Protocol: "https", URL: "https://cdn.example/" + id}
}

// VideoOnly returns a video-only stream.
func VideoOnly(id, ext, codec string, height int) model.StreamDescriptor {
	return model.StreamDescriptor{ID: id, Ext: ext, VideoCodec: codec, Height: &height, Protocol: "https", URL: "https://cdn.example/" + id}
}

// AudioOnly returns an audio-only stream.
func AudioOnly(id, ext, codec string, bitrate float64) model.StreamDescriptor {
	return model.StreamDescriptor{ID: id, Ext: ext, AudioCodec: codec, Bitrate: &bitrate, Protocol: "https", URL: "https://cdn.example/" + id}
}
