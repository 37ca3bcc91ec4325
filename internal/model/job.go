// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

import "time"

// Job is the serializable state of one download. It never carries a live
// process handle; the registry keeps those in a separate map.
type Job struct {
	ID          string     `json:"id"`
	URL         string     `json:"url"`
	Status      Status     `json:"status"`
	Progress    float64    `json:"progress"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Directory   string     `json:"directory"`
	Filename    string     `json:"filename,omitempty"`
	Error       string     `json:"error,omitempty"`
	Cancellable bool       `json:"cancellable"`
	Pausable    bool       `json:"pausable"`
	Quality     string     `json:"quality,omitempty"`
	Title       string     `json:"title,omitempty"`

	// ArtifactKey scopes the job's temp files. A resumed job inherits the
	// key of the job it replaces so partial files are continued.
	ArtifactKey string `json:"-"`
	// Cookies is raw authentication material; never persisted.
	Cookies string `json:"-"`
}

// DownloadProgress is the outbound per-job snapshot.
type DownloadProgress = Job

// HistoryRecord is a Job snapshot taken when it became terminal.
type HistoryRecord = Job

// SortTime is the recency key for history ordering.
func (j Job) SortTime() time.Time {
	if j.EndedAt != nil {
		return *j.EndedAt
	}
	return j.StartedAt
}

// TempPrefix is the filename prefix of every intermediate artifact of the job.
func (j Job) TempPrefix() string {
	key := j.ArtifactKey
	if key == "" {
		key = j.ID
	}
	return "temp_" + key + "_"
}

// DownloadRequest is the inbound request to start a job.
type DownloadRequest struct {
	URL       string `json:"url"`
	Directory string `json:"directory,omitempty"`
	Quality   string `json:"quality,omitempty"`
	Cookies   string `json:"cookies,omitempty"`
}

// DownloadResponse is the outcome of a synchronous download.
type DownloadResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Directory string `json:"directory,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Succeeded builds a success response.
func Succeeded(dir, filename string) DownloadResponse {
	return DownloadResponse{
		Success:   true,
		Message:   "Download completed successfully",
		Directory: dir,
		Filename:  filename,
	}
}

// Failed builds a failure response. Success-path fields stay empty.
func Failed(err error) DownloadResponse {
	return DownloadResponse{Success: false, Error: err.Error()}
}
