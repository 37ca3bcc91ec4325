// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package violation

import (
	"os/exec"

	"github.com/ManuGH/xgrab/internal/model"
)

func complete(job *model.Job) {
	job.Status = model.StatusCompleted
	job.Progress = 100
	job.Title = "allowed"
}

func spawn() *exec.Cmd {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		return nil
	}
	return exec.Command("yt-dlp", "--version")
}
