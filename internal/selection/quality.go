// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package selection

import (
	"strconv"
	"strings"

	"github.com/ManuGH/xgrab/internal/model"
)

const (
	// CompatMaxHeight caps compatibility mode.
	CompatMaxHeight = 1080
	// DefaultTarget applies when no quality is requested.
	DefaultTarget = CompatMaxHeight
	worstTarget   = 144
)

// Quality is a parsed quality preference. Target 0 means unbounded.
type Quality struct {
	Mode   model.SelectionMode
	Target int
}

// ParseQuality interprets a user quality string such as "720p", "1080",
// "4k", "best" or "worst". Unknown strings fall back to compatibility mode
// at DefaultTarget.
func ParseQuality(s string) Quality {
	q := strings.ToLower(strings.TrimSpace(s))
	switch q {
	case "":
		return Quality{Mode: model.ModeCompatibility, Target: DefaultTarget}
	case "best", "max":
		return Quality{Mode: model.ModeMaximum}
	case "4k":
		return Quality{Mode: model.ModeMaximum, Target: 2160}
	case "2k":
		return Quality{Mode: model.ModeMaximum, Target: 1440}
	case "worst":
		return Quality{Mode: model.ModeCompatibility, Target: worstTarget}
	}

	h, err := strconv.Atoi(strings.TrimSuffix(q, "p"))
	if err != nil || h <= 0 {
		return Quality{Mode: model.ModeCompatibility, Target: DefaultTarget}
	}
	if h > CompatMaxHeight {
		return Quality{Mode: model.ModeMaximum, Target: h}
	}
	return Quality{Mode: model.ModeCompatibility, Target: h}
}

func (q Quality) String() string {
	if q.Target == 0 {
		return string(q.Mode)
	}
	return string(q.Mode) + "/" + strconv.Itoa(q.Target) + "p"
}
