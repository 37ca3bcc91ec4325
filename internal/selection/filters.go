// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package selection

import (
	"slices"
	"strings"

	"github.com/ManuGH/xgrab/internal/model"
)

var supportedProtocols = []string{"https", "http"}

// audioContainerRank orders audio-only containers, best first.
var audioContainerRank = []string{"webm", "m4a", "mp4", "ogg", "mp3"}

// Fetchable reports whether a stream has a URL and a supported transport.
func Fetchable(s model.StreamDescriptor) bool {
	return strings.TrimSpace(s.URL) != "" && slices.Contains(supportedProtocols, strings.ToLower(s.Protocol))
}

func isCompatVideoCodec(c string) bool {
	c = strings.ToLower(c)
	return strings.HasPrefix(c, "avc1") || strings.HasPrefix(c, "h264")
}

func isCompatAudioCodec(c string) bool {
	c = strings.ToLower(c)
	return strings.HasPrefix(c, "mp4a") || strings.HasPrefix(c, "aac")
}

// compatHeightOK requires a known height within both caps.
func compatHeightOK(s model.StreamDescriptor, target int) bool {
	if s.Height == nil {
		return false
	}
	h := *s.Height
	return h > 0 && h <= CompatMaxHeight && (target == 0 || h <= target)
}

// CompatCombined reports whether s is an allowed combined stream.
func CompatCombined(s model.StreamDescriptor, target int) bool {
	return s.IsCombined() &&
		s.Ext == "mp4" &&
		isCompatVideoCodec(s.VideoCodec) &&
		isCompatAudioCodec(s.AudioCodec) &&
		compatHeightOK(s, target)
}

// CompatVideo reports whether s is an allowed video-only stream.
func CompatVideo(s model.StreamDescriptor, target int) bool {
	return s.IsVideoOnly() &&
		s.Ext == "mp4" &&
		isCompatVideoCodec(s.VideoCodec) &&
		compatHeightOK(s, target)
}

// CompatAudio reports whether s is an allowed audio-only stream.
func CompatAudio(s model.StreamDescriptor) bool {
	return s.IsAudioOnly() && s.Ext == "m4a" && isCompatAudioCodec(s.AudioCodec)
}

func filter(streams []model.StreamDescriptor, keep func(model.StreamDescriptor) bool) []model.StreamDescriptor {
	var out []model.StreamDescriptor
	for _, s := range streams {
		if keep(s) {
			out = append(out, s)
		}
	}
	return out
}

func containerRank(ext string) int {
	if i := slices.Index(audioContainerRank, strings.ToLower(ext)); i >= 0 {
		return i
	}
	return len(audioContainerRank)
}

// byHeightDesc sorts tallest first; equal heights keep declaration order.
func byHeightDesc(streams []model.StreamDescriptor) {
	slices.SortStableFunc(streams, func(a, b model.StreamDescriptor) int {
		return b.HeightOr(0) - a.HeightOr(0)
	})
}

// byBitrateDesc sorts highest bitrate first; unknown bitrate sorts last.
func byBitrateDesc(streams []model.StreamDescriptor) {
	slices.SortStableFunc(streams, func(a, b model.StreamDescriptor) int {
		return compareFloatDesc(a.BitrateOr(-1), b.BitrateOr(-1))
	})
}

// byContainerThenBitrate sorts audio by container preference, then bitrate.
func byContainerThenBitrate(streams []model.StreamDescriptor) {
	slices.SortStableFunc(streams, func(a, b model.StreamDescriptor) int {
		if d := containerRank(a.Ext) - containerRank(b.Ext); d != 0 {
			return d
		}
		return compareFloatDesc(a.BitrateOr(-1), b.BitrateOr(-1))
	})
}

func compareFloatDesc(a, b float64) int {
	switch {
	case a > b:
		return -1
	case a < b:
		return 1
	}
	return 0
}
