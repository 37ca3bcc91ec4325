// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package selection chooses which streams of a probed video to acquire.
//
// Selection is a pure function of the metadata and the quality string.
// Compatibility mode restricts output to H.264 + AAC in MP4/M4A up to
// 1080p. Maximum-quality mode has no codec restriction and never falls
// back to the compatibility allow-list.
package selection

import (
	"errors"
	"fmt"

	"github.com/ManuGH/xgrab/internal/model"
)

var (
	ErrNoCompatibleFormat = errors.New("no compatible format found")
	ErrNoFormatFound      = errors.New("no format found")
	ErrStaleSelection     = errors.New("selection does not match metadata")
)

// Select picks the streams to acquire for meta under the quality string.
func Select(meta model.VideoMetadata, quality string) (model.StreamSelection, error) {
	q := ParseQuality(quality)
	if q.Mode == model.ModeMaximum {
		return selectMaximum(meta.Streams, q.Target)
	}
	return selectCompatible(meta.Streams, q.Target)
}

func selectCompatible(all []model.StreamDescriptor, target int) (model.StreamSelection, error) {
	streams := filter(all, Fetchable)

	combined := filter(streams, func(s model.StreamDescriptor) bool { return CompatCombined(s, target) })
	if len(combined) > 0 {
		byHeightDesc(combined)
		return combinedSel(combined[0], model.ModeCompatibility), nil
	}

	videos := filter(streams, func(s model.StreamDescriptor) bool { return CompatVideo(s, target) })
	audios := filter(streams, CompatAudio)
	switch {
	case len(videos) == 0:
		return model.StreamSelection{}, fmt.Errorf("%w: no H.264/MP4 stream at or below %dp", ErrNoCompatibleFormat, target)
	case len(audios) == 0:
		return model.StreamSelection{}, fmt.Errorf("%w: no AAC/M4A audio stream", ErrNoCompatibleFormat)
	}
	byHeightDesc(videos)
	byBitrateDesc(audios)
	return pairSel(videos[0], audios[0], model.ModeCompatibility), nil
}

func selectMaximum(all []model.StreamDescriptor, target int) (model.StreamSelection, error) {
	streams := filter(all, Fetchable)
	combined := filter(streams, model.StreamDescriptor.IsCombined)
	videos := filter(streams, model.StreamDescriptor.IsVideoOnly)
	audios := filter(streams, model.StreamDescriptor.IsAudioOnly)
	byContainerThenBitrate(audios)

	if target > 0 {
		// (a) exact combined, (b) exact separate
		if sel, ok := atHeight(combined, videos, audios, target); ok {
			return sel, nil
		}
		// (c) nearest-below combined, (d) nearest-below separate
		if h := nearestBelow(combined, videos, target); h > 0 {
			if sel, ok := atHeight(combined, videos, audios, h); ok {
				return sel, nil
			}
		}
	}

	// (e) best available overall
	byHeightDesc(combined)
	byHeightDesc(videos)
	var bestCombined, bestVideo *model.StreamDescriptor
	if len(combined) > 0 {
		bestCombined = &combined[0]
	}
	if len(videos) > 0 && len(audios) > 0 {
		bestVideo = &videos[0]
	}
	switch {
	case bestCombined != nil && (bestVideo == nil || bestCombined.HeightOr(0) >= bestVideo.HeightOr(0)):
		return combinedSel(*bestCombined, model.ModeMaximum), nil
	case bestVideo != nil:
		return pairSel(*bestVideo, audios[0], model.ModeMaximum), nil
	}
	return model.StreamSelection{}, fmt.Errorf("%w: no fetchable combined stream or video/audio pair", ErrNoFormatFound)
}

// atHeight prefers a combined stream at exactly h, then a video-only stream
// at h paired with the best audio. Declaration order breaks ties.
func atHeight(combined, videos, audios []model.StreamDescriptor, h int) (model.StreamSelection, bool) {
	for _, s := range combined {
		if s.HeightOr(0) == h {
			return combinedSel(s, model.ModeMaximum), true
		}
	}
	if len(audios) == 0 {
		return model.StreamSelection{}, false
	}
	for _, s := range videos {
		if s.HeightOr(0) == h {
			return pairSel(s, audios[0], model.ModeMaximum), true
		}
	}
	return model.StreamSelection{}, false
}

// nearestBelow returns the greatest known height strictly below target
// among combined and video-only candidates, or 0.
func nearestBelow(combined, videos []model.StreamDescriptor, target int) int {
	best := 0
	for _, group := range [][]model.StreamDescriptor{combined, videos} {
		for _, s := range group {
			if h := s.HeightOr(0); h < target && h > best {
				best = h
			}
		}
	}
	return best
}

func combinedSel(s model.StreamDescriptor, mode model.SelectionMode) model.StreamSelection {
	return model.StreamSelection{Combined: &s, Mode: mode}
}

func pairSel(v, a model.StreamDescriptor, mode model.SelectionMode) model.StreamSelection {
	return model.StreamSelection{Video: &v, Audio: &a, Mode: mode}
}
