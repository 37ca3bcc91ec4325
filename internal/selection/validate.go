// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package selection

import (
	"fmt"

	"github.com/ManuGH/xgrab/internal/model"
)

// Validate re-checks sel against the metadata it was derived from: every
// selected stream must still be present unchanged, be fetchable and have
// the shape and codecs its mode requires.
func Validate(meta model.VideoMetadata, sel model.StreamSelection) error {
	switch {
	case sel.Combined != nil && (sel.Video != nil || sel.Audio != nil):
		return fmt.Errorf("%w: both combined and separate streams set", ErrStaleSelection)
	case sel.Combined == nil && (sel.Video == nil || sel.Audio == nil):
		return fmt.Errorf("%w: incomplete video/audio pair", ErrStaleSelection)
	}

	for _, s := range sel.Streams() {
		orig, ok := meta.Lookup(s.ID)
		if !ok {
			return fmt.Errorf("%w: format %s not in metadata", ErrStaleSelection, s.ID)
		}
		if !sameStream(orig, s) {
			return fmt.Errorf("%w: format %s differs from metadata", ErrStaleSelection, s.ID)
		}
		if !Fetchable(s) {
			return fmt.Errorf("%w: format %s has no fetchable URL", ErrStaleSelection, s.ID)
		}
	}

	if sel.Combined != nil {
		if !sel.Combined.IsCombined() {
			return fmt.Errorf("%w: format %s does not carry audio and video", ErrStaleSelection, sel.Combined.ID)
		}
		if sel.Mode == model.ModeCompatibility && !CompatCombined(*sel.Combined, 0) {
			return fmt.Errorf("%w: format %s outside compatibility allow-list", ErrStaleSelection, sel.Combined.ID)
		}
		return nil
	}

	if !sel.Video.IsVideoOnly() || !sel.Audio.IsAudioOnly() {
		return fmt.Errorf("%w: pair %s+%s is not video-only + audio-only", ErrStaleSelection, sel.Video.ID, sel.Audio.ID)
	}
	if sel.Mode == model.ModeCompatibility && (!CompatVideo(*sel.Video, 0) || !CompatAudio(*sel.Audio)) {
		return fmt.Errorf("%w: pair %s+%s outside compatibility allow-list", ErrStaleSelection, sel.Video.ID, sel.Audio.ID)
	}
	return nil
}

func sameStream(a, b model.StreamDescriptor) bool {
	return a.ID == b.ID &&
		a.Ext == b.Ext &&
		a.VideoCodec == b.VideoCodec &&
		a.AudioCodec == b.AudioCodec &&
		a.Protocol == b.Protocol &&
		a.URL == b.URL &&
		eqPtr(a.Height, b.Height) &&
		eqPtr(a.Width, b.Width) &&
		eqPtr(a.Bitrate, b.Bitrate)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
