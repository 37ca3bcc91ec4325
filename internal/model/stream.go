// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package model

// StreamDescriptor describes one representation offered by the source.
// Absent codecs are empty strings; absent numerics are nil.
type StreamDescriptor struct {
	ID         string   `json:"id"`
	Ext        string   `json:"ext"`
	VideoCodec string   `json:"vcodec,omitempty"`
	AudioCodec string   `json:"acodec,omitempty"`
	Height     *int     `json:"height,omitempty"`
	Width      *int     `json:"width,omitempty"`
	Bitrate    *float64 `json:"bitrate,omitempty"`
	Protocol   string   `json:"protocol"`
	URL        string   `json:"url"`
	Note       string   `json:"note,omitempty"`
}

// HasVideo reports whether the stream carries a video track.
func (s StreamDescriptor) HasVideo() bool { return s.VideoCodec != "" }

// HasAudio reports whether the stream carries an audio track.
func (s StreamDescriptor) HasAudio() bool { return s.AudioCodec != "" }

// IsCombined reports whether the stream carries both tracks.
func (s StreamDescriptor) IsCombined() bool { return s.HasVideo() && s.HasAudio() }

// IsVideoOnly reports whether the stream carries only video.
func (s StreamDescriptor) IsVideoOnly() bool { return s.HasVideo() && !s.HasAudio() }

// IsAudioOnly reports whether the stream carries only audio.
func (s StreamDescriptor) IsAudioOnly() bool { return !s.HasVideo() && s.HasAudio() }

// HeightOr returns the height or def when unknown.
func (s StreamDescriptor) HeightOr(def int) int {
	if s.Height == nil {
		return def
	}
	return *s.Height
}

// BitrateOr returns the bitrate or def when unknown.
func (s StreamDescriptor) BitrateOr(def float64) float64 {
	if s.Bitrate == nil {
		return def
	}
	return *s.Bitrate
}

// VideoMetadata is the probe result for one URL. Streams keep source order.
type VideoMetadata struct {
	Title   string             `json:"title"`
	ID      string             `json:"id"`
	Streams []StreamDescriptor `json:"streams"`
}

// Lookup returns the stream with the given id.
func (m VideoMetadata) Lookup(id string) (StreamDescriptor, bool) {
	for _, s := range m.Streams {
		if s.ID == id {
			return s, true
		}
	}
	return StreamDescriptor{}, false
}

// SelectionMode names the policy that produced a selection.
type SelectionMode string

const (
	ModeCompatibility SelectionMode = "compatibility"
	ModeMaximum       SelectionMode = "maximum"
)

// StreamSelection is either one combined stream or a video+audio pair.
type StreamSelection struct {
	Combined *StreamDescriptor `json:"combined,omitempty"`
	Video    *StreamDescriptor `json:"video,omitempty"`
	Audio    *StreamDescriptor `json:"audio,omitempty"`
	Mode     SelectionMode     `json:"mode"`
}

// IsCombined reports whether a single stream carries both tracks.
func (s StreamSelection) IsCombined() bool { return s.Combined != nil }

// Streams returns the descriptors in acquisition order.
func (s StreamSelection) Streams() []StreamDescriptor {
	if s.Combined != nil {
		return []StreamDescriptor{*s.Combined}
	}
	out := make([]StreamDescriptor, 0, 2)
	if s.Video != nil {
		out = append(out, *s.Video)
	}
	if s.Audio != nil {
		out = append(out, *s.Audio)
	}
	return out
}

// Shape is a metrics label for the selection.
func (s StreamSelection) Shape() string {
	switch {
	case s.Combined != nil:
		return "combined"
	case s.Video != nil && s.Audio != nil:
		return "separate"
	}
	return "none"
}
