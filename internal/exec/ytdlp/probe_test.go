// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInfo = `{
  "id": "dQw4w9WgXcQ",
  "title": "Sample Clip",
  "extractor": "youtube",
  "formats": [
    {"format_id": "sb0", "ext": "mhtml", "vcodec": "none", "acodec": "none", "protocol": "mhtml", "url": "https://i.ytimg.com/sb"},
    {"format_id": "140", "ext": "m4a", "vcodec": "none", "acodec": "mp4a.40.2", "abr": 129.5, "protocol": "https", "url": "https://r1/140"},
    {"format_id": "137", "ext": "mp4", "vcodec": "avc1.640028", "acodec": "none", "height": 1080, "width": 1920, "tbr": 4400.1, "protocol": "https", "url": "https://r1/137", "format_note": "1080p"},
    {"format_id": "18", "ext": "mp4", "vcodec": "avc1.42001E", "acodec": "mp4a.40.2", "height": 360, "width": 640, "protocol": "https", "url": "https://r1/18"}
  ]
}`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(sampleInfo))
	require.NoError(t, err)

	assert.Equal(t, "Sample Clip", meta.Title)
	assert.Equal(t, "dQw4w9WgXcQ", meta.ID)
	require.Len(t, meta.Streams, 4)

	audio := meta.Streams[1]
	assert.Equal(t, "140", audio.ID)
	assert.Empty(t, audio.VideoCodec)
	assert.True(t, audio.IsAudioOnly())
	require.NotNil(t, audio.Bitrate)
	assert.InDelta(t, 129.5, *audio.Bitrate, 0.01)

	video := meta.Streams[2]
	assert.True(t, video.IsVideoOnly())
	assert.Equal(t, 1080, video.HeightOr(0))
	require.NotNil(t, video.Bitrate)
	assert.InDelta(t, 4400.1, *video.Bitrate, 0.01)

	assert.True(t, meta.Streams[3].IsCombined())
	assert.Nil(t, meta.Streams[3].Bitrate)
}

func TestParseMetadataSingleFormat(t *testing.T) {
	meta, err := ParseMetadata([]byte(`{"id":"x","title":"t","format_id":"0","ext":"mp4","vcodec":"h264","acodec":"aac","height":720,"protocol":"https","url":"https://cdn/x.mp4"}`))
	require.NoError(t, err)
	require.Len(t, meta.Streams, 1)
	assert.Equal(t, "https://cdn/x.mp4", meta.Streams[0].URL)
}

func TestParseMetadataMalformed(t *testing.T) {
	_, err := ParseMetadata([]byte(`{"id": "x", "formats": [`))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedMetadata))
	assert.True(t, errors.Is(err, ErrProbeFailed))

	_, err = ParseMetadata([]byte(`[]`))
	assert.ErrorIs(t, err, ErrMalformedMetadata)
}

func TestProbeArgsDeterministic(t *testing.T) {
	args := ProbeArgs("https://youtu.be/x", "/tmp/c.txt", 30*time.Second)
	assert.Equal(t, []string{
		"--dump-json", "--no-playlist", "--socket-timeout", "30",
		"--cookies", "/tmp/c.txt", "--", "https://youtu.be/x",
	}, args)
	assert.Equal(t, args, ProbeArgs("https://youtu.be/x", "/tmp/c.txt", 30*time.Second))
	assert.NotContains(t, ProbeArgs("u", "", time.Second), "--cookies")
}

// probeScript records its argv (one per line) then behaves per mode.
func probeScript(t *testing.T, argsFile, mode string) string {
	body := `for a in "$@"; do echo "$a" >> ` + argsFile + `; done
`
	switch mode {
	case "ok":
		body += "cat <<'JSON'\n" + sampleInfo + "\nJSON\n"
	case "fail":
		body += "echo 'ERROR: Video unavailable' >&2\nexit 1\n"
	case "empty":
		body += "exit 0\n"
	case "garbage":
		body += "echo 'not json at all'\n"
	}
	return writeScript(t, body)
}

func cookiePathFromArgs(t *testing.T, argsFile string) string {
	t.Helper()
	raw, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	for i, l := range lines {
		if l == "--cookies" && i+1 < len(lines) {
			return lines[i+1]
		}
	}
	t.Fatal("no --cookies argument recorded")
	return ""
}

func TestProbe(t *testing.T) {
	for _, mode := range []string{"ok", "fail", "empty", "garbage"} {
		t.Run(mode, func(t *testing.T) {
			argsFile := filepath.Join(t.TempDir(), "args")
			p := NewProber(probeScript(t, argsFile, mode), 5*time.Second)
			p.CookieDir = t.TempDir()

			meta, err := p.Probe(context.Background(), "https://youtu.be/x", "SID=abc", nil)

			switch mode {
			case "ok":
				require.NoError(t, err)
				assert.Len(t, meta.Streams, 4)
			case "fail":
				var pe *ProbeError
				require.ErrorAs(t, err, &pe)
				assert.Equal(t, 1, pe.ExitCode)
				assert.Contains(t, pe.Stderr, "Video unavailable")
				assert.ErrorIs(t, err, ErrProbeFailed)
			case "empty":
				assert.ErrorIs(t, err, ErrEmptyOutput)
			case "garbage":
				assert.ErrorIs(t, err, ErrMalformedMetadata)
			}

			// cookie file is gone on every path
			_, statErr := os.Stat(cookiePathFromArgs(t, argsFile))
			assert.True(t, os.IsNotExist(statErr))
			entries, err := os.ReadDir(p.CookieDir)
			require.NoError(t, err)
			assert.Empty(t, entries)
		})
	}
}
