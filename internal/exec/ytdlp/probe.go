// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ytdlp drives the yt-dlp executable: metadata probes, per-format
// fetches and parsing of its progress output.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/xgrab/internal/exec/procio"
	"github.com/ManuGH/xgrab/internal/log"
	"github.com/ManuGH/xgrab/internal/model"
)

const toolName = "yt-dlp"

// Prober retrieves stream metadata for a URL.
type Prober struct {
	Bin           string
	SocketTimeout time.Duration
	// CookieDir holds transient cookie files; empty means os.TempDir.
	CookieDir string

	now func() time.Time
}

// NewProber returns a Prober for the given binary.
func NewProber(bin string, socketTimeout time.Duration) *Prober {
	if bin == "" {
		bin = "yt-dlp"
	}
	if socketTimeout <= 0 {
		socketTimeout = 30 * time.Second
	}
	return &Prober{Bin: bin, SocketTimeout: socketTimeout, now: time.Now}
}

// ProbeArgs returns the argument list for a metadata dump. The order is fixed.
func ProbeArgs(url, cookieFile string, socketTimeout time.Duration) []string {
	args := []string{
		"--dump-json",
		"--no-playlist",
		"--socket-timeout", strconv.Itoa(int(socketTimeout.Seconds())),
	}
	if cookieFile != "" {
		args = append(args, "--cookies", cookieFile)
	}
	return append(args, "--", url)
}

// Probe runs yt-dlp in JSON dump mode. It never retries. A supplied cookie
// string is written to a temp file that is removed before Probe returns.
func (p *Prober) Probe(ctx context.Context, url, cookies string, tracker procio.Tracker) (model.VideoMetadata, error) {
	logger := log.WithContext(ctx, log.WithComponent("ytdlp"))

	now := time.Now
	if p.now != nil {
		now = p.now
	}
	cookieFile, cleanup, err := WriteCookieFile(p.CookieDir, cookies, now())
	if err != nil {
		return model.VideoMetadata{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	defer cleanup()

	var stdout bytes.Buffer
	res, err := procio.Run(ctx, procio.Command{
		Tool:    toolName,
		Bin:     p.Bin,
		Args:    ProbeArgs(url, cookieFile, p.SocketTimeout),
		Stdout:  &stdout,
		Tracker: tracker,
	})
	if err != nil {
		return model.VideoMetadata{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	if res.ExitCode != 0 {
		return model.VideoMetadata{}, &ProbeError{ExitCode: res.ExitCode, Stderr: strings.Join(res.Stderr, "\n")}
	}

	raw := bytes.TrimSpace(stdout.Bytes())
	if len(raw) == 0 {
		return model.VideoMetadata{}, ErrEmptyOutput
	}
	meta, err := ParseMetadata(raw)
	if err != nil {
		return model.VideoMetadata{}, err
	}
	logger.Info().
		Str(log.FieldURL, url).
		Str("title", meta.Title).
		Int("streams", len(meta.Streams)).
		Dur("duration", res.Duration).
		Msg("metadata probed")
	return meta, nil
}

type infoJSON struct {
	ID      string       `json:"id"`
	Title   string       `json:"title"`
	Formats []formatJSON `json:"formats"`
	formatJSON
}

type formatJSON struct {
	FormatID   string   `json:"format_id"`
	Ext        string   `json:"ext"`
	VCodec     string   `json:"vcodec"`
	ACodec     string   `json:"acodec"`
	Height     *int     `json:"height"`
	Width      *int     `json:"width"`
	ABR        *float64 `json:"abr"`
	TBR        *float64 `json:"tbr"`
	Protocol   string   `json:"protocol"`
	URL        string   `json:"url"`
	FormatNote string   `json:"format_note"`
}

// ParseMetadata decodes one yt-dlp JSON document. Unknown fields are
// ignored. A document without a formats list is treated as a single
// stream described by its top-level fields.
func ParseMetadata(raw []byte) (model.VideoMetadata, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	var info infoJSON
	if err := dec.Decode(&info); err != nil {
		return model.VideoMetadata{}, fmt.Errorf("%w: %w", ErrMalformedMetadata, err)
	}
	if info.ID == "" && info.Title == "" && len(info.Formats) == 0 {
		return model.VideoMetadata{}, fmt.Errorf("%w: document has no id, title or formats", ErrMalformedMetadata)
	}

	formats := info.Formats
	if len(formats) == 0 && info.FormatID != "" {
		formats = []formatJSON{info.formatJSON}
	}

	meta := model.VideoMetadata{
		ID:      info.ID,
		Title:   info.Title,
		Streams: make([]model.StreamDescriptor, 0, len(formats)),
	}
	for _, f := range formats {
		meta.Streams = append(meta.Streams, f.descriptor())
	}
	return meta, nil
}

func (f formatJSON) descriptor() model.StreamDescriptor {
	bitrate := f.ABR
	if bitrate == nil || *bitrate == 0 {
		bitrate = f.TBR
	}
	return model.StreamDescriptor{
		ID:         f.FormatID,
		Ext:        strings.ToLower(f.Ext),
		VideoCodec: normalizeCodec(f.VCodec),
		AudioCodec: normalizeCodec(f.ACodec),
		Height:     f.Height,
		Width:      f.Width,
		Bitrate:    bitrate,
		Protocol:   strings.ToLower(f.Protocol),
		URL:        f.URL,
		Note:       f.FormatNote,
	}
}

func normalizeCodec(c string) string {
	c = strings.TrimSpace(c)
	if strings.EqualFold(c, "none") {
		return ""
	}
	return c
}
