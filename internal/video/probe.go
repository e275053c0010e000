package video

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

// FFProbe reads video metadata with ffprobe. It implements
// catalog.VideoProber.
type FFProbe struct {
	Path   string
	Runner Runner
}

// NewFFProbe returns a prober using the given binary, or "ffprobe".
func NewFFProbe(path string) *FFProbe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFProbe{Path: path, Runner: ExecRunner{}}
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe returns the frame size of the first video stream and the container
// duration. Every failure wraps catalog.ErrProbeFailed.
func (p *FFProbe) Probe(ctx context.Context, path string) (catalog.VideoMeta, error) {
	out, err := p.Runner.Run(ctx, p.Path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return catalog.VideoMeta{}, fmt.Errorf("%s: %v: %w", path, err, catalog.ErrProbeFailed)
	}
	return parseProbe(path, out)
}

func parseProbe(path string, out []byte) (catalog.VideoMeta, error) {
	var po probeOutput
	if err := json.Unmarshal(out, &po); err != nil {
		return catalog.VideoMeta{}, fmt.Errorf("%s: decoding ffprobe output: %v: %w", path, err, catalog.ErrProbeFailed)
	}

	for _, s := range po.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return catalog.VideoMeta{}, fmt.Errorf("%s: video stream has size %dx%d: %w", path, s.Width, s.Height, catalog.ErrProbeFailed)
		}
		raw := po.Format.Duration
		if raw == "" {
			raw = s.Duration
		}
		d, err := strconv.ParseFloat(raw, 64)
		if err != nil || d <= 0 {
			return catalog.VideoMeta{}, fmt.Errorf("%s: unusable duration %q: %w", path, raw, catalog.ErrProbeFailed)
		}
		return catalog.VideoMeta{Width: s.Width, Height: s.Height, DurationSeconds: d}, nil
	}
	return catalog.VideoMeta{}, fmt.Errorf("%s: no video stream: %w", path, catalog.ErrProbeFailed)
}
