package video

import (
	"context"
	"fmt"
	"strconv"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

// FrameExtractor samples a video into numbered JPEG files with ffmpeg.
// Frame numbers start at 0 so file n is the image at FrameIndex n.
type FrameExtractor struct {
	Path   string
	Rate   float64
	Runner Runner
}

// NewFrameExtractor returns an extractor sampling at rate frames per
// second; ffmpeg defaults to "ffmpeg" and rate to the catalog rate.
func NewFrameExtractor(path string, rate float64) *FrameExtractor {
	if path == "" {
		path = "ffmpeg"
	}
	if rate <= 0 {
		rate = catalog.FramesPerSecond
	}
	return &FrameExtractor{Path: path, Rate: rate, Runner: ExecRunner{}}
}

// Args returns the ffmpeg arguments for one extraction.
func (e *FrameExtractor) Args(videoPath, outPattern string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-r", strconv.FormatFloat(e.Rate, 'f', -1, 64),
		"-start_number", "0",
		outPattern,
	}
}

// Extract writes the frames of videoPath to outPattern, a printf-style
// path such as "frames/clip_%05d.jpg".
func (e *FrameExtractor) Extract(ctx context.Context, videoPath, outPattern string) error {
	if _, err := e.Runner.Run(ctx, e.Path, e.Args(videoPath, outPattern)...); err != nil {
		return fmt.Errorf("extracting %s: %w", videoPath, err)
	}
	return nil
}
