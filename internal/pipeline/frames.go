package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/security"
)

// ExtractAllFrames samples the video of every annotation file below viaDir
// into framesDir. Frames are named after the annotation file, so a video
// annotated twice ("clip" and "clip_2") is extracted twice.
func (p *Pipeline) ExtractAllFrames(ctx context.Context, viaDir, videoDir, framesDir string) ([]catalog.Failure, error) {
	files, err := p.Discover(viaDir)
	if err != nil {
		return nil, err
	}
	if err := p.FS.MkdirAll(framesDir, 0o755); err != nil {
		return nil, err
	}

	digits := p.Assembler.Options().FrameNameDigits
	var failures []catalog.Failure
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if err := p.extractOne(ctx, path, videoDir, framesDir, digits); err != nil {
			monitoring.Errorf("frames: skipping %s: %v", path, err)
			failures = append(failures, catalog.NewFailure(catalog.StageFrames, path, err))
		}
	}
	p.recordFailures(failures)

	monitoring.Infof("frames: %d of %d videos extracted", len(files)-len(failures), len(files))
	return failures, nil
}

func (p *Pipeline) extractOne(ctx context.Context, path, videoDir, framesDir string, digits int) error {
	data, err := p.FS.ReadFile(path)
	if err != nil {
		return err
	}
	stem := catalog.SourceName(path)
	src, err := catalog.ParseSource(stem, data)
	if err != nil {
		return err
	}
	videoPath, err := security.JoinWithin(videoDir, src.VideoFilename)
	if err != nil {
		return err
	}
	pattern, err := security.JoinWithin(framesDir, catalog.FramePattern(stem, digits))
	if err != nil {
		return err
	}
	monitoring.Infof("frames: %s -> %s", videoPath, pattern)
	if err := p.Extractor.Extract(ctx, videoPath, pattern); err != nil {
		return fmt.Errorf("%s -> %s: %w", videoPath, pattern, err)
	}
	return nil
}
