package pipeline

import (
	"context"
	"errors"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// Paths are the inputs and outputs of a full run.
type Paths struct {
	ViaDir       string
	VideoDir     string
	CocoDir      string
	MergedPath   string
	FramesDir    string
	VideoMapPath string
	LogsDir      string
}

// Summary collects what a full run produced.
type Summary struct {
	Convert  *ConvertResult
	Merged   *catalog.Catalog
	Failures map[catalog.Stage][]catalog.Failure
	LogFiles []string
}

// FailureCount is the number of failures across all stages.
func (s *Summary) FailureCount() int {
	n := 0
	for _, f := range s.Failures {
		n += len(f)
	}
	return n
}

// RunAll converts, merges, extracts frames and writes the video map, in
// that order, then writes one failure log per stage that had failures.
// Per-item failures never stop the run; an empty merged catalog does.
func (p *Pipeline) RunAll(ctx context.Context, paths Paths) (*Summary, error) {
	sum := &Summary{Failures: map[catalog.Stage][]catalog.Failure{}}

	monitoring.Infof("run: converting %s", paths.ViaDir)
	conv, err := p.ConvertAll(ctx, paths.ViaDir, paths.VideoDir, paths.CocoDir)
	if err != nil {
		return sum, err
	}
	sum.Convert = conv
	sum.Failures[catalog.StageConvert] = conv.Failures

	monitoring.Infof("run: merging %s", paths.CocoDir)
	merged, mergeFailures, mergeErr := p.MergeAll(paths.CocoDir, paths.MergedPath)
	sum.Merged = merged
	sum.Failures[catalog.StageMerge] = mergeFailures
	if mergeErr != nil && !errors.Is(mergeErr, catalog.ErrEmptyCatalog) {
		return sum, mergeErr
	}

	if mergeErr == nil {
		monitoring.Infof("run: extracting frames into %s", paths.FramesDir)
		frameFailures, err := p.ExtractAllFrames(ctx, paths.ViaDir, paths.VideoDir, paths.FramesDir)
		sum.Failures[catalog.StageFrames] = frameFailures
		if err != nil {
			return sum, err
		}

		monitoring.Infof("run: writing video map %s", paths.VideoMapPath)
		if _, err := p.WriteVideoMap(paths.ViaDir, paths.VideoMapPath); err != nil {
			return sum, err
		}
	}

	for _, stage := range []catalog.Stage{catalog.StageConvert, catalog.StageMerge, catalog.StageFrames} {
		path, err := p.WriteFailureLog(paths.LogsDir, stage, sum.Failures[stage])
		if err != nil {
			monitoring.Errorf("run: writing %s failure log: %v", stage, err)
			continue
		}
		if path != "" {
			sum.LogFiles = append(sum.LogFiles, path)
		}
	}
	return sum, mergeErr
}
