package pipeline

import (
	"context"
	"fmt"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/db"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/security"
	"github.com/banshee-data/annotation.catalog/internal/split"
)

// CocoSuffix is appended to the annotation file stem to name its catalog.
const CocoSuffix = "_coco.json"

// SourceResult describes one converted source.
type SourceResult struct {
	SourceID    int
	Path        string
	Stem        string
	Video       string
	OutPath     string
	Images      int
	Annotations int
	Stats       catalog.FilterStats
}

// ConvertResult is the outcome of ConvertAll.
type ConvertResult struct {
	Sources  []SourceResult
	Failures []catalog.Failure
}

// ConvertAll converts every annotation file below viaDir into its own
// catalog file in cocoDir. SourceIds follow the sorted file order, so a
// failed file still consumes its id and a re-run reproduces the others.
func (p *Pipeline) ConvertAll(ctx context.Context, viaDir, videoDir, cocoDir string) (*ConvertResult, error) {
	files, err := p.Discover(viaDir)
	if err != nil {
		return nil, err
	}
	if err := p.FS.MkdirAll(cocoDir, 0o755); err != nil {
		return nil, err
	}

	res := &ConvertResult{}
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		sr, err := p.ConvertOne(ctx, path, i, videoDir, cocoDir)
		if err != nil {
			monitoring.Errorf("convert: skipping source %d (%s): %v", i, path, err)
			res.Failures = append(res.Failures, catalog.NewFailure(catalog.StageConvert, path, err).WithSourceID(i))
			continue
		}
		res.Sources = append(res.Sources, *sr)
		if p.Ledger != nil {
			row := db.SourceRow{
				SourceID:    sr.SourceID,
				Path:        sr.Path,
				Video:       split.VideoIdentityFromSource(sr.Stem),
				Images:      sr.Images,
				Annotations: sr.Annotations,
				Rejected:    sr.Stats.RejectedTotal(),
			}
			if err := p.Ledger.RecordSource(p.RunID, row); err != nil {
				monitoring.Errorf("ledger: %v", err)
			}
		}
	}
	p.recordFailures(res.Failures)

	monitoring.Infof("convert: %d of %d sources converted, %d failed", len(res.Sources), len(files), len(res.Failures))
	return res, nil
}

// ConvertOne converts a single annotation file with the given SourceId.
func (p *Pipeline) ConvertOne(ctx context.Context, path string, sourceID int, videoDir, cocoDir string) (*SourceResult, error) {
	data, err := p.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, catalog.ErrMalformedSource)
	}
	stem := catalog.SourceName(path)
	src, err := catalog.ParseSource(stem, data)
	if err != nil {
		return nil, err
	}

	videoPath, err := security.JoinWithin(videoDir, src.VideoFilename)
	if err != nil {
		return nil, err
	}
	meta, err := p.Prober.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	cat, stats, err := p.Assembler.Assemble(src, sourceID, meta)
	if err != nil {
		return nil, err
	}

	outPath, err := security.JoinWithin(cocoDir, stem+CocoSuffix)
	if err != nil {
		return nil, err
	}
	if err := p.writeJSON(outPath, cat, false); err != nil {
		return nil, err
	}

	return &SourceResult{
		SourceID:    sourceID,
		Path:        path,
		Stem:        stem,
		Video:       videoPath,
		OutPath:     outPath,
		Images:      len(cat.Images),
		Annotations: len(cat.Annotations),
		Stats:       stats,
	}, nil
}
