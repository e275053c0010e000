// Package pipeline drives a catalog run over a directory of VIA exports:
// per-source conversion, merge, frame extraction, the video map and the
// dataset split. Each stage skips what it cannot process, records the
// failure and carries on; failures are surfaced together at the end.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/db"
	"github.com/banshee-data/annotation.catalog/internal/fsutil"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// FrameExtractor samples a video into frame images named by a printf-style
// pattern.
type FrameExtractor interface {
	Extract(ctx context.Context, videoPath, outPattern string) error
}

// Recorder persists what a run did. *db.DB implements it.
type Recorder interface {
	RecordSource(runID string, s db.SourceRow) error
	RecordFailure(runID string, f catalog.Failure) error
	RecordSplit(runID string, s db.SplitRow) error
}

// Pipeline holds the collaborators of a run.
type Pipeline struct {
	FS        fsutil.FileSystem
	Assembler *catalog.Assembler
	Prober    catalog.VideoProber
	Extractor FrameExtractor

	// Ledger is optional; RunID names the ledger run being recorded.
	Ledger Recorder
	RunID  string
}

// New returns a pipeline without a ledger.
func New(fsys fsutil.FileSystem, assembler *catalog.Assembler, prober catalog.VideoProber, extractor FrameExtractor) *Pipeline {
	return &Pipeline{FS: fsys, Assembler: assembler, Prober: prober, Extractor: extractor}
}

// WithLedger returns a copy of p recording into ledger under runID.
func (p *Pipeline) WithLedger(ledger Recorder, runID string) *Pipeline {
	cp := *p
	cp.Ledger = ledger
	cp.RunID = runID
	return &cp
}

// Discover lists the annotation files below dir in sorted order. The index
// of a file in this list is its SourceId.
func (p *Pipeline) Discover(dir string) ([]string, error) {
	files, err := p.FS.ListFiles(dir, ".json")
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	return files, nil
}

func (p *Pipeline) recordFailures(failures []catalog.Failure) {
	if p.Ledger == nil {
		return
	}
	for _, f := range failures {
		if err := p.Ledger.RecordFailure(p.RunID, f); err != nil {
			monitoring.Errorf("ledger: %v", err)
		}
	}
}

func (p *Pipeline) writeJSON(path string, v interface{}, indent bool) error {
	var (
		data []byte
		err  error
	)
	if indent {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := p.FS.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return p.FS.WriteFile(path, data, 0o644)
}
