package pipeline

import (
	"fmt"
	"path/filepath"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// MergeAll merges every catalog file below cocoDir into mergedPath. The
// merged file itself is skipped when it lives in cocoDir. An empty result
// is returned as catalog.ErrEmptyCatalog and not written.
func (p *Pipeline) MergeAll(cocoDir, mergedPath string) (*catalog.Catalog, []catalog.Failure, error) {
	files, err := p.Discover(cocoDir)
	if err != nil {
		return nil, nil, err
	}
	inputs := make([]string, 0, len(files))
	for _, f := range files {
		if filepath.Clean(f) == filepath.Clean(mergedPath) {
			continue
		}
		inputs = append(inputs, f)
	}

	merged, failures, err := catalog.MergeFiles(p.FS, inputs)
	p.recordFailures(failures)
	if err != nil {
		return merged, failures, err
	}
	if err := p.writeJSON(mergedPath, merged, false); err != nil {
		return merged, failures, fmt.Errorf("writing %s: %w", mergedPath, err)
	}
	monitoring.Infof("merge: %d catalogs -> %s (%d images, %d annotations, %d failed)",
		len(inputs)-len(failures), mergedPath, len(merged.Images), len(merged.Annotations), len(failures))
	return merged, failures, nil
}

// LoadCatalog reads a catalog file.
func (p *Pipeline) LoadCatalog(path string) (*catalog.Catalog, error) {
	data, err := p.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cat, err := catalog.DecodeCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return cat, nil
}
