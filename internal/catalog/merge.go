package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/banshee-data/annotation.catalog/internal/fsutil"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// Merger folds catalogs into one accumulator. IDs are globally unique by
// construction, so merging never renumbers: images and annotations are
// concatenated in input order and metadata is taken from the first
// non-empty catalog.
type Merger struct {
	acc      Catalog
	started  bool
	imageIDs map[int64]struct{}
	annIDs   map[int64]struct{}
}

// NewMerger returns an empty accumulator.
func NewMerger() *Merger {
	return &Merger{
		imageIDs: make(map[int64]struct{}),
		annIDs:   make(map[int64]struct{}),
	}
}

// Add merges c into the accumulator. A catalog whose metadata diverges or
// whose ids are already present is refused as a whole and the accumulator
// is left unchanged.
func (m *Merger) Add(c *Catalog) error {
	if c.IsEmpty() {
		return nil
	}
	if m.started {
		if !slices.Equal(m.acc.Categories, c.Categories) {
			return fmt.Errorf("categories %v differ from %v: %w", c.Categories, m.acc.Categories, ErrMetadataMismatch)
		}
		if !slices.Equal(m.acc.Licenses, c.Licenses) {
			return fmt.Errorf("licenses %v differ from %v: %w", c.Licenses, m.acc.Licenses, ErrMetadataMismatch)
		}
	}

	newImages := make(map[int64]struct{}, len(c.Images))
	for _, img := range c.Images {
		if _, dup := m.imageIDs[img.ID]; dup {
			return fmt.Errorf("image id %d already merged: %w", img.ID, ErrIDCollision)
		}
		if _, dup := newImages[img.ID]; dup {
			return fmt.Errorf("image id %d repeated within catalog: %w", img.ID, ErrIDCollision)
		}
		newImages[img.ID] = struct{}{}
	}
	newAnns := make(map[int64]struct{}, len(c.Annotations))
	for _, ann := range c.Annotations {
		if _, dup := m.annIDs[ann.ID]; dup {
			return fmt.Errorf("annotation id %d already merged: %w", ann.ID, ErrIDCollision)
		}
		if _, dup := newAnns[ann.ID]; dup {
			return fmt.Errorf("annotation id %d repeated within catalog: %w", ann.ID, ErrIDCollision)
		}
		newAnns[ann.ID] = struct{}{}
	}

	if !m.started {
		m.acc.Info = c.Info
		m.acc.Categories = slices.Clone(c.Categories)
		m.acc.Licenses = slices.Clone(c.Licenses)
		m.started = true
	}
	m.acc.Images = append(m.acc.Images, c.Images...)
	m.acc.Annotations = append(m.acc.Annotations, c.Annotations...)
	for id := range newImages {
		m.imageIDs[id] = struct{}{}
	}
	for id := range newAnns {
		m.annIDs[id] = struct{}{}
	}
	return nil
}

// Result returns the merged catalog. Image and annotation lists are never
// nil so the JSON form always carries both arrays.
func (m *Merger) Result() *Catalog {
	out := m.acc
	if out.Images == nil {
		out.Images = []Image{}
	}
	if out.Annotations == nil {
		out.Annotations = []Annotation{}
	}
	return &out
}

// Merge folds catalogs left to right. Refused catalogs are skipped; their
// errors are joined into the returned error alongside a usable result.
func Merge(catalogs ...*Catalog) (*Catalog, error) {
	m := NewMerger()
	var errs []error
	for i, c := range catalogs {
		if err := m.Add(c); err != nil {
			errs = append(errs, fmt.Errorf("catalog %d: %w", i, err))
		}
	}
	return m.Result(), errors.Join(errs...)
}

// DecodeCatalog parses a catalog document.
func DecodeCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// MergeFiles reads and merges catalog files in the given order. Files that
// cannot be read, parsed or merged are skipped and reported as failures.
// An empty merge result is ErrEmptyCatalog.
func MergeFiles(fsys fsutil.FileSystem, paths []string) (*Catalog, []Failure, error) {
	m := NewMerger()
	var failures []Failure
	for _, p := range paths {
		data, err := fsys.ReadFile(p)
		if err == nil {
			var c *Catalog
			if c, err = DecodeCatalog(data); err == nil {
				err = m.Add(c)
			}
		}
		if err != nil {
			monitoring.Errorf("merge: skipping %s: %v", p, err)
			failures = append(failures, NewFailure(StageMerge, p, err))
			continue
		}
		monitoring.Infof("merge: added %s", p)
	}

	merged := m.Result()
	if len(merged.Images) == 0 {
		return merged, failures, fmt.Errorf("merged %d files: %w", len(paths), ErrEmptyCatalog)
	}
	return merged, failures, nil
}
