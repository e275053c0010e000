package pipeline

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/db"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/security"
	"github.com/banshee-data/annotation.catalog/internal/split"
)

// SplitManifest is the key-list form of a split written next to the
// per-subset catalogs.
type SplitManifest struct {
	Fractions   split.Fractions         `json:"fractions"`
	Seed        uint64                  `json:"seed"`
	Videos      map[split.Name][]string `json:"videos"`
	Keys        map[split.Name][]int64  `json:"keys"`
	Unassigned  []int64                 `json:"unassigned"`
	Unannotated []int64                 `json:"unannotated"`
}

// ManifestName is the file name of the split manifest.
const ManifestName = "split.json"

// Split partitions the merged catalog by the videos of the video map and
// writes one catalog per subset plus the manifest into splitDir. A zero
// seed draws a random one; the seed used is stored in the manifest.
func (p *Pipeline) Split(mergedPath, videoMapPath, splitDir string, f split.Fractions, seed uint64) (*SplitManifest, []catalog.Failure, error) {
	cat, err := p.LoadCatalog(mergedPath)
	if err != nil {
		return nil, nil, err
	}
	if len(cat.Images) == 0 {
		return nil, nil, fmt.Errorf("%s: %w", mergedPath, catalog.ErrEmptyCatalog)
	}
	vm, err := p.LoadVideoMap(videoMapPath)
	if err != nil {
		return nil, nil, err
	}

	if seed == 0 {
		seed = rand.Uint64()
	}
	res, err := split.Partition(cat, vm.Filenames, f, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, nil, err
	}

	fileNames := make(map[int64]string, len(cat.Images))
	for _, img := range cat.Images {
		fileNames[img.ID] = img.FileName
	}
	var failures []catalog.Failure
	for _, id := range res.Unassigned {
		name := fileNames[id]
		failures = append(failures, catalog.Failure{
			Stage:      catalog.StageSplit,
			Identifier: name,
			Diagnostic: fmt.Sprintf("image %d belongs to no known video %q", id, split.VideoIdentity(name)),
		})
	}

	if err := p.FS.MkdirAll(splitDir, 0o755); err != nil {
		return nil, failures, err
	}
	for _, n := range split.Names() {
		path, err := security.JoinWithin(splitDir, string(n)+".json")
		if err != nil {
			return nil, failures, err
		}
		if err := p.writeJSON(path, res.View(cat, n), false); err != nil {
			return nil, failures, err
		}
	}

	manifest := &SplitManifest{
		Fractions:   f,
		Seed:        seed,
		Videos:      res.Videos,
		Keys:        res.Keys,
		Unassigned:  nonNil(res.Unassigned),
		Unannotated: nonNil(res.Unannotated),
	}
	manifestPath, err := security.JoinWithin(splitDir, ManifestName)
	if err != nil {
		return nil, failures, err
	}
	if err := p.writeJSON(manifestPath, manifest, true); err != nil {
		return nil, failures, err
	}

	p.recordSplits(res, fileNames)
	p.recordFailures(failures)
	monitoring.Infof("split: wrote %s (seed %d)", splitDir, seed)
	return manifest, failures, nil
}

func (p *Pipeline) recordSplits(res *split.Result, fileNames map[int64]string) {
	if p.Ledger == nil {
		return
	}
	images := map[string]int{}
	for _, n := range split.Names() {
		for _, id := range res.Keys[n] {
			images[split.VideoIdentity(fileNames[id])]++
		}
	}
	for _, n := range split.Names() {
		for _, v := range res.Videos[n] {
			if err := p.Ledger.RecordSplit(p.RunID, db.SplitRow{Video: v, Split: string(n), Images: images[v]}); err != nil {
				monitoring.Errorf("ledger: %v", err)
			}
		}
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
