package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/split"
)

// VideoMap lists the annotated videos and the SourceIds that annotate
// each. It is the input of the dataset split.
type VideoMap struct {
	// Filenames are video identities in first-seen order.
	Filenames []string         `json:"filenames"`
	IDMap     map[string][]int `json:"id_map"`
}

// BuildVideoMap derives the video map from the annotation files below
// viaDir using the same sorted order that assigns SourceIds.
func (p *Pipeline) BuildVideoMap(viaDir string) (*VideoMap, error) {
	files, err := p.Discover(viaDir)
	if err != nil {
		return nil, err
	}
	vm := &VideoMap{Filenames: []string{}, IDMap: map[string][]int{}}
	for i, path := range files {
		video := split.VideoIdentityFromSource(catalog.SourceName(path))
		if _, seen := vm.IDMap[video]; !seen {
			vm.Filenames = append(vm.Filenames, video)
		}
		vm.IDMap[video] = append(vm.IDMap[video], i)
	}
	return vm, nil
}

// WriteVideoMap builds the video map of viaDir and writes it to path.
func (p *Pipeline) WriteVideoMap(viaDir, path string) (*VideoMap, error) {
	vm, err := p.BuildVideoMap(viaDir)
	if err != nil {
		return nil, err
	}
	if err := p.writeJSON(path, vm, true); err != nil {
		return nil, err
	}
	return vm, nil
}

// LoadVideoMap reads a video map file.
func (p *Pipeline) LoadVideoMap(path string) (*VideoMap, error) {
	data, err := p.FS.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var vm VideoMap
	if err := json.Unmarshal(data, &vm); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return &vm, nil
}
