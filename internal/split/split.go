// Package split partitions a merged catalog into train, validation and test
// subsets at video granularity. Every frame of a video lands in the same
// subset so near-duplicate frames never leak across splits.
package split

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// Name identifies one subset.
type Name string

const (
	Train      Name = "train"
	Validation Name = "validation"
	Test       Name = "test"
)

// Names lists the subsets in output order.
func Names() []Name { return []Name{Train, Validation, Test} }

// duplicateMarker is appended to the stem of a second annotation file for
// the same video.
const duplicateMarker = "_2"

// Fractions are the train and validation shares of the video list. The
// test share is whatever remains.
type Fractions struct {
	Train      float64 `json:"train"`
	Validation float64 `json:"validation"`
}

// Validate checks both shares are in [0, 1] and sum to at most 1.
func (f Fractions) Validate() error {
	if f.Train < 0 || f.Train > 1 {
		return fmt.Errorf("train fraction must be between 0 and 1, got %g", f.Train)
	}
	if f.Validation < 0 || f.Validation > 1 {
		return fmt.Errorf("validation fraction must be between 0 and 1, got %g", f.Validation)
	}
	if f.Train+f.Validation > 1 {
		return fmt.Errorf("train and validation fractions sum to %g, more than 1", f.Train+f.Validation)
	}
	return nil
}

// VideoIdentityFromSource maps an annotation file stem to the video it
// annotates: "clip_2" and "clip" both annotate clip.
func VideoIdentityFromSource(stem string) string {
	if trimmed := strings.TrimSuffix(stem, duplicateMarker); trimmed != "" {
		return trimmed
	}
	return stem
}

// VideoIdentity derives the video identity of a frame image from its file
// name "<stem>_<frame>.jpg".
func VideoIdentity(fileName string) string {
	base := filepath.Base(fileName)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if i := strings.LastIndexByte(stem, '_'); i > 0 && isDigits(stem[i+1:]) {
		stem = stem[:i]
	}
	return VideoIdentityFromSource(stem)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Result is the outcome of one partition.
type Result struct {
	// Videos holds the video identities of each subset.
	Videos map[Name][]string
	// Keys holds the sorted image ids of each subset.
	Keys map[Name][]int64
	// Unassigned are annotated images whose video is in no subset.
	Unassigned []int64
	// Unannotated are images without annotations; they are never split.
	Unannotated []int64

	membership map[int64]Name
}

// Partition shuffles videos once and cuts the shuffled list into
// floor(N*train) training videos, floor(N*validation) validation videos and
// the rest for test. Each annotated image is then assigned by the identity
// of its file name. rng may be nil to use the global source.
func Partition(cat *catalog.Catalog, videos []string, f Fractions, rng *rand.Rand) (*Result, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("partition: %w", catalog.ErrEmptyCatalog)
	}

	// sorted and deduplicated first so a seeded rng reproduces a split
	ids := slices.Clone(videos)
	sort.Strings(ids)
	ids = slices.Compact(ids)

	shuffle := rand.Shuffle
	if rng != nil {
		shuffle = rng.Shuffle
	}
	shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

	nTrain := int(float64(len(ids)) * f.Train)
	nValid := int(float64(len(ids)) * f.Validation)

	res := &Result{
		Videos: map[Name][]string{
			Train:      ids[:nTrain],
			Validation: ids[nTrain : nTrain+nValid],
			Test:       ids[nTrain+nValid:],
		},
		Keys:       map[Name][]int64{Train: {}, Validation: {}, Test: {}},
		membership: make(map[int64]Name),
	}

	owner := make(map[string]Name, len(ids))
	for _, n := range Names() {
		for _, v := range res.Videos[n] {
			owner[v] = n
		}
	}

	annotated := cat.AnnotationsByImage()
	for _, img := range cat.Images {
		if len(annotated[img.ID]) == 0 {
			monitoring.Warnf("split: image %d (%s) has no annotation", img.ID, img.FileName)
			res.Unannotated = append(res.Unannotated, img.ID)
			continue
		}
		video := VideoIdentity(img.FileName)
		n, ok := owner[video]
		if !ok {
			monitoring.Errorf("split: image %d (%s) belongs to unknown video %q", img.ID, img.FileName, video)
			res.Unassigned = append(res.Unassigned, img.ID)
			continue
		}
		res.Keys[n] = append(res.Keys[n], img.ID)
		res.membership[img.ID] = n
	}
	for _, n := range Names() {
		slices.Sort(res.Keys[n])
	}
	slices.Sort(res.Unassigned)
	slices.Sort(res.Unannotated)

	monitoring.Infof("split: %d videos -> train %d, validation %d, test %d; images %d/%d/%d",
		len(ids), len(res.Videos[Train]), len(res.Videos[Validation]), len(res.Videos[Test]),
		len(res.Keys[Train]), len(res.Keys[Validation]), len(res.Keys[Test]))
	return res, nil
}

// SplitOf returns the subset an image was assigned to.
func (r *Result) SplitOf(imageID int64) (Name, bool) {
	n, ok := r.membership[imageID]
	return n, ok
}

// View materialises the catalog of one subset: its images in catalog order,
// their annotations, and the shared metadata.
func (r *Result) View(cat *catalog.Catalog, n Name) *catalog.Catalog {
	out := &catalog.Catalog{
		Info:        cat.Info,
		Images:      []catalog.Image{},
		Annotations: []catalog.Annotation{},
		Categories:  slices.Clone(cat.Categories),
		Licenses:    slices.Clone(cat.Licenses),
	}
	for _, img := range cat.Images {
		if r.membership[img.ID] == n {
			out.Images = append(out.Images, img)
		}
	}
	for _, ann := range cat.Annotations {
		if r.membership[ann.ImageID] == n {
			out.Annotations = append(out.Annotations, ann)
		}
	}
	return out
}
