// Package report summarises a catalog: annotation counts and box area
// statistics per category, per-split counts, and the charts built from them.
package report

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"text/tabwriter"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

// ErrNoAnnotations is returned by outputs that need at least one box.
var ErrNoAnnotations = errors.New("catalog has no annotations")

// CategoryStats describes the boxes of one category.
type CategoryStats struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Annotations int     `json:"annotations"`
	Images      int     `json:"images"`
	AreaMean    float64 `json:"area_mean"`
	AreaStdDev  float64 `json:"area_stddev"`
	AreaMedian  float64 `json:"area_median"`
	AreaMin     float64 `json:"area_min"`
	AreaMax     float64 `json:"area_max"`
}

// SplitStats counts one subset of a split.
type SplitStats struct {
	Name        string         `json:"name"`
	Images      int            `json:"images"`
	Annotations int            `json:"annotations"`
	ByCategory  map[string]int `json:"by_category"`
}

// Report is the summary of a catalog.
type Report struct {
	Description     string          `json:"description"`
	Images          int             `json:"images"`
	AnnotatedImages int             `json:"annotated_images"`
	Annotations     int             `json:"annotations"`
	Categories      []CategoryStats `json:"categories"`
	Splits          []SplitStats    `json:"splits,omitempty"`
}

// Build summarises cat. Categories appear in catalog order; annotations
// whose category is not declared are counted under "unknown".
func Build(cat *catalog.Catalog) *Report {
	r := &Report{
		Description:     cat.Info.Description,
		Images:          len(cat.Images),
		AnnotatedImages: len(cat.AnnotationsByImage()),
		Annotations:     len(cat.Annotations),
	}

	areas := map[int][]float64{}
	images := map[int]map[int64]struct{}{}
	for _, ann := range cat.Annotations {
		areas[ann.CategoryID] = append(areas[ann.CategoryID], ann.Area)
		if images[ann.CategoryID] == nil {
			images[ann.CategoryID] = map[int64]struct{}{}
		}
		images[ann.CategoryID][ann.ImageID] = struct{}{}
	}

	declared := map[int]bool{}
	for _, c := range cat.Categories {
		declared[c.ID] = true
		r.Categories = append(r.Categories, categoryStats(c.ID, c.Name, areas[c.ID], len(images[c.ID])))
	}
	var undeclared []int
	for id := range areas {
		if !declared[id] {
			undeclared = append(undeclared, id)
		}
	}
	sort.Ints(undeclared)
	for _, id := range undeclared {
		r.Categories = append(r.Categories, categoryStats(id, "unknown", areas[id], len(images[id])))
	}
	return r
}

func categoryStats(id int, name string, areas []float64, images int) CategoryStats {
	cs := CategoryStats{ID: id, Name: name, Annotations: len(areas), Images: images}
	if len(areas) == 0 {
		return cs
	}
	sorted := slices.Clone(areas)
	sort.Float64s(sorted)
	cs.AreaMean, cs.AreaStdDev = stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		cs.AreaStdDev = 0
	}
	cs.AreaMedian = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	cs.AreaMin = sorted[0]
	cs.AreaMax = sorted[len(sorted)-1]
	return cs
}

// AddSplit appends the counts of one split subset.
func (r *Report) AddSplit(name string, sub *catalog.Catalog) {
	names := make(map[int]string, len(sub.Categories))
	for _, c := range sub.Categories {
		names[c.ID] = c.Name
	}
	ss := SplitStats{
		Name:        name,
		Images:      len(sub.Images),
		Annotations: len(sub.Annotations),
		ByCategory:  map[string]int{},
	}
	for _, c := range sub.Categories {
		ss.ByCategory[c.Name] = 0
	}
	for _, ann := range sub.Annotations {
		n, ok := names[ann.CategoryID]
		if !ok {
			n = "unknown"
		}
		ss.ByCategory[n]++
	}
	r.Splits = append(r.Splits, ss)
}

// WriteText prints the report as aligned tables.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "catalog\t%s\n", r.Description)
	fmt.Fprintf(tw, "images\t%d\t(%d annotated)\n", r.Images, r.AnnotatedImages)
	fmt.Fprintf(tw, "annotations\t%d\n\n", r.Annotations)

	fmt.Fprintln(tw, "category\tboxes\timages\tarea mean\tstddev\tmedian\tmin\tmax")
	for _, c := range r.Categories {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.1f\t%.1f\t%.1f\t%.1f\t%.1f\n",
			c.Name, c.Annotations, c.Images, c.AreaMean, c.AreaStdDev, c.AreaMedian, c.AreaMin, c.AreaMax)
	}

	if len(r.Splits) > 0 {
		fmt.Fprintln(tw, "\nsplit\timages\tboxes")
		for _, s := range r.Splits {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", s.Name, s.Images, s.Annotations)
		}
	}
	return tw.Flush()
}
