package catalog

// Category ids in the canonical two-class space. 0 is reserved by COCO.
const (
	CategoryShark = 1
	CategoryHuman = 2
)

// Catalog is one COCO annotation document, either per source or merged.
// Field names are a wire contract with downstream loaders.
type Catalog struct {
	Info        Info         `json:"info"`
	Images      []Image      `json:"images"`
	Annotations []Annotation `json:"annotations"`
	Categories  []Category   `json:"categories"`
	Licenses    []License    `json:"licenses"`
}

// Info describes where a catalog came from.
type Info struct {
	Year        int    `json:"year"`
	Version     string `json:"version"`
	Description string `json:"description"`
	Contributor string `json:"contributor"`
	URL         string `json:"url"`
	DateCreated string `json:"date_created"`
}

// Image is one sampled frame of a source video.
type Image struct {
	ID           int64  `json:"id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileName     string `json:"file_name"`
	License      int    `json:"license"`
	FlickrURL    string `json:"flickr_url"`
	CocoURL      string `json:"coco_url"`
	DateCaptured string `json:"date_captured"`
}

// Annotation is one admitted rectangle on one frame.
type Annotation struct {
	ID           int64       `json:"id"`
	ImageID      int64       `json:"image_id"`
	CategoryID   int         `json:"category_id"`
	Segmentation [][]float64 `json:"segmentation"`
	Area         float64     `json:"area"`
	BBox         []float64   `json:"bbox"` // x, y, w, h
	IsCrowd      int         `json:"iscrowd"`
}

// Category is a COCO category entry.
type Category struct {
	Supercategory string `json:"supercategory"`
	ID            int    `json:"id"`
	Name          string `json:"name"`
}

// License is a COCO license entry.
type License struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// DefaultCategories returns the fixed category list shared by every catalog.
func DefaultCategories() []Category {
	return []Category{
		{Supercategory: "object_label", ID: CategoryShark, Name: "shark"},
		{Supercategory: "object_label", ID: CategoryHuman, Name: "human"},
	}
}

// DefaultLicenses returns the fixed license list shared by every catalog.
func DefaultLicenses() []License {
	return []License{{ID: 0, Name: "Unknown License", URL: ""}}
}

// IsEmpty reports whether c carries no images, annotations or metadata.
// An empty catalog is the identity element of Merge.
func (c *Catalog) IsEmpty() bool {
	return c == nil || (len(c.Images) == 0 && len(c.Annotations) == 0 && len(c.Categories) == 0 && len(c.Licenses) == 0)
}

// AnnotationsByImage groups annotation indexes by image id.
func (c *Catalog) AnnotationsByImage() map[int64][]int {
	idx := make(map[int64][]int)
	for i, a := range c.Annotations {
		idx[a.ImageID] = append(idx[a.ImageID], i)
	}
	return idx
}

// rectangle geometry helpers

func rectSegmentation(x, y, w, h float64) [][]float64 {
	return [][]float64{{x, y, x + w, y, x + w, y + h, x, y + h}}
}
