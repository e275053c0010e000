package catalog

import (
	"context"
	"fmt"

	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/timeutil"
)

// dateLayout is the MM/DD/YYYY form COCO tools expect in info and images.
const dateLayout = "01/02/2006"

// VideoMeta is what the video probe reports about a source video.
type VideoMeta struct {
	Width           int     `json:"width"`
	Height          int     `json:"height"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// VideoProber looks up frame dimensions and duration of a video file.
type VideoProber interface {
	Probe(ctx context.Context, path string) (VideoMeta, error)
}

// Options configures catalog assembly.
type Options struct {
	Layout IDLayout
	// AreaThreshold is the minimum rectangle area in square pixels.
	AreaThreshold float64
	// FrameNameDigits is the zero padding of the frame number in image
	// file names; it must match the frame extractor's pattern.
	FrameNameDigits int
}

// DefaultOptions returns the assembly defaults.
func DefaultOptions() Options {
	return Options{
		Layout:          DefaultIDLayout(),
		AreaThreshold:   100,
		FrameNameDigits: 5,
	}
}

// Assembler turns a SourceRecord into a per-source catalog.
type Assembler struct {
	opts  Options
	clock timeutil.Clock
}

// NewAssembler validates opts. A nil clock uses the wall clock.
func NewAssembler(opts Options, clock timeutil.Clock) (*Assembler, error) {
	if err := opts.Layout.Validate(); err != nil {
		return nil, err
	}
	if opts.FrameNameDigits < 1 {
		return nil, fmt.Errorf("frame name digits must be positive, got %d", opts.FrameNameDigits)
	}
	if opts.AreaThreshold < 0 {
		return nil, fmt.Errorf("area threshold must be non-negative, got %g", opts.AreaThreshold)
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Assembler{opts: opts, clock: clock}, nil
}

// Options returns the assembler's configuration.
func (a *Assembler) Options() Options { return a.opts }

// Assemble builds the catalog of one source: an image for every sampled
// frame, whether or not anything was annotated on it, and an annotation for
// every admitted object event.
func (a *Assembler) Assemble(src *SourceRecord, sourceID int, meta VideoMeta) (*Catalog, FilterStats, error) {
	ids, err := NewIDGenerator(sourceID, a.opts.Layout)
	if err != nil {
		return nil, FilterStats{}, fmt.Errorf("source %s: %w", src.Name, err)
	}

	frames := FrameCount(meta.DurationSeconds)
	if int64(frames) > a.opts.Layout.MaxFrames() {
		return nil, FilterStats{}, fmt.Errorf("source %s: %d frames exceed the %d-digit frame field: %w",
			src.Name, frames, a.opts.Layout.FrameDigits, ErrFieldOverflow)
	}

	now := a.clock.Now()
	date := now.Format(dateLayout)

	images := make([]Image, 0, frames)
	for frame := 0; frame < frames; frame++ {
		id, err := ids.ImageID(frame)
		if err != nil {
			return nil, FilterStats{}, fmt.Errorf("source %s: %w", src.Name, err)
		}
		images = append(images, Image{
			ID:           id,
			Width:        meta.Width,
			Height:       meta.Height,
			FileName:     FrameFileName(src.Name, frame, a.opts.FrameNameDigits),
			License:      0,
			DateCaptured: date,
		})
	}

	filter := NewFilter(ids, meta.DurationSeconds, a.opts.AreaThreshold)
	anns, stats := filter.Run(src.Events, src.Attributes)

	monitoring.Infof("source %d (%s): %d images, %d annotations admitted, %d events rejected",
		sourceID, src.Name, len(images), stats.Admitted, stats.RejectedTotal())

	return &Catalog{
		Info: Info{
			Year:        now.Year(),
			Description: src.Name,
			DateCreated: date,
		},
		Images:      images,
		Annotations: anns,
		Categories:  DefaultCategories(),
		Licenses:    DefaultLicenses(),
	}, stats, nil
}

// FrameFileName is the image file name of a frame: "<stem>_<frame>.jpg".
func FrameFileName(stem string, frame, digits int) string {
	return fmt.Sprintf("%s_%0*d.jpg", stem, digits, frame)
}

// FramePattern is the printf-style output pattern handed to the frame
// extractor so that extracted files match FrameFileName.
func FramePattern(stem string, digits int) string {
	return fmt.Sprintf("%s_%%0%dd.jpg", stem, digits)
}
