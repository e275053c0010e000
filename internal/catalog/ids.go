package catalog

import (
	"fmt"
)

// maxIDDigits keeps every composite id inside int64 (19 digits, but not all
// 19-digit values fit).
const maxIDDigits = 18

// IDLayout fixes the decimal width of each composite id field. Reading an id
// as a zero-padded decimal string gives
//
//	SSS FFFFF OOO
//
// source id, frame index and (annotation ids only) object slot.
type IDLayout struct {
	FileDigits   int
	FrameDigits  int
	ObjectDigits int
}

// DefaultIDLayout returns the 3/5/3 layout: up to 1000 sources, 10000 s of
// video per source and 1000 objects per frame.
func DefaultIDLayout() IDLayout {
	return IDLayout{FileDigits: 3, FrameDigits: 5, ObjectDigits: 3}
}

// Validate checks the layout fits in an int64.
func (l IDLayout) Validate() error {
	if l.FileDigits < 1 || l.FrameDigits < 1 || l.ObjectDigits < 1 {
		return fmt.Errorf("id layout digits must be positive, got %d/%d/%d", l.FileDigits, l.FrameDigits, l.ObjectDigits)
	}
	if total := l.FileDigits + l.FrameDigits + l.ObjectDigits; total > maxIDDigits {
		return fmt.Errorf("id layout uses %d digits, max %d", total, maxIDDigits)
	}
	return nil
}

// MaxSources is the number of distinct SourceIds the layout can hold.
func (l IDLayout) MaxSources() int64 { return pow10(l.FileDigits) }

// MaxFrames is the number of distinct frame indexes per source.
func (l IDLayout) MaxFrames() int64 { return pow10(l.FrameDigits) }

// MaxSlots is the number of distinct object slots per frame.
func (l IDLayout) MaxSlots() int64 { return pow10(l.ObjectDigits) }

// ImageKey is the structured form of an image id.
type ImageKey struct {
	Source int
	Frame  int
}

// AnnotationKey is the structured form of an annotation id.
type AnnotationKey struct {
	Source int
	Frame  int
	Slot   int
}

// ID packs k into an integer. Fields outside the layout's budget return
// ErrFieldOverflow instead of spilling into the neighbouring field.
func (k ImageKey) ID(l IDLayout) (int64, error) {
	if err := checkField("source", int64(k.Source), l.FileDigits); err != nil {
		return 0, err
	}
	if err := checkField("frame", int64(k.Frame), l.FrameDigits); err != nil {
		return 0, err
	}
	return int64(k.Source)*pow10(l.FrameDigits) + int64(k.Frame), nil
}

// ID packs k into an integer.
func (k AnnotationKey) ID(l IDLayout) (int64, error) {
	img, err := ImageKey{Source: k.Source, Frame: k.Frame}.ID(l)
	if err != nil {
		return 0, err
	}
	if err := checkField("object slot", int64(k.Slot), l.ObjectDigits); err != nil {
		return 0, err
	}
	return img*pow10(l.ObjectDigits) + int64(k.Slot), nil
}

// DecodeImageID splits an image id back into its fields.
func (l IDLayout) DecodeImageID(id int64) (ImageKey, error) {
	if id < 0 || id >= pow10(l.FileDigits+l.FrameDigits) {
		return ImageKey{}, fmt.Errorf("image id %d does not fit layout %d/%d: %w", id, l.FileDigits, l.FrameDigits, ErrFieldOverflow)
	}
	frames := pow10(l.FrameDigits)
	return ImageKey{Source: int(id / frames), Frame: int(id % frames)}, nil
}

// DecodeAnnotationID splits an annotation id back into its fields.
func (l IDLayout) DecodeAnnotationID(id int64) (AnnotationKey, error) {
	if id < 0 || id >= pow10(l.FileDigits+l.FrameDigits+l.ObjectDigits) {
		return AnnotationKey{}, fmt.Errorf("annotation id %d does not fit layout %d/%d/%d: %w", id, l.FileDigits, l.FrameDigits, l.ObjectDigits, ErrFieldOverflow)
	}
	slots := pow10(l.ObjectDigits)
	img, err := l.DecodeImageID(id / slots)
	if err != nil {
		return AnnotationKey{}, err
	}
	return AnnotationKey{Source: img.Source, Frame: img.Frame, Slot: int(id % slots)}, nil
}

// IDGenerator mints image and annotation ids for one source.
type IDGenerator struct {
	layout IDLayout
	source int
}

// NewIDGenerator binds a generator to sourceID. It fails when the layout is
// invalid or the source id does not fit the file field.
func NewIDGenerator(sourceID int, layout IDLayout) (*IDGenerator, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if err := checkField("source", int64(sourceID), layout.FileDigits); err != nil {
		return nil, err
	}
	return &IDGenerator{layout: layout, source: sourceID}, nil
}

// SourceID returns the bound source id.
func (g *IDGenerator) SourceID() int { return g.source }

// Layout returns the generator's field layout.
func (g *IDGenerator) Layout() IDLayout { return g.layout }

// ImageID returns the id of the image at frame.
func (g *IDGenerator) ImageID(frame int) (int64, error) {
	return ImageKey{Source: g.source, Frame: frame}.ID(g.layout)
}

// AnnotationID returns the id of the annotation in slot at frame.
func (g *IDGenerator) AnnotationID(frame, slot int) (int64, error) {
	return AnnotationKey{Source: g.source, Frame: frame, Slot: slot}.ID(g.layout)
}

func checkField(name string, v int64, digits int) error {
	if v < 0 {
		return fmt.Errorf("%s %d is negative: %w", name, v, ErrFieldOverflow)
	}
	if v >= pow10(digits) {
		return fmt.Errorf("%s %d needs more than %d digits: %w", name, v, digits, ErrFieldOverflow)
	}
	return nil
}

func pow10(n int) int64 {
	p := int64(1)
	for i := 0; i < n; i++ {
		p *= 10
	}
	return p
}
