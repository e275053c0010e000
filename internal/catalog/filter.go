package catalog

import (
	"fmt"
	"math"

	"github.com/banshee-data/annotation.catalog/internal/monitoring"
)

// FramesPerSecond is the sampling rate of the catalog: one frame per 0.1 s.
const FramesPerSecond = 10

// quantizeTolerance absorbs binary float noise so that 1.1 s is 11 frames
// rather than 12, and 12.3 s lands on frame 123 rather than 122.
const quantizeTolerance = 1e-6

// FrameIndex quantises a timestamp in seconds to a frame index.
func FrameIndex(seconds float64) int {
	return int(math.Floor(seconds*FramesPerSecond + quantizeTolerance))
}

// FrameCount is the number of frames sampled from a video of the given
// duration: frame indexes run over [0, FrameCount).
func FrameCount(durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	return int(math.Ceil(durationSeconds*FramesPerSecond - quantizeTolerance))
}

// RejectReason says why an object event was left out of a catalog.
type RejectReason int

const (
	Admitted RejectReason = iota
	RejectMalformed
	RejectTimestampCount
	RejectGeometry
	RejectSmallArea
	RejectOutOfRange
	RejectUnresolvedCategory
	RejectDuplicate
	RejectSlotOverflow
)

func (r RejectReason) String() string {
	switch r {
	case Admitted:
		return "admitted"
	case RejectMalformed:
		return "malformed"
	case RejectTimestampCount:
		return "timestamp_count"
	case RejectGeometry:
		return "geometry"
	case RejectSmallArea:
		return "small_area"
	case RejectOutOfRange:
		return "out_of_range"
	case RejectUnresolvedCategory:
		return "unresolved_category"
	case RejectDuplicate:
		return "duplicate"
	case RejectSlotOverflow:
		return "slot_overflow"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Malformed reports whether the reason points at bad input rather than
// expected filtering.
func (r RejectReason) Malformed() bool {
	switch r {
	case RejectMalformed, RejectGeometry, RejectUnresolvedCategory, RejectSlotOverflow:
		return true
	}
	return false
}

// Decision is the filter verdict for one event.
type Decision struct {
	Reason RejectReason
	Detail string
	// Resolution is filled once attributes were resolved.
	Resolution Resolution
}

// Admitted reports whether the event produced an annotation.
func (d Decision) Admitted() bool { return d.Reason == Admitted }

// FilterStats counts filter outcomes for one source.
type FilterStats struct {
	Admitted int                  `json:"admitted"`
	Rejected map[RejectReason]int `json:"rejected,omitempty"`
}

// RejectedTotal is the number of events left out.
func (s FilterStats) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

func (s *FilterStats) add(r RejectReason) {
	if r == Admitted {
		s.Admitted++
		return
	}
	if s.Rejected == nil {
		s.Rejected = make(map[RejectReason]int)
	}
	s.Rejected[r]++
}

// frameState is the dedup state for one frame. Only Filter touches it.
type frameState struct {
	nextSlot int
	seen     map[int]map[int]struct{} // category -> original object ids
}

// Filter admits or rejects the object events of one source and assigns
// each admitted event a dense object slot within its frame.
type Filter struct {
	ids           *IDGenerator
	duration      float64
	areaThreshold float64
	frameCount    int
	frames        map[int]*frameState
}

// NewFilter prepares state for every frame of a video of the given
// duration.
func NewFilter(ids *IDGenerator, durationSeconds, areaThreshold float64) *Filter {
	n := FrameCount(durationSeconds)
	frames := make(map[int]*frameState, n)
	for i := 0; i < n; i++ {
		frames[i] = &frameState{seen: map[int]map[int]struct{}{
			CategoryShark: {},
			CategoryHuman: {},
		}}
	}
	return &Filter{
		ids:           ids,
		duration:      durationSeconds,
		areaThreshold: areaThreshold,
		frameCount:    n,
		frames:        frames,
	}
}

// Admit runs one event through the filter. On admission the returned
// annotation is complete and the frame's slot counter has advanced.
func (f *Filter) Admit(ev ObjectEvent, schema map[string]AttributeSpec) (Annotation, Decision) {
	if ev.Err != nil {
		return Annotation{}, Decision{Reason: RejectMalformed, Detail: ev.Err.Error()}
	}
	// Multi-timestamp events are track/interval annotations.
	if len(ev.Timestamps) != 1 {
		return Annotation{}, Decision{Reason: RejectTimestampCount, Detail: fmt.Sprintf("%d timestamps", len(ev.Timestamps))}
	}
	t := ev.Timestamps[0]

	res := ResolveAttributes(ev.Values, schema)
	d := Decision{Resolution: res}

	if len(ev.Region) != 5 || int(ev.Region[0]) != RegionRectangle || ev.Region[0] != math.Trunc(ev.Region[0]) {
		d.Reason = RejectGeometry
		d.Detail = fmt.Sprintf("region %v is not a 4-point rectangle", ev.Region)
		return Annotation{}, d
	}
	x, y, w, h := ev.Region[1], ev.Region[2], ev.Region[3], ev.Region[4]
	if w <= 0 || h <= 0 {
		d.Reason = RejectGeometry
		d.Detail = fmt.Sprintf("rectangle size %gx%g is not positive", w, h)
		return Annotation{}, d
	}

	area := w * h
	if area < f.areaThreshold {
		d.Reason = RejectSmallArea
		d.Detail = fmt.Sprintf("area %g below threshold %g", area, f.areaThreshold)
		return Annotation{}, d
	}
	if t < 0 || t > f.duration || f.frameCount == 0 {
		d.Reason = RejectOutOfRange
		d.Detail = fmt.Sprintf("t=%gs outside video length %gs", t, f.duration)
		return Annotation{}, d
	}
	// a timestamp within the video that quantises past the end belongs to
	// the last sampled frame
	frame := min(FrameIndex(t), f.frameCount-1)
	if !res.Resolved() {
		d.Reason = RejectUnresolvedCategory
		d.Detail = "no usable category attribute"
		return Annotation{}, d
	}

	state := f.frames[frame]
	seen := state.seen[res.CategoryID]
	if res.ObjectID != nil {
		if _, dup := seen[*res.ObjectID]; dup {
			d.Reason = RejectDuplicate
			d.Detail = fmt.Sprintf("object %d already labelled at frame %d", *res.ObjectID, frame)
			return Annotation{}, d
		}
	}

	annID, err := f.ids.AnnotationID(frame, state.nextSlot)
	if err != nil {
		d.Reason = RejectSlotOverflow
		d.Detail = err.Error()
		return Annotation{}, d
	}
	imgID, err := f.ids.ImageID(frame)
	if err != nil {
		d.Reason = RejectSlotOverflow
		d.Detail = err.Error()
		return Annotation{}, d
	}

	state.nextSlot++
	if res.ObjectID != nil {
		seen[*res.ObjectID] = struct{}{}
	}

	return Annotation{
		ID:           annID,
		ImageID:      imgID,
		CategoryID:   res.CategoryID,
		Segmentation: rectSegmentation(x, y, w, h),
		Area:         area,
		BBox:         []float64{x, y, w, h},
		IsCrowd:      0,
	}, d
}

// Run filters every event in order and logs each rejection.
func (f *Filter) Run(events []ObjectEvent, schema map[string]AttributeSpec) ([]Annotation, FilterStats) {
	var stats FilterStats
	anns := make([]Annotation, 0, len(events))
	for _, ev := range events {
		ann, d := f.Admit(ev, schema)
		for _, w := range d.Resolution.Warnings {
			monitoring.Warnf("source %d event %q: %s", f.ids.SourceID(), ev.Key, w)
		}
		stats.add(d.Reason)
		switch {
		case d.Admitted():
			anns = append(anns, ann)
		case d.Reason.Malformed():
			monitoring.Warnf("source %d event %q rejected (%s): %s", f.ids.SourceID(), ev.Key, d.Reason, d.Detail)
		default:
			monitoring.Infof("source %d event %q skipped (%s): %s", f.ids.SourceID(), ev.Key, d.Reason, d.Detail)
		}
	}
	return anns, stats
}
