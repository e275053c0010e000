package catalog

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedSource: the export cannot be read as a VIA project
	// (bad JSON, missing or ambiguous file registry).
	ErrMalformedSource = errors.New("malformed source record")
	// ErrFieldOverflow: a composite id field exceeds its digit budget.
	ErrFieldOverflow = errors.New("composite id field overflow")
	// ErrProbeFailed: the video referenced by a source could not be probed.
	ErrProbeFailed = errors.New("video probe failed")
	// ErrMetadataMismatch: two catalogs disagree on categories or licenses.
	ErrMetadataMismatch = errors.New("catalog metadata mismatch")
	// ErrIDCollision: a catalog reuses an image or annotation id already merged.
	ErrIDCollision = errors.New("catalog id collision")
	// ErrEmptyCatalog: nothing survived conversion or merging.
	ErrEmptyCatalog = errors.New("empty catalog")
)

// Stage names the step of a run that produced a Failure.
type Stage string

const (
	StageConvert Stage = "convert"
	StageMerge   Stage = "merge"
	StageFrames  Stage = "frames"
	StageSplit   Stage = "split"
)

// Failure records one item that was skipped during a run. Failures are
// collected by the driving loop and surfaced together at the end so an
// operator can re-run only the failed items.
type Failure struct {
	Stage      Stage  `json:"stage"`
	Identifier string `json:"identifier"`
	// SourceID is set for conversion failures so the item can be re-run
	// with the id it would have been given.
	SourceID   *int   `json:"source_id,omitempty"`
	Diagnostic string `json:"diagnostic"`
}

// NewFailure builds a Failure from an error.
func NewFailure(stage Stage, identifier string, err error) Failure {
	f := Failure{Stage: stage, Identifier: identifier}
	if err != nil {
		f.Diagnostic = err.Error()
	}
	return f
}

// WithSourceID returns a copy of f carrying the given SourceId.
func (f Failure) WithSourceID(id int) Failure {
	f.SourceID = &id
	return f
}

func (f Failure) String() string {
	if f.SourceID != nil {
		return fmt.Sprintf("(%s, %d) %s", f.Identifier, *f.SourceID, f.Diagnostic)
	}
	return fmt.Sprintf("(%s) %s", f.Identifier, f.Diagnostic)
}
