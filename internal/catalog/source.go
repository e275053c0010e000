package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
)

// RegionRectangle is the VIA shape tag for an axis-aligned rectangle
// encoded as [2, x, y, w, h].
const RegionRectangle = 2

// SourceRecord is one parsed VIA export. It describes exactly one video.
type SourceRecord struct {
	// Name is the annotation file stem. Frame file names and the video
	// identity used for dataset splits derive from it.
	Name          string
	VideoFilename string
	Attributes    map[string]AttributeSpec
	// Events are kept in document order.
	Events []ObjectEvent
}

// AttributeSpec is one entry of the VIA attribute schema.
type AttributeSpec struct {
	Name    string           `json:"aname"`
	Options map[string]Value `json:"options,omitempty"`
}

// ObjectEvent is one VIA metadata entry before filtering.
type ObjectEvent struct {
	Key        string           `json:"-"`
	Timestamps []float64        `json:"z"`
	Region     []float64        `json:"xy"`
	Values     map[string]Value `json:"av"`
	// Err is set when the entry could not be decoded; the filter rejects
	// such events instead of failing the whole source.
	Err error `json:"-"`
}

// Value is a VIA attribute value. VIA writes most values as strings but
// older exports carry bare numbers; both decode to their literal text.
type Value string

// UnmarshalJSON accepts strings and any other JSON literal.
func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Value(s)
		return nil
	}
	raw := strings.TrimSpace(string(b))
	if raw == "null" {
		raw = ""
	}
	*v = Value(raw)
	return nil
}

type viaProject struct {
	File      map[string]viaFile       `json:"file"`
	Metadata  eventList                `json:"metadata"`
	Attribute map[string]AttributeSpec `json:"attribute"`
}

type viaFile struct {
	FID  Value  `json:"fid"`
	Name string `json:"fname"`
}

type eventList []ObjectEvent

// UnmarshalJSON walks the metadata object token by token so events keep
// the order they have in the file.
func (l *eventList) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*l = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("metadata must be an object, got %v", tok)
	}

	var out eventList
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("metadata key must be a string, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("metadata %q: %w", key, err)
		}
		var ev ObjectEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			ev = ObjectEvent{Err: err}
		}
		ev.Key = key
		out = append(out, ev)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*l = out
	return nil
}

// ParseSource decodes a VIA export. name is usually the annotation file
// stem (see SourceName).
func ParseSource(name string, data []byte) (*SourceRecord, error) {
	var p viaProject
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %v: %w", name, err, ErrMalformedSource)
	}
	if len(p.File) != 1 {
		return nil, fmt.Errorf("%s: expected exactly one video in file registry, found %d: %w", name, len(p.File), ErrMalformedSource)
	}
	var video string
	for _, f := range p.File {
		video = f.Name
	}
	if video == "" {
		return nil, fmt.Errorf("%s: file registry entry has no fname: %w", name, ErrMalformedSource)
	}
	attrs := p.Attribute
	if attrs == nil {
		attrs = map[string]AttributeSpec{}
	}
	return &SourceRecord{
		Name:          name,
		VideoFilename: video,
		Attributes:    attrs,
		Events:        p.Metadata,
	}, nil
}

// SourceName returns the file name of path without directory or extension.
func SourceName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
