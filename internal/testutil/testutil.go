// Package testutil provides shared test utilities and fixtures.
//
// The VIA builder writes annotation exports in the shape the VIA tool
// saves them, with metadata entries in insertion order.
package testutil

import (
	"bytes"
	"encoding/json"
	"strconv"
	"testing"
)

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// Schema keys used by NewVIA.
const (
	LabelKey = "1"
	IDKey    = "2"
)

type viaAttribute struct {
	Name    string            `json:"aname"`
	Options map[string]string `json:"options,omitempty"`
}

type viaEvent struct {
	key string
	raw json.RawMessage
}

// VIA builds a VIA project document.
type VIA struct {
	files  map[string]map[string]string
	attrs  map[string]viaAttribute
	events []viaEvent
}

// NewVIA starts a document for video with the usual schema: key "1" is an
// object_label with options shark=0, human=1 and key "2" is object_id.
func NewVIA(video string) *VIA {
	return BareVIA(video).
		Attribute(LabelKey, "object_label", map[string]string{"0": "Shark", "1": "Human"}).
		Attribute(IDKey, "object_id", nil)
}

// BareVIA starts a document with no attribute schema.
func BareVIA(video string) *VIA {
	return &VIA{
		files: map[string]map[string]string{"1": {"fid": "1", "fname": video}},
		attrs: map[string]viaAttribute{},
	}
}

// Attribute declares a schema entry.
func (v *VIA) Attribute(key, name string, options map[string]string) *VIA {
	v.attrs[key] = viaAttribute{Name: name, Options: options}
	return v
}

// Event appends a metadata entry with arbitrary fields.
func (v *VIA) Event(key string, z, xy []float64, av map[string]string) *VIA {
	raw, err := json.Marshal(struct {
		VID string            `json:"vid"`
		Z   []float64         `json:"z"`
		XY  []float64         `json:"xy"`
		AV  map[string]string `json:"av"`
	}{"1", z, xy, av})
	if err != nil {
		panic(err)
	}
	return v.RawEvent(key, raw)
}

// RawEvent appends a metadata entry verbatim.
func (v *VIA) RawEvent(key string, raw json.RawMessage) *VIA {
	v.events = append(v.events, viaEvent{key: key, raw: raw})
	return v
}

// Rect appends a single-timestamp rectangle with the given attribute values.
func (v *VIA) Rect(key string, t, x, y, w, h float64, av map[string]string) *VIA {
	return v.Event(key, []float64{t}, []float64{2, x, y, w, h}, av)
}

// Shark appends a shark rectangle using the NewVIA schema.
func (v *VIA) Shark(key string, t, x, y, w, h float64, objectID int) *VIA {
	return v.Rect(key, t, x, y, w, h, map[string]string{LabelKey: "0", IDKey: strconv.Itoa(objectID)})
}

// Human appends a human rectangle using the NewVIA schema.
func (v *VIA) Human(key string, t, x, y, w, h float64, objectID int) *VIA {
	return v.Rect(key, t, x, y, w, h, map[string]string{LabelKey: "1", IDKey: strconv.Itoa(objectID)})
}

// JSON renders the document.
func (v *VIA) JSON() []byte {
	var buf bytes.Buffer
	buf.WriteString(`{"project":{"pname":"fixture"},"config":{},"file":`)
	mustEncode(&buf, v.files)
	buf.WriteString(`,"attribute":`)
	mustEncode(&buf, v.attrs)
	buf.WriteString(`,"metadata":{`)
	for i, ev := range v.events {
		if i > 0 {
			buf.WriteByte(',')
		}
		mustEncode(&buf, ev.key)
		buf.WriteByte(':')
		buf.Write(ev.raw)
	}
	buf.WriteString(`}}`)
	return buf.Bytes()
}

func mustEncode(buf *bytes.Buffer, v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	buf.Write(b)
}
