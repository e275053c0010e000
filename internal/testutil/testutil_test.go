package testutil

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssertNoError(t *testing.T) {
	t.Parallel()
	AssertNoError(t, nil)
}

func TestVIA_JSONShape(t *testing.T) {
	t.Parallel()

	doc := NewVIA("clip.mp4").
		Shark("1_b", 0.5, 10, 20, 30, 40, 4).
		Human("1_a", 1.0, 1, 2, 3, 4, 0).
		JSON()

	var got struct {
		File      map[string]map[string]string `json:"file"`
		Attribute map[string]struct {
			Name    string            `json:"aname"`
			Options map[string]string `json:"options"`
		} `json:"attribute"`
		Metadata map[string]struct {
			Z  []float64         `json:"z"`
			XY []float64         `json:"xy"`
			AV map[string]string `json:"av"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(doc, &got))

	assert.Equal(t, "clip.mp4", got.File["1"]["fname"])
	assert.Equal(t, "object_label", got.Attribute[LabelKey].Name)
	assert.Equal(t, "Shark", got.Attribute[LabelKey].Options["0"])
	assert.Equal(t, "object_id", got.Attribute[IDKey].Name)

	require.Len(t, got.Metadata, 2)
	assert.Equal(t, []float64{0.5}, got.Metadata["1_b"].Z)
	assert.Equal(t, []float64{2, 10, 20, 30, 40}, got.Metadata["1_b"].XY)
	assert.Equal(t, map[string]string{LabelKey: "0", IDKey: "4"}, got.Metadata["1_b"].AV)
	assert.Equal(t, "1", got.Metadata["1_a"].AV[LabelKey])
}

func TestVIA_MetadataKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	doc := string(BareVIA("v.mp4").
		RawEvent("z", json.RawMessage(`{}`)).
		RawEvent("a", json.RawMessage(`{}`)).
		JSON())

	z, a := strings.Index(doc, `"z":{}`), strings.Index(doc, `"a":{}`)
	require.NotEqual(t, -1, z)
	require.NotEqual(t, -1, a)
	assert.Less(t, z, a)
}
