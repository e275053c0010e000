package catalog

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/annotation.catalog/internal/fsutil"
	"github.com/banshee-data/annotation.catalog/internal/testutil"
)

func sourceCatalog(t *testing.T, sourceID int, name string, objects int) *Catalog {
	t.Helper()
	via := testutil.NewVIA(name + ".mp4")
	for i := 0; i < objects; i++ {
		via.Shark(fmt.Sprintf("e%d", i), 0.1*float64(i), 0, 0, 20, 20, i)
	}
	src, err := ParseSource(name, via.JSON())
	require.NoError(t, err)
	cat, _, err := newTestAssembler(t).Assemble(src, sourceID, VideoMeta{Width: 4, Height: 4, DurationSeconds: 0.5})
	require.NoError(t, err)
	return cat
}

func TestMerge_Associative(t *testing.T) {
	captureLogs(t)
	a := sourceCatalog(t, 0, "a", 2)
	b := sourceCatalog(t, 1, "b", 3)
	c := sourceCatalog(t, 2, "c", 1)

	all, err := Merge(a, b, c)
	require.NoError(t, err)

	ab, err := Merge(a, b)
	require.NoError(t, err)
	stepwise, err := Merge(ab, c)
	require.NoError(t, err)

	if diff := cmp.Diff(all, stepwise); diff != "" {
		t.Errorf("Merge(A,B,C) != Merge(Merge(A,B),C) (-want +got):\n%s", diff)
	}
	assert.Len(t, all.Images, 15)
	assert.Len(t, all.Annotations, 6)
	assert.Equal(t, a.Info, all.Info)
	assert.Equal(t, DefaultCategories(), all.Categories)
	assert.Equal(t, DefaultLicenses(), all.Licenses)

	// concatenated in input order
	assert.Equal(t, a.Images[0].ID, all.Images[0].ID)
	assert.Equal(t, c.Images[4].ID, all.Images[14].ID)
}

func TestMerge_EmptyIsIdentity(t *testing.T) {
	captureLogs(t)
	a := sourceCatalog(t, 3, "a", 2)

	for name, inputs := range map[string][]*Catalog{
		"right":    {a, {}},
		"left":     {{}, a},
		"nil":      {nil, a, nil},
		"only one": {a},
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Merge(inputs...)
			require.NoError(t, err)
			if diff := cmp.Diff(a, got); diff != "" {
				t.Errorf("merge changed the catalog (-want +got):\n%s", diff)
			}
		})
	}

	none, err := Merge()
	require.NoError(t, err)
	assert.NotNil(t, none.Images)
	assert.NotNil(t, none.Annotations)
}

func TestMerger_RefusesCollisionAtomically(t *testing.T) {
	captureLogs(t)
	a := sourceCatalog(t, 0, "a", 1)
	b := sourceCatalog(t, 1, "b", 1)
	again := sourceCatalog(t, 0, "a_again", 1)

	m := NewMerger()
	require.NoError(t, m.Add(a))
	require.NoError(t, m.Add(b))
	err := m.Add(again)
	assert.ErrorIs(t, err, ErrIDCollision)

	got := m.Result()
	assert.Len(t, got.Images, 10)
	assert.Len(t, got.Annotations, 2)

	// within one catalog
	dup := sourceCatalog(t, 5, "dup", 1)
	dup.Annotations = append(dup.Annotations, dup.Annotations[0])
	assert.ErrorIs(t, NewMerger().Add(dup), ErrIDCollision)
}

func TestMerger_RefusesMetadataMismatch(t *testing.T) {
	captureLogs(t)
	a := sourceCatalog(t, 0, "a", 1)
	b := sourceCatalog(t, 1, "b", 1)
	b.Categories = append(b.Categories, Category{Supercategory: "object_label", ID: 3, Name: "seal"})
	c := sourceCatalog(t, 2, "c", 1)
	c.Licenses = []License{{ID: 1, Name: "CC-BY"}}

	merged, err := Merge(a, b, c)
	assert.ErrorIs(t, err, ErrMetadataMismatch)
	if diff := cmp.Diff(a, merged); diff != "" {
		t.Errorf("refused catalogs leaked into the result (-want +got):\n%s", diff)
	}
}

func TestMergeFiles(t *testing.T) {
	captureLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	write := func(path string, c *Catalog) {
		data, err := json.Marshal(c)
		require.NoError(t, err)
		require.NoError(t, mfs.WriteFile(path, data, 0o644))
	}
	a := sourceCatalog(t, 0, "a", 2)
	b := sourceCatalog(t, 1, "b", 1)
	write("/coco/a_coco.json", a)
	write("/coco/b_coco.json", b)
	require.NoError(t, mfs.WriteFile("/coco/corrupt_coco.json", []byte("{not json"), 0o644))

	merged, failures, err := MergeFiles(mfs, []string{"/coco/a_coco.json", "/coco/corrupt_coco.json", "/coco/missing.json", "/coco/b_coco.json"})
	require.NoError(t, err)

	want, err := Merge(a, b)
	require.NoError(t, err)
	if diff := cmp.Diff(want, merged); diff != "" {
		t.Errorf("MergeFiles mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, failures, 2)
	assert.Equal(t, StageMerge, failures[0].Stage)
	assert.Equal(t, "/coco/corrupt_coco.json", failures[0].Identifier)
	assert.Equal(t, "/coco/missing.json", failures[1].Identifier)
	assert.Nil(t, failures[0].SourceID)
}

func TestMergeFiles_Empty(t *testing.T) {
	captureLogs(t)
	mfs := fsutil.NewMemoryFileSystem()
	require.NoError(t, mfs.WriteFile("/coco/bad.json", []byte("[]"), 0o644))

	merged, failures, err := MergeFiles(mfs, []string{"/coco/bad.json"})
	assert.ErrorIs(t, err, ErrEmptyCatalog)
	assert.Len(t, failures, 1)
	assert.Empty(t, merged.Images)

	_, _, err = MergeFiles(mfs, nil)
	assert.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestDecodeCatalog_WireNames(t *testing.T) {
	captureLogs(t)
	data, err := json.Marshal(sourceCatalog(t, 0, "a", 1))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, k := range []string{"info", "images", "annotations", "categories", "licenses"} {
		assert.Contains(t, raw, k)
	}

	var anns []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw["annotations"], &anns))
	require.Len(t, anns, 1)
	for _, k := range []string{"id", "image_id", "category_id", "segmentation", "area", "bbox", "iscrowd"} {
		assert.Contains(t, anns[0], k)
	}
	var imgs []map[string]interface{}
	require.NoError(t, json.Unmarshal(raw["images"], &imgs))
	for _, k := range []string{"id", "width", "height", "file_name", "license", "flickr_url", "coco_url", "date_captured"} {
		assert.Contains(t, imgs[0], k)
	}

	back, err := DecodeCatalog(data)
	require.NoError(t, err)
	assert.Len(t, back.Images, 5)
}

func TestFailure(t *testing.T) {
	f := NewFailure(StageConvert, "via/a.json", fmt.Errorf("probe: %w", ErrProbeFailed)).WithSourceID(3)
	assert.Equal(t, "(via/a.json, 3) probe: video probe failed", f.String())

	g := NewFailure(StageMerge, "coco/b.json", nil)
	assert.Equal(t, "(coco/b.json) ", g.String())
	assert.Nil(t, g.SourceID)
}
