package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/db"
	"github.com/banshee-data/annotation.catalog/internal/fsutil"
	"github.com/banshee-data/annotation.catalog/internal/monitoring"
	"github.com/banshee-data/annotation.catalog/internal/split"
	"github.com/banshee-data/annotation.catalog/internal/testutil"
	"github.com/banshee-data/annotation.catalog/internal/timeutil"
)

type fakeProber map[string]catalog.VideoMeta

func (f fakeProber) Probe(_ context.Context, path string) (catalog.VideoMeta, error) {
	meta, ok := f[path]
	if !ok {
		return catalog.VideoMeta{}, fmt.Errorf("%s: no such video: %w", path, catalog.ErrProbeFailed)
	}
	return meta, nil
}

type extractCall struct{ video, pattern string }

type fakeExtractor struct {
	mu    sync.Mutex
	calls []extractCall
	fail  map[string]bool
}

func (f *fakeExtractor) Extract(_ context.Context, videoPath, outPattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, extractCall{videoPath, outPattern})
	if f.fail[videoPath] {
		return errors.New("ffmpeg exited with status 1")
	}
	return nil
}

type fakeRecorder struct {
	sources  []db.SourceRow
	failures []catalog.Failure
	splits   []db.SplitRow
	runIDs   map[string]bool
}

func (r *fakeRecorder) note(runID string) {
	if r.runIDs == nil {
		r.runIDs = map[string]bool{}
	}
	r.runIDs[runID] = true
}

func (r *fakeRecorder) RecordSource(runID string, s db.SourceRow) error {
	r.note(runID)
	r.sources = append(r.sources, s)
	return nil
}

func (r *fakeRecorder) RecordFailure(runID string, f catalog.Failure) error {
	r.note(runID)
	r.failures = append(r.failures, f)
	return nil
}

func (r *fakeRecorder) RecordSplit(runID string, s db.SplitRow) error {
	r.note(runID)
	r.splits = append(r.splits, s)
	return nil
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// fixture lays out four annotation files. Sorted, they get SourceIds:
// 0 bad.json (unparseable), 1 clip.json, 2 clip_2.json, 3 other.json
// (video cannot be probed).
func fixture(t *testing.T) (*Pipeline, *fsutil.MemoryFileSystem, *fakeExtractor) {
	t.Helper()
	original := monitoring.Logf
	monitoring.SetLogger(nil)
	t.Cleanup(func() { monitoring.SetLogger(original) })

	fsys := fsutil.NewMemoryFileSystem()
	write := func(name string, data []byte) {
		require.NoError(t, fsys.WriteFile(name, data, 0o644))
	}
	write("via/bad.json", []byte(`{"file":`))
	write("via/clip.json", testutil.NewVIA("clip.mp4").
		Shark("1_a", 0.0, 10, 10, 20, 20, 1).
		Shark("1_b", 0.3, 10, 10, 2, 2, 2).
		JSON())
	write("via/clip_2.json", testutil.NewVIA("clip.mp4").
		Human("1_a", 0.5, 5, 5, 30, 30, 1).
		JSON())
	write("via/other.json", testutil.NewVIA("other.mp4").
		Shark("1_a", 0.1, 0, 0, 50, 50, 1).
		JSON())

	asm, err := catalog.NewAssembler(catalog.DefaultOptions(), timeutil.NewMockClock(fixedNow))
	require.NoError(t, err)

	prober := fakeProber{
		filepath.Join("videos", "clip.mp4"): {Width: 1920, Height: 1080, DurationSeconds: 1.0},
	}
	ext := &fakeExtractor{fail: map[string]bool{filepath.Join("videos", "other.mp4"): true}}
	return New(fsys, asm, prober, ext), fsys, ext
}

func TestDiscoverSorted(t *testing.T) {
	p, _, _ := fixture(t)
	files, err := p.Discover("via")
	require.NoError(t, err)
	assert.Equal(t, []string{"via/bad.json", "via/clip.json", "via/clip_2.json", "via/other.json"}, files)

	_, err = p.Discover("missing")
	assert.Error(t, err)
}

func TestConvertAll(t *testing.T) {
	p, fsys, _ := fixture(t)
	rec := &fakeRecorder{}
	p = p.WithLedger(rec, "run-1")

	res, err := p.ConvertAll(context.Background(), "via", "videos", "coco")
	require.NoError(t, err)

	require.Len(t, res.Sources, 2)
	assert.Equal(t, 1, res.Sources[0].SourceID)
	assert.Equal(t, "coco/clip_coco.json", res.Sources[0].OutPath)
	assert.Equal(t, 10, res.Sources[0].Images)
	assert.Equal(t, 1, res.Sources[0].Annotations)
	assert.Equal(t, 1, res.Sources[0].Stats.Rejected[catalog.RejectSmallArea])
	assert.Equal(t, 2, res.Sources[1].SourceID)
	assert.Equal(t, "coco/clip_2_coco.json", res.Sources[1].OutPath)

	// failed files keep their SourceIds so the others are reproducible
	require.Len(t, res.Failures, 2)
	assert.Equal(t, "via/bad.json", res.Failures[0].Identifier)
	assert.Equal(t, 0, *res.Failures[0].SourceID)
	assert.Contains(t, res.Failures[0].Diagnostic, catalog.ErrMalformedSource.Error())
	assert.Equal(t, "via/other.json", res.Failures[1].Identifier)
	assert.Equal(t, 3, *res.Failures[1].SourceID)
	assert.Contains(t, res.Failures[1].Diagnostic, catalog.ErrProbeFailed.Error())

	data, err := fsys.ReadFile("coco/clip_coco.json")
	require.NoError(t, err)
	cat, err := catalog.DecodeCatalog(data)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), cat.Images[0].ID)
	assert.Equal(t, "clip_00000.jpg", cat.Images[0].FileName)
	require.Len(t, cat.Annotations, 1)
	assert.Equal(t, int64(100000000), cat.Annotations[0].ID)
	assert.Equal(t, "03/01/2026", cat.Info.DateCreated)

	assert.Equal(t, map[string]bool{"run-1": true}, rec.runIDs)
	want := []db.SourceRow{
		{SourceID: 1, Path: "via/clip.json", Video: "clip", Images: 10, Annotations: 1, Rejected: 1},
		{SourceID: 2, Path: "via/clip_2.json", Video: "clip", Images: 10, Annotations: 1, Rejected: 0},
	}
	if diff := cmp.Diff(want, rec.sources); diff != "" {
		t.Errorf("ledger sources mismatch (-want +got):\n%s", diff)
	}
	assert.Len(t, rec.failures, 2)
}

func TestConvertAllCancelled(t *testing.T) {
	p, _, _ := fixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.ConvertAll(ctx, "via", "videos", "coco")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConvertOneRejectsEscapingVideo(t *testing.T) {
	p, fsys, _ := fixture(t)
	require.NoError(t, fsys.WriteFile("via/evil.json", testutil.NewVIA("../../etc/passwd").JSON(), 0o644))

	_, err := p.ConvertOne(context.Background(), "via/evil.json", 9, "videos", "coco")
	assert.Error(t, err)
	assert.False(t, fsys.Exists("coco/evil_coco.json"))
}

func TestMergeAll(t *testing.T) {
	p, fsys, _ := fixture(t)
	_, err := p.ConvertAll(context.Background(), "via", "videos", "coco")
	require.NoError(t, err)
	require.NoError(t, fsys.WriteFile("coco/broken_coco.json", []byte("not json"), 0o644))

	merged, failures, err := p.MergeAll("coco", "coco/merged.json")
	require.NoError(t, err)
	assert.Len(t, merged.Images, 20)
	assert.Len(t, merged.Annotations, 2)
	require.Len(t, failures, 1)
	assert.Equal(t, catalog.StageMerge, failures[0].Stage)
	assert.Equal(t, "coco/broken_coco.json", failures[0].Identifier)

	loaded, err := p.LoadCatalog("coco/merged.json")
	require.NoError(t, err)
	assert.Len(t, loaded.Images, 20)

	// a second merge skips the merged file it wrote
	again, _, err := p.MergeAll("coco", "coco/merged.json")
	require.NoError(t, err)
	assert.Len(t, again.Images, 20)
}

func TestMergeAllEmpty(t *testing.T) {
	p, fsys, _ := fixture(t)
	require.NoError(t, fsys.MkdirAll("coco", 0o755))

	_, _, err := p.MergeAll("coco", "coco/merged.json")
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
	assert.False(t, fsys.Exists("coco/merged.json"))
}

func TestExtractAllFrames(t *testing.T) {
	p, _, ext := fixture(t)

	failures, err := p.ExtractAllFrames(context.Background(), "via", "videos", "frames")
	require.NoError(t, err)

	assert.Equal(t, []extractCall{
		{"videos/clip.mp4", "frames/clip_%05d.jpg"},
		{"videos/clip.mp4", "frames/clip_2_%05d.jpg"},
		{"videos/other.mp4", "frames/other_%05d.jpg"},
	}, ext.calls)

	require.Len(t, failures, 2)
	assert.Equal(t, "via/bad.json", failures[0].Identifier)
	assert.Equal(t, "via/other.json", failures[1].Identifier)
	assert.Nil(t, failures[1].SourceID)
	assert.Contains(t, failures[1].Diagnostic, "status 1")
}

func TestVideoMap(t *testing.T) {
	p, fsys, _ := fixture(t)

	vm, err := p.WriteVideoMap("via", "out/video_map.json")
	require.NoError(t, err)
	assert.Equal(t, []string{"bad", "clip", "other"}, vm.Filenames)
	assert.Equal(t, map[string][]int{"bad": {0}, "clip": {1, 2}, "other": {3}}, vm.IDMap)

	data, err := fsys.ReadFile("out/video_map.json")
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id_map"`)

	loaded, err := p.LoadVideoMap("out/video_map.json")
	require.NoError(t, err)
	if diff := cmp.Diff(vm, loaded); diff != "" {
		t.Errorf("video map round trip (-want +got):\n%s", diff)
	}
}

func TestWriteFailureLog(t *testing.T) {
	p, fsys, _ := fixture(t)

	path, err := p.WriteFailureLog("logs", catalog.StageConvert, nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.False(t, fsys.Exists("logs/convert_error_log.txt"))

	failures := []catalog.Failure{
		catalog.NewFailure(catalog.StageConvert, "via/bad.json", errors.New("bad json")).WithSourceID(0),
	}
	path, err = p.WriteFailureLog("logs", catalog.StageConvert, failures)
	require.NoError(t, err)
	assert.Equal(t, "logs/convert_error_log.txt", path)

	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	want := "------------ Annotation files that failed to convert ------------\n" +
		"     format: (annotation file, source id that should be used) diagnostic\n" +
		"(via/bad.json, 0) bad json\n\n"
	assert.Equal(t, want, string(data))
}

func convertedAndMerged(t *testing.T) (*Pipeline, *fsutil.MemoryFileSystem, *fakeRecorder) {
	t.Helper()
	p, fsys, _ := fixture(t)
	rec := &fakeRecorder{}
	p = p.WithLedger(rec, "run-split")
	_, err := p.ConvertAll(context.Background(), "via", "videos", "coco")
	require.NoError(t, err)
	_, _, err = p.MergeAll("coco", "merged.json")
	require.NoError(t, err)
	_, err = p.WriteVideoMap("via", "video_map.json")
	require.NoError(t, err)
	rec.sources, rec.failures = nil, nil
	return p, fsys, rec
}

func TestSplit(t *testing.T) {
	p, fsys, rec := convertedAndMerged(t)

	m, failures, err := p.Split("merged.json", "video_map.json", "split", split.Fractions{Train: 1}, 42)
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.Equal(t, uint64(42), m.Seed)
	assert.ElementsMatch(t, []string{"bad", "clip", "other"}, m.Videos[split.Train])
	assert.Empty(t, m.Videos[split.Validation])
	assert.Empty(t, m.Videos[split.Test])
	assert.Equal(t, []int64{100000, 200005}, m.Keys[split.Train])
	assert.Len(t, m.Unannotated, 18)
	assert.Empty(t, m.Unassigned)

	for _, n := range split.Names() {
		assert.True(t, fsys.Exists("split/"+string(n)+".json"), n)
	}
	train, err := p.LoadCatalog("split/train.json")
	require.NoError(t, err)
	assert.Len(t, train.Images, 2)
	assert.Len(t, train.Annotations, 2)
	test, err := p.LoadCatalog("split/test.json")
	require.NoError(t, err)
	assert.Empty(t, test.Images)

	assert.True(t, fsys.Exists("split/"+ManifestName))
	assert.ElementsMatch(t, []db.SplitRow{
		{Video: "bad", Split: "train", Images: 0},
		{Video: "clip", Split: "train", Images: 2},
		{Video: "other", Split: "train", Images: 0},
	}, rec.splits)
}

func TestSplitSeedReproducible(t *testing.T) {
	p, _, _ := convertedAndMerged(t)
	f := split.Fractions{Train: 0.34, Validation: 0.34}

	a, _, err := p.Split("merged.json", "video_map.json", "a", f, 7)
	require.NoError(t, err)
	b, _, err := p.Split("merged.json", "video_map.json", "b", f, 7)
	require.NoError(t, err)
	assert.Equal(t, a.Videos, b.Videos)
	assert.Equal(t, a.Keys, b.Keys)

	// zero asks for a random seed, which is reported back
	c, _, err := p.Split("merged.json", "video_map.json", "c", f, 0)
	require.NoError(t, err)
	assert.NotZero(t, c.Seed)
}

func TestSplitUnknownVideo(t *testing.T) {
	p, fsys, rec := convertedAndMerged(t)
	require.NoError(t, fsys.WriteFile("video_map.json", []byte(`{"filenames":["other"],"id_map":{"other":[3]}}`), 0o644))

	m, failures, err := p.Split("merged.json", "video_map.json", "split", split.Fractions{Train: 1}, 1)
	require.NoError(t, err)
	assert.Equal(t, []int64{100000, 200005}, m.Unassigned)
	require.Len(t, failures, 2)
	assert.Equal(t, catalog.StageSplit, failures[0].Stage)
	assert.Equal(t, "clip_00000.jpg", failures[0].Identifier)
	assert.Contains(t, failures[0].Diagnostic, `"clip"`)
	assert.Len(t, rec.failures, 2)
}

func TestSplitErrors(t *testing.T) {
	p, fsys, _ := convertedAndMerged(t)

	_, _, err := p.Split("missing.json", "video_map.json", "split", split.Fractions{Train: 1}, 1)
	assert.Error(t, err)

	_, _, err = p.Split("merged.json", "video_map.json", "split", split.Fractions{Train: 0.8, Validation: 0.5}, 1)
	assert.ErrorContains(t, err, "fraction")

	empty := `{"info":{},"images":[],"annotations":[],"categories":[],"licenses":[]}`
	require.NoError(t, fsys.WriteFile("empty.json", []byte(empty), 0o644))
	_, _, err = p.Split("empty.json", "video_map.json", "split", split.Fractions{Train: 1}, 1)
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
}

func TestRunAll(t *testing.T) {
	p, fsys, ext := fixture(t)
	paths := Paths{
		ViaDir:       "via",
		VideoDir:     "videos",
		CocoDir:      "coco",
		MergedPath:   "out/merged.json",
		FramesDir:    "frames",
		VideoMapPath: "out/video_map.json",
		LogsDir:      "logs",
	}

	sum, err := p.RunAll(context.Background(), paths)
	require.NoError(t, err)
	assert.Len(t, sum.Convert.Sources, 2)
	assert.Len(t, sum.Merged.Images, 20)
	assert.Len(t, ext.calls, 3)
	assert.Equal(t, 4, sum.FailureCount())
	assert.Empty(t, sum.Failures[catalog.StageMerge])
	assert.Equal(t, []string{"logs/convert_error_log.txt", "logs/frames_error_log.txt"}, sum.LogFiles)
	assert.True(t, fsys.Exists("out/video_map.json"))

	data, err := fsys.ReadFile("logs/frames_error_log.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "------------ Videos that failed to convert to frames"))
}

func TestRunAllEmptyMerge(t *testing.T) {
	p, fsys, ext := fixture(t)
	p.Prober = fakeProber{}

	sum, err := p.RunAll(context.Background(), Paths{
		ViaDir: "via", VideoDir: "videos", CocoDir: "coco",
		MergedPath: "merged.json", FramesDir: "frames",
		VideoMapPath: "video_map.json", LogsDir: "logs",
	})
	assert.ErrorIs(t, err, catalog.ErrEmptyCatalog)
	assert.Empty(t, ext.calls)
	assert.False(t, fsys.Exists("video_map.json"))
	assert.Equal(t, []string{"logs/convert_error_log.txt"}, sum.LogFiles)
	assert.Len(t, sum.Failures[catalog.StageConvert], 4)
}

func TestLedgerIntegration(t *testing.T) {
	p, _, _ := fixture(t)
	ledger, err := db.NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { ledger.Close() })

	runID, err := ledger.StartRun(catalog.StageConvert, "{}", "test")
	require.NoError(t, err)
	res, err := p.WithLedger(ledger, runID).ConvertAll(context.Background(), "via", "videos", "coco")
	require.NoError(t, err)
	require.NoError(t, ledger.FinishRun(runID, db.StatusSucceeded, 20, 2))

	sources, err := ledger.RunSources(runID)
	require.NoError(t, err)
	assert.Len(t, sources, len(res.Sources))
	failures, err := ledger.RunFailures(runID)
	require.NoError(t, err)
	assert.Len(t, failures, 2)
}
