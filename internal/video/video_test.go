package video

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

type call struct {
	name string
	args []string
}

type fakeRunner struct {
	out   []byte
	err   error
	calls []call
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, call{name: name, args: args})
	return f.out, f.err
}

const probeJSON = `{
  "streams": [
    {"codec_type": "audio", "duration": "12.40"},
    {"codec_type": "video", "width": 1920, "height": 1080, "duration": "12.30"}
  ],
  "format": {"duration": "12.345"}
}`

func TestFFProbe_Probe(t *testing.T) {
	r := &fakeRunner{out: []byte(probeJSON)}
	p := &FFProbe{Path: "/usr/bin/ffprobe", Runner: r}

	meta, err := p.Probe(context.Background(), "videos/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, catalog.VideoMeta{Width: 1920, Height: 1080, DurationSeconds: 12.345}, meta)

	require.Len(t, r.calls, 1)
	assert.Equal(t, "/usr/bin/ffprobe", r.calls[0].name)
	assert.Equal(t, "videos/clip.mp4", r.calls[0].args[len(r.calls[0].args)-1])
	assert.Contains(t, r.calls[0].args, "-show_streams")
}

func TestFFProbe_StreamDurationFallback(t *testing.T) {
	r := &fakeRunner{out: []byte(`{"streams":[{"codec_type":"video","width":640,"height":480,"duration":"2.3"}],"format":{}}`)}
	meta, err := (&FFProbe{Path: "ffprobe", Runner: r}).Probe(context.Background(), "v.mp4")
	require.NoError(t, err)
	assert.Equal(t, 2.3, meta.DurationSeconds)
}

func TestFFProbe_Failures(t *testing.T) {
	tests := []struct {
		name string
		out  string
		err  error
	}{
		{"runner error", "", errors.New("exit status 1")},
		{"not json", "garbage", nil},
		{"no video stream", `{"streams":[{"codec_type":"audio"}],"format":{"duration":"1"}}`, nil},
		{"zero size", `{"streams":[{"codec_type":"video"}],"format":{"duration":"1"}}`, nil},
		{"bad duration", `{"streams":[{"codec_type":"video","width":2,"height":2}],"format":{"duration":"N/A"}}`, nil},
		{"zero duration", `{"streams":[{"codec_type":"video","width":2,"height":2}],"format":{"duration":"0"}}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &FFProbe{Path: "ffprobe", Runner: &fakeRunner{out: []byte(tt.out), err: tt.err}}
			_, err := p.Probe(context.Background(), "v.mp4")
			assert.ErrorIs(t, err, catalog.ErrProbeFailed)
		})
	}
}

func TestNewFFProbeDefaults(t *testing.T) {
	p := NewFFProbe("")
	assert.Equal(t, "ffprobe", p.Path)
	assert.IsType(t, ExecRunner{}, p.Runner)

	var _ catalog.VideoProber = p
}

func TestFrameExtractor_Extract(t *testing.T) {
	r := &fakeRunner{}
	e := &FrameExtractor{Path: "ffmpeg", Rate: 10, Runner: r}

	require.NoError(t, e.Extract(context.Background(), "videos/clip.mp4", "frames/clip_2_%05d.jpg"))
	require.Len(t, r.calls, 1)
	assert.Equal(t, []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-i", "videos/clip.mp4",
		"-r", "10",
		"-start_number", "0",
		"frames/clip_2_%05d.jpg",
	}, r.calls[0].args)
}

func TestFrameExtractor_Error(t *testing.T) {
	e := &FrameExtractor{Path: "ffmpeg", Rate: 2.5, Runner: &fakeRunner{err: errors.New("boom")}}
	assert.Contains(t, e.Args("a", "b"), "2.5")

	err := e.Extract(context.Background(), "videos/clip.mp4", "out_%05d.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "videos/clip.mp4")
}

func TestNewFrameExtractorDefaults(t *testing.T) {
	e := NewFrameExtractor("", 0)
	assert.Equal(t, "ffmpeg", e.Path)
	assert.Equal(t, float64(catalog.FramesPerSecond), e.Rate)
}

func TestExecRunner(t *testing.T) {
	out, err := ExecRunner{}.Run(context.Background(), "sh", "-c", "printf hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(out))

	_, err = ExecRunner{}.Run(context.Background(), "sh", "-c", "echo bad >&2; exit 3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
}
