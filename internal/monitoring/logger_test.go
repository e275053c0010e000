package monitoring

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() {
		Logf = original
		SetQuiet(false)
	})
	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger(t *testing.T) {
	lines := capture(t)

	Logf("test message")
	assert.Equal(t, []string{"test message"}, *lines)

	// nil installs a no-op logger
	SetLogger(nil)
	assert.NotPanics(t, func() { Logf("test message") })
	assert.Len(t, *lines, 1)
}

func TestLevelPrefixes(t *testing.T) {
	lines := capture(t)

	Infof("source %d", 1)
	Warnf("event %q", "a")
	Errorf("skipped %s", "b.json")

	assert.Equal(t, []string{
		"[info] source 1",
		`[warn] event "a"`,
		"[error] skipped b.json",
	}, *lines)
}

func TestQuietDropsInfoOnly(t *testing.T) {
	lines := capture(t)
	SetQuiet(true)

	Infof("dropped")
	Warnf("kept")
	Errorf("kept")

	assert.Equal(t, []string{"[warn] kept", "[error] kept"}, *lines)
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}
