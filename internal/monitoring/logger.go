// Package monitoring holds the diagnostic logger shared by the catalog
// builder. Levels follow the run's error taxonomy: expected filtering is
// info, malformed input is a warning, skipped sources, catalogs and images
// are errors.
package monitoring

import "log"

// Logf is the package-level diagnostic logger. It defaults to log.Printf but may
// be replaced by SetLogger. Tests or production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// quiet suppresses info lines; warnings and errors always reach Logf.
var quiet bool

// SetQuiet mutes info-level lines. Per-event filter output is info level
// and is noisy on large runs.
func SetQuiet(q bool) { quiet = q }

// Infof logs expected steady-state events such as filtered annotations.
func Infof(format string, v ...interface{}) {
	if quiet {
		return
	}
	Logf("[info] "+format, v...)
}

// Warnf logs malformed input that was skipped.
func Warnf(format string, v ...interface{}) {
	Logf("[warn] "+format, v...)
}

// Errorf logs items dropped from a run.
func Errorf(format string, v ...interface{}) {
	Logf("[error] "+format, v...)
}
