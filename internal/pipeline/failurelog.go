package pipeline

import (
	"fmt"
	"strings"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
	"github.com/banshee-data/annotation.catalog/internal/security"
)

var failureLogHeaders = map[catalog.Stage][2]string{
	catalog.StageConvert: {"Annotation files that failed to convert", "(annotation file, source id that should be used) diagnostic"},
	catalog.StageMerge:   {"Catalog files that failed to merge", "(catalog file) diagnostic"},
	catalog.StageFrames:  {"Videos that failed to convert to frames", "(annotation file) diagnostic"},
	catalog.StageSplit:   {"Dataset split anomalies", "(image file) diagnostic"},
}

// FailureLogName is the file a stage's failures are written to.
func FailureLogName(stage catalog.Stage) string {
	return string(stage) + "_error_log.txt"
}

// WriteFailureLog writes the failures of one stage to logsDir. Nothing is
// written for an empty list and the returned path is then empty.
func (p *Pipeline) WriteFailureLog(logsDir string, stage catalog.Stage, failures []catalog.Failure) (string, error) {
	if len(failures) == 0 {
		return "", nil
	}
	path, err := security.JoinWithin(logsDir, FailureLogName(stage))
	if err != nil {
		return "", err
	}

	var b strings.Builder
	header, ok := failureLogHeaders[stage]
	if !ok {
		header = [2]string{string(stage) + " failures", "(identifier) diagnostic"}
	}
	fmt.Fprintf(&b, "------------ %s ------------\n", header[0])
	fmt.Fprintf(&b, "     format: %s\n", header[1])
	for _, f := range failures {
		fmt.Fprintf(&b, "%s\n\n", f)
	}

	if err := p.FS.MkdirAll(logsDir, 0o755); err != nil {
		return "", err
	}
	if err := p.FS.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
