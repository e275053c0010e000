package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/annotation.catalog/internal/catalog"
)

// Run status values.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrNoRuns is returned by LatestRun when the ledger holds no matching run.
var ErrNoRuns = errors.New("no runs recorded")

// Run is one row of the runs table.
type Run struct {
	ID          string
	Stage       string
	ConfigJSON  string
	ToolVersion string
	StartedAt   time.Time
	FinishedAt  *time.Time
	Status      string
	Images      int
	Annotations int
}

// SourceRow records the SourceId a run gave an annotation file.
type SourceRow struct {
	SourceID    int
	Path        string
	Video       string
	Images      int
	Annotations int
	Rejected    int
}

// SplitRow records the subset a video was assigned to.
type SplitRow struct {
	Video  string
	Split  string
	Images int
}

// StartRun inserts a running run and returns its id.
func (db *DB) StartRun(stage catalog.Stage, configJSON, toolVersion string) (string, error) {
	id := uuid.NewString()
	if configJSON == "" {
		configJSON = "{}"
	}
	_, err := db.Exec(
		`INSERT INTO runs (run_id, stage, config_json, tool_version, started_unix_nanos, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(stage), configJSON, toolVersion, db.clock.Now().UnixNano(), StatusRunning,
	)
	if err != nil {
		return "", fmt.Errorf("failed to start %s run: %w", stage, err)
	}
	return id, nil
}

// FinishRun stamps a run with its outcome and catalog size.
func (db *DB) FinishRun(runID, status string, images, annotations int) error {
	res, err := db.Exec(
		`UPDATE runs SET finished_unix_nanos = ?, status = ?, images = ?, annotations = ? WHERE run_id = ?`,
		db.clock.Now().UnixNano(), status, images, annotations, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %s: %w", runID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// RecordSource stores the SourceId assignment of one annotation file.
func (db *DB) RecordSource(runID string, s SourceRow) error {
	_, err := db.Exec(
		`INSERT INTO run_sources (run_id, source_id, source_path, video, images, annotations, rejected)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, s.SourceID, s.Path, s.Video, s.Images, s.Annotations, s.Rejected,
	)
	if err != nil {
		return fmt.Errorf("failed to record source %d: %w", s.SourceID, err)
	}
	return nil
}

// RecordFailure stores one skipped item.
func (db *DB) RecordFailure(runID string, f catalog.Failure) error {
	var sourceID sql.NullInt64
	if f.SourceID != nil {
		sourceID = sql.NullInt64{Int64: int64(*f.SourceID), Valid: true}
	}
	_, err := db.Exec(
		`INSERT INTO run_failures (run_id, stage, identifier, source_id, diagnostic) VALUES (?, ?, ?, ?, ?)`,
		runID, string(f.Stage), f.Identifier, sourceID, f.Diagnostic,
	)
	if err != nil {
		return fmt.Errorf("failed to record failure for %s: %w", f.Identifier, err)
	}
	return nil
}

// RecordSplit stores the subset of one video.
func (db *DB) RecordSplit(runID string, s SplitRow) error {
	_, err := db.Exec(
		`INSERT INTO run_splits (run_id, video, split, images) VALUES (?, ?, ?, ?)`,
		runID, s.Video, s.Split, s.Images,
	)
	if err != nil {
		return fmt.Errorf("failed to record split of %s: %w", s.Video, err)
	}
	return nil
}

// RunFailures returns the failures of a run in the order they were recorded.
func (db *DB) RunFailures(runID string) ([]catalog.Failure, error) {
	rows, err := db.Query(
		`SELECT stage, identifier, source_id, diagnostic FROM run_failures WHERE run_id = ? ORDER BY failure_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []catalog.Failure
	for rows.Next() {
		var (
			f        catalog.Failure
			stage    string
			sourceID sql.NullInt64
		)
		if err := rows.Scan(&stage, &f.Identifier, &sourceID, &f.Diagnostic); err != nil {
			return nil, err
		}
		f.Stage = catalog.Stage(stage)
		if sourceID.Valid {
			f = f.WithSourceID(int(sourceID.Int64))
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// RunSources returns the sources of a run ordered by SourceId.
func (db *DB) RunSources(runID string) ([]SourceRow, error) {
	rows, err := db.Query(
		`SELECT source_id, source_path, video, images, annotations, rejected
		 FROM run_sources WHERE run_id = ? ORDER BY source_id`,
		runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SourceRow
	for rows.Next() {
		var s SourceRow
		if err := rows.Scan(&s.SourceID, &s.Path, &s.Video, &s.Images, &s.Annotations, &s.Rejected); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RunSplits returns the video assignments of a run ordered by video.
func (db *DB) RunSplits(runID string) ([]SplitRow, error) {
	rows, err := db.Query(`SELECT video, split, images FROM run_splits WHERE run_id = ? ORDER BY video`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SplitRow
	for rows.Next() {
		var s SplitRow
		if err := rows.Scan(&s.Video, &s.Split, &s.Images); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestRun returns the most recently started run of a stage, or of any
// stage when stage is empty.
func (db *DB) LatestRun(stage catalog.Stage) (*Run, error) {
	row := db.QueryRow(
		`SELECT run_id, stage, config_json, tool_version, started_unix_nanos, finished_unix_nanos, status, images, annotations
		 FROM runs WHERE (? = '' OR stage = ?) ORDER BY started_unix_nanos DESC, rowid DESC LIMIT 1`,
		string(stage), string(stage),
	)
	var (
		r        Run
		started  int64
		finished sql.NullInt64
	)
	err := row.Scan(&r.ID, &r.Stage, &r.ConfigJSON, &r.ToolVersion, &started, &finished, &r.Status, &r.Images, &r.Annotations)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoRuns
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		r.FinishedAt = &t
	}
	return &r, nil
}
