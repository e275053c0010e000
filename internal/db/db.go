// Package db is the run ledger: a SQLite record of every conversion, merge,
// frame extraction and split run, the SourceIds it handed out and the items
// it had to skip. Operators re-run failed items from it.
package db

import (
	"database/sql"
	"fmt"
	"net/url"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/annotation.catalog/internal/timeutil"
)

// pragmas are applied to every pooled connection through the DSN.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(NORMAL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// OpenDB opens the database without touching the schema. The migrate
// subcommand uses it; everything else should use NewDB.
func OpenDB(path string) (*DB, error) {
	q := url.Values{}
	for _, p := range pragmas {
		q.Add("_pragma", p)
	}
	db, err := sql.Open("sqlite", path+"?"+q.Encode())
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &DB{DB: db, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used to stamp runs.
func (db *DB) SetClock(c timeutil.Clock) {
	if c == nil {
		c = timeutil.RealClock{}
	}
	db.clock = c
}
