package assertsnap

import (
	"database/sql"
	"fmt"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
	name       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	artifact   TEXT NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
);
`

// Store is a name-keyed baseline store backed by one SQLite database
// file per snapshots_dir (§4.8, DESIGN.md Open Question 4) — grounded
// on the teacher's store.Open: single-writer connection pool, WAL mode,
// busy timeout, and an idempotent schema-apply-on-open.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if absent) the snapshot database at
// <snapshotsDir>/snapshots.db.
func OpenStore(snapshotsDir string) (*Store, error) {
	path := filepath.Join(snapshotsDir, "snapshots.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("assertsnap: opening snapshot store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("assertsnap: connecting to snapshot store: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("assertsnap: applying pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("assertsnap: applying snapshot schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Baseline is a stored named snapshot.
type Baseline struct {
	Name     string
	Checksum string
	Artifact string // canonical JSON bytes of the baseline artifact, as text
}

// Get looks up a named baseline, returning (Baseline{}, false, nil) if
// no snapshot with that name exists yet.
func (s *Store) Get(name string) (Baseline, bool, error) {
	row := s.db.QueryRow(`SELECT name, checksum, artifact FROM snapshots WHERE name = ?`, name)
	var b Baseline
	if err := row.Scan(&b.Name, &b.Checksum, &b.Artifact); err != nil {
		if err == sql.ErrNoRows {
			return Baseline{}, false, nil
		}
		return Baseline{}, false, fmt.Errorf("assertsnap: reading snapshot %q: %w", name, err)
	}
	return b, true, nil
}

// Put creates or overwrites a named baseline — the §4.8 "update=true
// rewrites the baseline" path.
func (s *Store) Put(b Baseline) error {
	_, err := s.db.Exec(
		`INSERT INTO snapshots (name, checksum, artifact) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET checksum = excluded.checksum, artifact = excluded.artifact,
		   updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')`,
		b.Name, b.Checksum, b.Artifact,
	)
	if err != nil {
		return fmt.Errorf("assertsnap: writing snapshot %q: %w", b.Name, err)
	}
	return nil
}
