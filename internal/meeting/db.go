package meeting

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// currentSchemaVersion is the latest schema version. Bump when adding
// migrations.
const currentSchemaVersion = 1

// OpenDB initializes the SQLite database at baseDir/meetings.db. The
// baseDir parameter lets tests use t.TempDir() instead of the data dir.
func OpenDB(baseDir string) (*sql.DB, error) {
	if err := os.MkdirAll(baseDir, 0o700); err != nil {
		return nil, fmt.Errorf("create record store dir: %w", err)
	}

	dbPath := filepath.Join(baseDir, "meetings.db")
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0o600)
	return db, nil
}

// migrate applies schema migrations based on user_version.
func migrate(db *sql.DB) error {
	version, err := userVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS meetings (
		  id              TEXT PRIMARY KEY,
		  owner_id        TEXT NOT NULL,
		  title           TEXT NOT NULL,
		  status          TEXT NOT NULL,
		  failure_reason  TEXT NOT NULL DEFAULT '',
		  transcript_text TEXT NOT NULL DEFAULT '',
		  audio_locator   TEXT NOT NULL DEFAULT '',
		  minutes_locator TEXT NOT NULL DEFAULT '',
		  created_at      INTEGER NOT NULL,
		  updated_at      INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_meetings_owner_created
		  ON meetings(owner_id, created_at DESC);
		`
		if _, err := db.Exec(schema); err != nil {
			return fmt.Errorf("apply schema v1: %w", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func userVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("read user_version: %w", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}
