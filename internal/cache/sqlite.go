package cache

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Fixed-width timestamps keep lexicographic string comparison equal to
// chronological comparison inside SQL.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS fetch_cache (
	key        TEXT PRIMARY KEY,
	query      TEXT NOT NULL,
	capability TEXT NOT NULL,
	provider   TEXT NOT NULL,
	payload    BLOB NOT NULL,
	cost       REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_fetch_cache_created_at ON fetch_cache(created_at);
`

// sqliteTier is the persistent tier. Writes funnel through a single
// handle capped at one connection so concurrent writers queue instead of
// tripping SQLITE_BUSY; reads go through a separate read-only handle.
type sqliteTier struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

func openSQLite(path string) (*sqliteTier, error) {
	writeDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)

	if _, err := writeDB.Exec(schema); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	readDB, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("opening cache db read-only: %w", err)
	}
	readDB.SetMaxOpenConns(4)

	return &sqliteTier{writeDB: writeDB, readDB: readDB}, nil
}

func (s *sqliteTier) get(key string) ([]byte, time.Time, bool, error) {
	var (
		payload   []byte
		createdAt string
	)
	err := s.readDB.QueryRow(
		`SELECT payload, created_at FROM fetch_cache WHERE key = ?`, key,
	).Scan(&payload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, false, nil
	}
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("reading cache row: %w", err)
	}
	at, err := time.Parse(sqliteTimeLayout, createdAt)
	if err != nil {
		return nil, time.Time{}, false, fmt.Errorf("parsing cache timestamp: %w", err)
	}
	return payload, at, true, nil
}

func (s *sqliteTier) put(key, query, capability, provider string, payload []byte, cost float64, at time.Time) error {
	_, err := s.writeDB.Exec(`
		INSERT INTO fetch_cache (key, query, capability, provider, payload, cost, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			query      = excluded.query,
			capability = excluded.capability,
			provider   = excluded.provider,
			payload    = excluded.payload,
			cost       = excluded.cost,
			created_at = excluded.created_at
	`, key, query, capability, provider, payload, cost, at.Format(sqliteTimeLayout))
	if err != nil {
		return fmt.Errorf("writing cache row: %w", err)
	}
	return nil
}

func (s *sqliteTier) delete(key string) error {
	if _, err := s.writeDB.Exec(`DELETE FROM fetch_cache WHERE key = ?`, key); err != nil {
		return fmt.Errorf("deleting cache row: %w", err)
	}
	return nil
}

// sweep removes rows created before the cutoff and reports how many.
func (s *sqliteTier) sweep(cutoff time.Time) (int64, error) {
	res, err := s.writeDB.Exec(
		`DELETE FROM fetch_cache WHERE created_at < ?`, cutoff.Format(sqliteTimeLayout),
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping cache rows: %w", err)
	}
	return res.RowsAffected()
}

func (s *sqliteTier) count() (int64, error) {
	var n int64
	if err := s.readDB.QueryRow(`SELECT COUNT(*) FROM fetch_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting cache rows: %w", err)
	}
	return n, nil
}

func (s *sqliteTier) close() error {
	rerr := s.readDB.Close()
	if werr := s.writeDB.Close(); werr != nil {
		return werr
	}
	return rerr
}
