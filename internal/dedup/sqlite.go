package dedup

import (
	"database/sql"
	"fmt"

	// BLANK IMPORT:
	// The underscore import `_ "modernc.org/sqlite"` is a "side-effect only"
	// import. The sqlite package's init() registers itself with database/sql
	// as a driver named "sqlite"; after this import, sql.Open("sqlite", ...)
	// knows how to talk to SQLite. Pure Go, no C compiler needed.
	_ "modernc.org/sqlite"
)

var _ Scope = (*SQLiteScope)(nil)

// SQLiteScope is a file-backed scope. Unlike MemoryScope it survives a
// client restart for as long as the backing file does, which mirrors how a
// browser's session storage survives a page refresh. Whoever owns the
// session decides when the file is deleted — that deletion IS the end of
// the dedup window.
type SQLiteScope struct {
	conn *sql.DB
}

// NewSQLiteScope opens (or creates) the scope database at path.
// Use ":memory:" in tests for a throwaway scope.
func NewSQLiteScope(path string) (*SQLiteScope, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("dedup: opening scope database: %w", err)
	}

	// Ping forces a real connection so a bad path fails here, not on the
	// first Contains call.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dedup: pinging scope database: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS consumed_keys (
			key        TEXT PRIMARY KEY,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("dedup: creating scope table: %w", err)
	}

	return &SQLiteScope{conn: conn}, nil
}

// Close releases the backing file. The recorded keys remain on disk.
func (s *SQLiteScope) Close() error {
	return s.conn.Close()
}

func (s *SQLiteScope) Contains(key string) (bool, error) {
	var exists int
	err := s.conn.QueryRow(
		"SELECT 1 FROM consumed_keys WHERE key = ?", key,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup: reading scope: %w", err)
	}
	return true, nil
}

func (s *SQLiteScope) Put(key string) error {
	// INSERT OR IGNORE keeps Put idempotent at the storage level too.
	_, err := s.conn.Exec(
		"INSERT OR IGNORE INTO consumed_keys (key) VALUES (?)", key,
	)
	if err != nil {
		return fmt.Errorf("dedup: writing scope: %w", err)
	}
	return nil
}
