// Package database provides SQLite-backed storage for announcements, price
// and option-chain history, the FNO eligibility universe, and generated
// recommendations.
package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// GetToday returns today's date as YYYY-MM-DD.
func GetToday() string {
	return time.Now().Format("2006-01-02")
}

// Stats holds row counts for the status command.
type Stats struct {
	Announcements   int
	PriceBars       int
	OptionRows      int
	UniverseSymbols int
	Recommendations int
	TradeReady      int
	DatesWithData   int
}

// GetStats returns summary counts across all tables.
func (db *DB) GetStats() (*Stats, error) {
	s := &Stats{}
	counts := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM announcements", &s.Announcements},
		{"SELECT COUNT(*) FROM daily_prices", &s.PriceBars},
		{"SELECT COUNT(*) FROM option_chains", &s.OptionRows},
		{"SELECT COUNT(*) FROM fno_universe", &s.UniverseSymbols},
		{"SELECT COUNT(*) FROM recommendations", &s.Recommendations},
		{"SELECT COUNT(*) FROM recommendations WHERE trade_ready = 1", &s.TradeReady},
		{"SELECT COUNT(DISTINCT event_date) FROM announcements", &s.DatesWithData},
	}
	for _, c := range counts {
		if err := db.conn.QueryRow(c.query).Scan(c.dest); err != nil {
			return nil, err
		}
	}
	return s, nil
}
