package envlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/nunofsantos/coop-controller/internal/config"
)

const (
	dirPermissions    = 0750
	connectionTimeout = 5 * time.Second
)

//go:embed schema.sql
var schema string

// SQLiteStore keeps readings in the coop_log table.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database and applies the schema.
func OpenSQLite(cfg config.SQLiteConfig) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		cfg.Path, cfg.BusyTimeout*1000)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Write inserts r.
func (s *SQLiteStore) Write(ctx context.Context, r Reading) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO coop_log (ts, kind, value) VALUES (?, ?, ?)`,
		r.Time.UnixMilli(), string(r.Kind), r.Value)
	if err != nil {
		return fmt.Errorf("inserting reading: %w", err)
	}
	return nil
}

// Recent returns up to limit readings of kind, newest first.
func (s *SQLiteStore) Recent(ctx context.Context, kind Kind, limit int) ([]Reading, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, kind, value FROM coop_log WHERE kind = ? ORDER BY ts DESC, id DESC LIMIT ?`,
		string(kind), limit)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	var out []Reading
	for rows.Next() {
		var (
			ts int64
			k  string
			r  Reading
		)
		if err := rows.Scan(&ts, &k, &r.Value); err != nil {
			return nil, fmt.Errorf("scanning reading: %w", err)
		}
		r.Time = time.UnixMilli(ts).UTC()
		r.Kind = Kind(k)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}
