package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"smsrelay/internal/relay"
	logx "smsrelay/pkg/logx"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS ledger_document (
	id         INTEGER PRIMARY KEY CHECK (id = 1),
	doc        TEXT    NOT NULL,
	updated_ms INTEGER NOT NULL
);`

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (relay.Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) ([]relay.HistoryEntry, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM ledger_document WHERE id = 1`).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return Decode([]byte(doc))
}

func (s *sqliteStore) Save(ctx context.Context, entries []relay.HistoryEntry) error {
	b, err := Encode(entries)
	if err != nil {
		return err
	}
	return s.put(ctx, string(b))
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	return s.put(ctx, "[]")
}

func (s *sqliteStore) put(ctx context.Context, doc string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ledger_document(id, doc, updated_ms) VALUES(1, ?, strftime('%s','now') * 1000)
		 ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_ms = excluded.updated_ms`,
		doc,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
