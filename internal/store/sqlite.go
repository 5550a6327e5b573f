// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// SQLite stores documents as JSON text in a single table keyed by identity.
type SQLite struct {
	db    *sql.DB
	table string
}

// OpenSQLite opens or creates the database file at cfg.DSN and creates the
// documents table if it does not exist.
func OpenSQLite(ctx context.Context, cfg types.StoreConfig) (*SQLite, error) {
	table, err := tableName(cfg.Collection)
	if err != nil {
		return nil, err
	}
	path := cfg.DSN
	if path == "" {
		return nil, errors.New("sqlite: dsn (database file path) is required")
	}
	if dir := filepath.Dir(strings.TrimPrefix(path, "file:")); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", path+sep+"_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLite{db: db, table: table}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) createSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (
		table_id TEXT NOT NULL,
		requested_year TEXT NOT NULL,
		content TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		scraped_at TEXT NOT NULL,
		schema_version TEXT NOT NULL,
		PRIMARY KEY (table_id, requested_year)
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return classifySQLite("schema", err)
	}
	return nil
}

func (s *SQLite) Upsert(ctx context.Context, id types.Identity, doc *types.IngestedDocument) (Result, error) {
	if err := checkIdentity(id, doc); err != nil {
		return 0, err
	}
	data, hash, err := encode(doc)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classifySQLite("upsert", err)
	}
	defer tx.Rollback()

	var prevHash string
	err = tx.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT content_hash FROM %q WHERE table_id = ? AND requested_year = ?`, s.table),
		id.TableID, id.RequestedYear,
	).Scan(&prevHash)

	var result Result
	switch {
	case errors.Is(err, sql.ErrNoRows):
		result = Inserted
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`INSERT INTO %q (table_id, requested_year, content, content_hash, scraped_at, schema_version)
				VALUES (?, ?, ?, ?, ?, ?)`, s.table),
			id.TableID, id.RequestedYear, string(data), hash, doc.ScrapedAtUTC.Format(time.RFC3339Nano), doc.SchemaVersion,
		)
	case err != nil:
		return 0, classifySQLite("upsert", err)
	case prevHash == hash:
		return Unchanged, nil
	default:
		result = Replaced
		_, err = tx.ExecContext(ctx,
			fmt.Sprintf(`UPDATE %q SET content = ?, content_hash = ?, scraped_at = ?, schema_version = ?
				WHERE table_id = ? AND requested_year = ?`, s.table),
			string(data), hash, doc.ScrapedAtUTC.Format(time.RFC3339Nano), doc.SchemaVersion, id.TableID, id.RequestedYear,
		)
	}
	if err != nil {
		return 0, classifySQLite("upsert", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, classifySQLite("upsert", err)
	}
	return result, nil
}

func (s *SQLite) Get(ctx context.Context, id types.Identity) (*types.IngestedDocument, error) {
	var content string
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT content FROM %q WHERE table_id = ? AND requested_year = ?`, s.table),
		id.TableID, id.RequestedYear,
	).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifySQLite("get", err)
	}
	return decode([]byte(content))
}

// Close releases the database connection.
func (s *SQLite) Close(context.Context) error {
	return s.db.Close()
}

func classifySQLite(op string, err error) error {
	kind := KindUnknown
	var se sqlite3.Error
	switch {
	case errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked):
		kind = KindWriteConflict
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, context.DeadlineExceeded):
		kind = KindConnectionLost
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
