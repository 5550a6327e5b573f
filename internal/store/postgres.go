// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/IlhamRichie/bps-ingest/pkg/types"
)

// Postgres stores documents as jsonb rows keyed by identity.
type Postgres struct {
	pool  *pgxpool.Pool
	table string
}

// OpenPostgres connects a pool to cfg.DSN, verifies it with a ping, and
// creates the documents table if it does not exist.
func OpenPostgres(ctx context.Context, cfg types.StoreConfig) (*Postgres, error) {
	name, err := tableName(cfg.Collection)
	if err != nil {
		return nil, err
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if pcfg.MaxConns <= 0 || pcfg.MaxConns > 4 {
		pcfg.MaxConns = 4
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, classifyPostgres("connect", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, classifyPostgres("connect", err)
	}

	p := &Postgres{pool: pool, table: pgx.Identifier{name}.Sanitize()}
	if err := p.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) createSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		table_id TEXT NOT NULL,
		requested_year TEXT NOT NULL,
		content JSONB NOT NULL,
		content_hash TEXT NOT NULL,
		scraped_at TIMESTAMPTZ NOT NULL,
		schema_version TEXT NOT NULL,
		PRIMARY KEY (table_id, requested_year)
	)`, p.table))
	if err != nil {
		return classifyPostgres("schema", err)
	}
	return nil
}

// Upsert inserts or fully replaces the row for id in one statement. The WHERE
// clause on the conflict branch skips the write when content is identical,
// in which case no row is returned.
func (p *Postgres) Upsert(ctx context.Context, id types.Identity, doc *types.IngestedDocument) (Result, error) {
	if err := checkIdentity(id, doc); err != nil {
		return 0, err
	}
	data, hash, err := encode(doc)
	if err != nil {
		return 0, err
	}

	var inserted bool
	err = p.pool.QueryRow(ctx, fmt.Sprintf(`
		INSERT INTO %[1]s (table_id, requested_year, content, content_hash, scraped_at, schema_version)
		VALUES ($1, $2, $3::jsonb, $4, $5, $6)
		ON CONFLICT (table_id, requested_year) DO UPDATE SET
			content = EXCLUDED.content,
			content_hash = EXCLUDED.content_hash,
			scraped_at = EXCLUDED.scraped_at,
			schema_version = EXCLUDED.schema_version
		WHERE %[1]s.content_hash <> EXCLUDED.content_hash
		RETURNING (xmax = 0)`, p.table),
		id.TableID, id.RequestedYear, string(data), hash, doc.ScrapedAtUTC, doc.SchemaVersion,
	).Scan(&inserted)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return Unchanged, nil
	case err != nil:
		return 0, classifyPostgres("upsert", err)
	case inserted:
		return Inserted, nil
	default:
		return Replaced, nil
	}
}

func (p *Postgres) Get(ctx context.Context, id types.Identity) (*types.IngestedDocument, error) {
	var content string
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT content::text FROM %s WHERE table_id = $1 AND requested_year = $2`, p.table),
		id.TableID, id.RequestedYear,
	).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, classifyPostgres("get", err)
	}
	return decode([]byte(content))
}

// Close closes the pool.
func (p *Postgres) Close(context.Context) error {
	p.pool.Close()
	return nil
}

func classifyPostgres(op string, err error) error {
	kind := KindUnknown
	var pgErr *pgconn.PgError
	var netErr net.Error
	switch {
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			kind = KindWriteConflict
		case "57P01", "57P02", "57P03", "08000", "08003", "08006":
			kind = KindConnectionLost
		}
	case pgconn.Timeout(err), pgconn.SafeToRetry(err), errors.As(err, &netErr):
		kind = KindConnectionLost
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
