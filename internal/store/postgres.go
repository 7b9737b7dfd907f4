package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/i474232898/river-data-aggregation/internal/hydro"
)

const schema = `
CREATE TABLE IF NOT EXISTS observations (
	source       TEXT        NOT NULL,
	site         TEXT        NOT NULL,
	series       TEXT        NOT NULL DEFAULT '',
	ts           TIMESTAMPTZ NOT NULL,
	value        DOUBLE PRECISION,
	quality_flag TEXT        NOT NULL DEFAULT '',
	extra        JSONB,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (source, site, series, ts)
)`

const upsertObservation = `
INSERT INTO observations (source, site, series, ts, value, quality_flag, extra, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
ON CONFLICT (source, site, series, ts) DO UPDATE SET
	value = EXCLUDED.value,
	quality_flag = EXCLUDED.quality_flag,
	extra = EXCLUDED.extra,
	updated_at = NOW()`

// PostgresStore persists observations in a single observations table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to dsn and creates the schema if missing.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &PostgresStore{pool: pool}
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Write upserts a table's records in one batch. Overwrite clears the
// site's previous history first; reject fails if any history exists.
func (s *PostgresStore) Write(ctx context.Context, t *hydro.Table, mode hydro.WriteMode) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	switch mode {
	case hydro.WriteOverwrite:
		if _, err := tx.Exec(ctx, `DELETE FROM observations WHERE source = $1 AND site = $2`, t.Source, t.Site); err != nil {
			return fmt.Errorf("clear %s/%s: %w", t.Source, t.Site, err)
		}
	case hydro.WriteReject:
		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM observations WHERE source = $1 AND site = $2)`,
			t.Source, t.Site).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return &hydro.ErrExists{Target: key(t.Source, t.Site)}
		}
	}

	batch := &pgx.Batch{}
	for _, r := range t.Records {
		var extra []byte
		if len(r.Extra) > 0 {
			if extra, err = json.Marshal(r.Extra); err != nil {
				return err
			}
		}
		batch.Queue(upsertObservation, t.Source, t.Site, r.Series, r.Timestamp.UTC(), r.Value, r.QualityFlag, extra)
	}

	res := tx.SendBatch(ctx, batch)
	for range t.Records {
		if _, err := res.Exec(); err != nil {
			res.Close()
			return fmt.Errorf("upsert %s/%s: %w", t.Source, t.Site, err)
		}
	}
	if err := res.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetLatest returns every stored record for a site.
func (s *PostgresStore) GetLatest(source, site string) (*hydro.Table, error) {
	records, err := s.query(context.Background(),
		`SELECT series, ts, value, quality_flag, extra FROM observations
		 WHERE source = $1 AND site = $2 ORDER BY ts, series`, source, site)
	if err != nil {
		return nil, err
	}
	return &hydro.Table{Source: source, Site: site, Records: records}, nil
}

// GetRange returns stored records between from and to (inclusive).
func (s *PostgresStore) GetRange(source, site string, from, to time.Time) ([]hydro.Record, error) {
	return s.query(context.Background(),
		`SELECT series, ts, value, quality_flag, extra FROM observations
		 WHERE source = $1 AND site = $2 AND ts BETWEEN $3 AND $4 ORDER BY ts, series`,
		source, site, from.UTC(), to.UTC())
}

func (s *PostgresStore) query(ctx context.Context, sql string, args ...any) ([]hydro.Record, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []hydro.Record
	for rows.Next() {
		var (
			r     hydro.Record
			extra []byte
		)
		if err := rows.Scan(&r.Series, &r.Timestamp, &r.Value, &r.QualityFlag, &extra); err != nil {
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		if len(extra) > 0 {
			if err := json.Unmarshal(extra, &r.Extra); err != nil {
				return nil, err
			}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return records, nil
}

var _ hydro.Store = (*PostgresStore)(nil)
