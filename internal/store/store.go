// Package store keeps a translation memory in PostgreSQL so catalogues can be
// shared between machines and overlaid on the CSV tables at build time.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"d88-localizer/internal/catalog"
	"d88-localizer/internal/textutil"
)

const schema = `
CREATE TABLE IF NOT EXISTS translations (
	kind        TEXT        NOT NULL,
	hash        TEXT        NOT NULL,
	source      TEXT        NOT NULL,
	translated  TEXT        NOT NULL,
	extra       TEXT[]      NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (kind, hash)
)`

const upsertTranslation = `
INSERT INTO translations (kind, hash, source, translated, extra)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (kind, hash) DO UPDATE
SET translated = EXCLUDED.translated, extra = EXCLUDED.extra, updated_at = now()
WHERE translations.translated IS DISTINCT FROM EXCLUDED.translated
   OR translations.extra IS DISTINCT FROM EXCLUDED.extra`

const listTranslations = `
SELECT source, translated, extra FROM translations WHERE kind = $1`

// Store is a PostgreSQL-backed translation memory.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to the database at url and checks the connection.
func Open(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info().Msg("Connected to PostgreSQL")
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// EnsureSchema creates the translations table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Upsert stores the translated rows of table under kind in one batch. Rows
// without a translation are skipped. It returns the number of rows written.
func (s *Store) Upsert(ctx context.Context, kind catalog.Kind, table catalog.Table) (int, error) {
	batch := &pgx.Batch{}
	for source, row := range table {
		translated, ok := table.Translation(source)
		if !ok {
			continue
		}
		extra := append([]string{}, row[1:]...)
		batch.Queue(upsertTranslation, string(kind), textutil.Hash(source), source, translated, extra)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := s.pool.SendBatch(ctx, batch)
	written := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			results.Close()
			return written, fmt.Errorf("upsert translation: %w", err)
		}
		written += int(tag.RowsAffected())
	}
	if err := results.Close(); err != nil {
		return written, fmt.Errorf("close batch: %w", err)
	}

	log.Info().Str("kind", string(kind)).Int("queued", batch.Len()).Int("written", written).Msg("Upserted translations")
	return written, nil
}

// Load returns the stored translations of kind as a lookup table.
func (s *Store) Load(ctx context.Context, kind catalog.Kind) (catalog.Table, error) {
	rows, err := s.pool.Query(ctx, listTranslations, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query translations: %w", err)
	}
	defer rows.Close()

	table := make(catalog.Table)
	for rows.Next() {
		var source, translated string
		var extra []string
		if err := rows.Scan(&source, &translated, &extra); err != nil {
			return nil, fmt.Errorf("scan translation: %w", err)
		}
		table[source] = append([]string{translated}, extra...)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read translations: %w", err)
	}

	log.Info().Str("kind", string(kind)).Int("count", len(table)).Msg("Loaded translation memory")
	return table, nil
}
