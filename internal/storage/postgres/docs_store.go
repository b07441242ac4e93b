// Package postgres provides the Postgres-backed docs repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/betterdocs/dashboard/internal/store"
)

// DocsStoreConfig controls the Postgres connection pool.
type DocsStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// queryPool is the subset of pgxpool.Pool the store uses; pgxmock satisfies
// it in tests.
type queryPool interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// DocsStore implements store.DocsRepository on Postgres. Docs are stored as
// JSONB keyed by slug, so the upsert is a single idempotent statement.
type DocsStore struct {
	pool queryPool
}

// NewDocsStore connects a pool using the provided config.
func NewDocsStore(ctx context.Context, cfg DocsStoreConfig) (*DocsStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &DocsStore{pool: pool}, nil
}

// NewDocsStoreWithPool constructs a store from an existing pool (primarily
// for testing).
func NewDocsStoreWithPool(pool queryPool) (*DocsStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &DocsStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *DocsStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Upsert inserts or overwrites the record for the slug derived from
// (repoName, owner). Concurrent upserts for the same slug are last-write-wins.
func (s *DocsStore) Upsert(
	ctx context.Context,
	owner, repoURL, repoName string,
	docs json.RawMessage,
) (store.PersistedDoc, error) {
	if s == nil || s.pool == nil {
		return store.PersistedDoc{}, fmt.Errorf("docs store is not configured")
	}
	if owner == "" {
		return store.PersistedDoc{}, fmt.Errorf("owner is required")
	}
	slug := store.Slug(repoName, owner)
	query := `
INSERT INTO generated_docs (slug, owner_id, repo_url, repo_name, docs, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, now(), now())
ON CONFLICT (slug) DO UPDATE
SET repo_url = EXCLUDED.repo_url,
    docs = EXCLUDED.docs,
    updated_at = now()
RETURNING slug, owner_id, repo_url, repo_name, docs, created_at, updated_at;`

	row := s.pool.QueryRow(ctx, query, slug, owner, repoURL, repoName, []byte(docs))
	doc, err := scanDoc(row)
	if err != nil {
		return store.PersistedDoc{}, fmt.Errorf("upsert docs: %w", err)
	}
	return doc, nil
}

// Get loads one artifact or returns store.ErrNotFound.
func (s *DocsStore) Get(ctx context.Context, slug string) (store.PersistedDoc, error) {
	if s == nil || s.pool == nil {
		return store.PersistedDoc{}, fmt.Errorf("docs store is not configured")
	}
	query := `
SELECT slug, owner_id, repo_url, repo_name, docs, created_at, updated_at
FROM generated_docs
WHERE slug = $1;`

	row := s.pool.QueryRow(ctx, query, slug)
	doc, err := scanDoc(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.PersistedDoc{}, store.ErrNotFound
		}
		return store.PersistedDoc{}, fmt.Errorf("get docs: %w", err)
	}
	return doc, nil
}

func scanDoc(row pgx.Row) (store.PersistedDoc, error) {
	var (
		doc  store.PersistedDoc
		blob []byte
	)
	err := row.Scan(&doc.Slug, &doc.Owner, &doc.RepoURL, &doc.RepoName, &blob, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return store.PersistedDoc{}, err
	}
	doc.Docs = json.RawMessage(blob)
	return doc, nil
}
