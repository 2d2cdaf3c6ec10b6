// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores indices as JSONB documents. Write order is kept in a
// sequence column so scans replay documents in the order they were first
// written.
type Postgres struct {
	pool *pgxpool.Pool
	url  string
}

// NewPostgres creates a store backed by the given pool and ensures the
// schema exists.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, databaseURL string) (*Postgres, error) {
	s := &Postgres{pool: pool, url: databaseURL}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure index schema: %w", err)
	}
	slog.Info("index store initialised", "url", s.URL())
	return s, nil
}

func (s *Postgres) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS gelk_indices (
			name       TEXT PRIMARY KEY,
			mapping    JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS gelk_documents (
			index_name TEXT NOT NULL REFERENCES gelk_indices(name) ON DELETE CASCADE,
			uuid       TEXT NOT NULL,
			seq        BIGSERIAL,
			doc        JSONB NOT NULL,
			updated_at TIMESTAMPTZ DEFAULT NOW(),
			PRIMARY KEY (index_name, uuid)
		);
		CREATE TABLE IF NOT EXISTS gelk_aliases (
			alias      TEXT NOT NULL,
			index_name TEXT NOT NULL REFERENCES gelk_indices(name) ON DELETE CASCADE,
			PRIMARY KEY (alias, index_name)
		);
		CREATE INDEX IF NOT EXISTS idx_documents_seq ON gelk_documents(index_name, seq);
	`)
	return err
}

func (s *Postgres) URL() string { return AnonymizeURL(s.url) }

func (s *Postgres) CreateIndex(ctx context.Context, name string, mapping Mapping) error {
	if mapping == nil {
		mapping = Mapping{}
	}
	b, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal mapping %s: %w", name, err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO gelk_indices (name, mapping) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET mapping = EXCLUDED.mapping
	`, name, b)
	if err != nil {
		return fmt.Errorf("create index %s: %w", name, err)
	}
	return nil
}

func (s *Postgres) DeleteIndex(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM gelk_indices WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete index %s: %w", name, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete %s: %w", name, ErrIndexNotFound)
	}
	return nil
}

func (s *Postgres) IndexExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM gelk_indices WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check index %s: %w", name, err)
	}
	return exists, nil
}

func (s *Postgres) BulkUpsert(ctx context.Context, index string, docs []Document) (int, error) {
	return s.write(ctx, index, docs, `
		INSERT INTO gelk_documents (index_name, uuid, doc) VALUES ($1, $2, $3)
		ON CONFLICT (index_name, uuid) DO UPDATE SET
			doc        = EXCLUDED.doc,
			updated_at = NOW()
	`)
}

func (s *Postgres) BulkMerge(ctx context.Context, index string, docs []Document) (int, error) {
	return s.write(ctx, index, docs, `
		INSERT INTO gelk_documents (index_name, uuid, doc) VALUES ($1, $2, $3)
		ON CONFLICT (index_name, uuid) DO UPDATE SET
			doc        = gelk_documents.doc || EXCLUDED.doc,
			updated_at = NOW()
	`)
}

func (s *Postgres) write(ctx context.Context, index string, docs []Document, query string) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}
	exists, err := s.IndexExists(ctx, index)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("write %s: %w", index, ErrIndexNotFound)
	}

	batch := &pgx.Batch{}
	for _, d := range docs {
		id, _ := d["uuid"].(string)
		if id == "" {
			return 0, fmt.Errorf("write %s: document without uuid", index)
		}
		b, err := json.Marshal(d)
		if err != nil {
			return 0, fmt.Errorf("marshal document %s: %w", id, err)
		}
		batch.Queue(query, index, id, b)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	n := 0
	for range docs {
		if _, err := results.Exec(); err != nil {
			return n, fmt.Errorf("bulk write %s: %w", index, err)
		}
		n++
	}
	return n, nil
}

func (s *Postgres) Scan(ctx context.Context, index string, fn func(Document) error) error {
	var known bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM gelk_indices WHERE name = $1)
		    OR EXISTS (SELECT 1 FROM gelk_aliases WHERE alias = $1)
	`, index).Scan(&known)
	if err != nil {
		return fmt.Errorf("check index %s: %w", index, err)
	}
	if !known {
		return fmt.Errorf("scan %s: %w", index, ErrIndexNotFound)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT d.doc FROM gelk_documents d
		WHERE d.index_name = $1
		   OR d.index_name IN (SELECT index_name FROM gelk_aliases WHERE alias = $1)
		ORDER BY d.index_name, d.seq
	`, index)
	if err != nil {
		return fmt.Errorf("scan %s: %w", index, err)
	}
	// Materialize first: fn may write to the same pool.
	raw, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return fmt.Errorf("scan %s: %w", index, err)
	}

	for _, b := range raw {
		var doc Document
		if err := json.Unmarshal(b, &doc); err != nil {
			return fmt.Errorf("decode document in %s: %w", index, err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

func (s *Postgres) AddAlias(ctx context.Context, index, alias string) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO gelk_aliases (alias, index_name)
		SELECT $1, name FROM gelk_indices WHERE name = $2
		ON CONFLICT DO NOTHING
	`, alias, index)
	if err != nil {
		return fmt.Errorf("add alias %s -> %s: %w", alias, index, err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := s.IndexExists(ctx, index)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("alias %s: %w", index, ErrIndexNotFound)
		}
	}
	return nil
}

func (s *Postgres) ListAliases(ctx context.Context, index string) ([]string, error) {
	exists, err := s.IndexExists(ctx, index)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("aliases %s: %w", index, ErrIndexNotFound)
	}
	rows, err := s.pool.Query(ctx, `
		SELECT alias FROM gelk_aliases WHERE index_name = $1 ORDER BY alias
	`, index)
	if err != nil {
		return nil, fmt.Errorf("list aliases %s: %w", index, err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
