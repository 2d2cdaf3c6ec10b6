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
	"errors"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// exerciseStore runs the behaviour every Store must share.
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	index := "items_" + suffix
	other := "other_" + suffix
	alias := "all_" + suffix

	t.Run("missing index", func(t *testing.T) {
		if _, err := s.BulkUpsert(ctx, index, []Document{{"uuid": "a"}}); !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("BulkUpsert err = %v, want ErrIndexNotFound", err)
		}
		err := s.Scan(ctx, index, func(Document) error { return nil })
		if !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("Scan err = %v, want ErrIndexNotFound", err)
		}
		if ok, err := s.IndexExists(ctx, index); err != nil || ok {
			t.Errorf("IndexExists = %v, %v", ok, err)
		}
	})

	if err := s.CreateIndex(ctx, index, Mapping{"properties": map[string]any{}}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	t.Run("upsert and merge", func(t *testing.T) {
		docs := []Document{
			{"uuid": "a", "n": 1, "name": "first"},
			{"uuid": "b", "n": 2},
		}
		if n, err := s.BulkUpsert(ctx, index, docs); err != nil || n != 2 {
			t.Fatalf("BulkUpsert = %d, %v", n, err)
		}
		if _, err := s.BulkMerge(ctx, index, []Document{{"uuid": "a", "extra": true}}); err != nil {
			t.Fatalf("BulkMerge: %v", err)
		}
		if _, err := s.BulkUpsert(ctx, index, []Document{{"uuid": "b", "n": 3}}); err != nil {
			t.Fatalf("BulkUpsert replace: %v", err)
		}

		var got []Document
		if err := s.Scan(ctx, index, func(d Document) error {
			got = append(got, d)
			return nil
		}); err != nil {
			t.Fatalf("Scan: %v", err)
		}
		want := []Document{
			{"uuid": "a", "n": 1.0, "name": "first", "extra": true},
			{"uuid": "b", "n": 3.0},
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("documents mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("uuid required", func(t *testing.T) {
		if _, err := s.BulkUpsert(ctx, index, []Document{{"n": 1}}); err == nil {
			t.Error("expected error for document without uuid")
		}
	})

	t.Run("aliases", func(t *testing.T) {
		if err := s.CreateIndex(ctx, other, nil); err != nil {
			t.Fatal(err)
		}
		if _, err := s.BulkUpsert(ctx, other, []Document{{"uuid": "z"}}); err != nil {
			t.Fatal(err)
		}
		for _, name := range []string{index, other} {
			if err := s.AddAlias(ctx, name, alias); err != nil {
				t.Fatalf("AddAlias %s: %v", name, err)
			}
		}
		if err := s.AddAlias(ctx, index, alias); err != nil {
			t.Errorf("repeated AddAlias: %v", err)
		}

		n := 0
		if err := s.Scan(ctx, alias, func(Document) error { n++; return nil }); err != nil {
			t.Fatalf("Scan alias: %v", err)
		}
		if n != 3 {
			t.Errorf("alias scan saw %d documents, want 3", n)
		}

		aliases, err := s.ListAliases(ctx, index)
		if err != nil || len(aliases) != 1 || aliases[0] != alias {
			t.Errorf("ListAliases = %v, %v", aliases, err)
		}
		if err := s.AddAlias(ctx, "missing_"+suffix, alias); !errors.Is(err, ErrIndexNotFound) {
			t.Errorf("AddAlias on missing index err = %v", err)
		}
	})

	t.Run("recreate", func(t *testing.T) {
		if err := Recreate(ctx, s, other, nil); err != nil {
			t.Fatalf("Recreate: %v", err)
		}
		n := 0
		if err := s.Scan(ctx, other, func(Document) error { n++; return nil }); err != nil {
			t.Fatal(err)
		}
		if n != 0 {
			t.Errorf("recreated index holds %d documents", n)
		}
		if aliases, _ := s.ListAliases(ctx, other); len(aliases) != 0 {
			t.Errorf("recreated index kept aliases %v", aliases)
		}
	})

	for _, name := range []string{index, other} {
		if err := s.DeleteIndex(ctx, name); err != nil {
			t.Errorf("DeleteIndex %s: %v", name, err)
		}
	}
	if err := s.DeleteIndex(ctx, index); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("second DeleteIndex err = %v", err)
	}
}

// TestMemory runs the store behaviour against the in-memory store.
func TestMemory(t *testing.T) {
	m := NewMemory("memory://")
	exerciseStore(t, m)

	if err := m.CreateIndex(context.Background(), "mapped", Mapping{"dynamic": true}); err != nil {
		t.Fatal(err)
	}
	if mp, ok := m.Mapping("mapped"); !ok || mp["dynamic"] != true {
		t.Errorf("Mapping = %v, %v", mp, ok)
	}
}

// TestMemory_CopiesDocuments verifies that callers never share maps with
// the store.
func TestMemory_CopiesDocuments(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("memory://")
	m.CreateIndex(ctx, "i", nil)

	doc := Document{"uuid": "a", "tags": []any{"x"}}
	m.BulkUpsert(ctx, "i", []Document{doc})
	doc["uuid"] = "changed"

	m.Scan(ctx, "i", func(d Document) error {
		d["tags"] = nil
		return nil
	})
	m.Scan(ctx, "i", func(d Document) error {
		if d["uuid"] != "a" || d["tags"] == nil {
			t.Errorf("stored document was mutated: %v", d)
		}
		return nil
	})
}

// TestPostgres runs the store behaviour against Postgres when
// TEST_DATABASE_URL is set.
func TestPostgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s, err := NewPostgres(ctx, pool, dsn)
	if err != nil {
		t.Fatalf("NewPostgres: %v", err)
	}
	exerciseStore(t, s)
}

// TestAnonymizeURL verifies credential stripping.
func TestAnonymizeURL(t *testing.T) {
	tests := map[string]string{
		"postgres://user:pw@db:5432/gelk": "postgres://db:5432/gelk",
		"http://es:9200":                  "http://es:9200",
		"memory://":                       "memory://",
	}
	for in, want := range tests {
		if got := AnonymizeURL(in); got != want {
			t.Errorf("AnonymizeURL(%q) = %q, want %q", in, got, want)
		}
	}
}
