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

package raw

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bcem/gelk/internal/anonymize"
	"github.com/bcem/gelk/internal/dedup"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// --- Mock dedup filter ---

type mockDedup struct {
	mu   sync.Mutex
	seen map[string]string
}

func newMockDedup() *mockDedup {
	return &mockDedup{seen: make(map[string]string)}
}

func (m *mockDedup) IsNew(_ context.Context, index, itemUUID, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[index+":"+itemUUID] != hash, nil
}

func (m *mockDedup) Commit(_ context.Context, index string, entries []dedup.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.seen[index+":"+e.UUID] = e.Hash
	}
	return nil
}

// --- Flaky store ---

// flakyStore fails the first BulkUpsert and delegates everything else.
type flakyStore struct {
	store.Store
	failed bool
}

func (f *flakyStore) BulkUpsert(ctx context.Context, index string, docs []store.Document) (int, error) {
	if !f.failed {
		f.failed = true
		return 0, errors.New("connection reset by peer")
	}
	return f.Store.BulkUpsert(ctx, index, docs)
}

// --- Test helpers ---

const gitItems = `
{"backend_name": "git", "uuid": "u1", "updated_on": 1344965413, "data": {"commit": "c1", "Author": "Eduardo Morais <e@gmail.com>", "Commit": "Eduardo Morais <e@gmail.com>", "AuthorDate": "Tue Aug 14 14:30:13 2012 -0300"}}

{"backend_name": "git", "uuid": "u2", "updated_on": 1344965414, "data": {"commit": "c2", "Author": "Zhongpeng Lin <lin@example.org>", "Commit": "", "AuthorDate": "Tue Aug 14 15:30:13 2012 +0300"}}
{"backend_name": "git", "updated_on": 1, "data": {"commit": "c3"}}
`

func collectAll(t *testing.T, s store.Store, index string) []store.Document {
	t.Helper()
	var docs []store.Document
	err := s.Scan(context.Background(), index, func(d store.Document) error {
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	return docs
}

// TestRunner_WritesAnonymizedItems verifies the full path: params, index
// creation, anonymization before write, and rejected items.
func TestRunner_WritesAnonymizedItems(t *testing.T) {
	mem := store.NewMemory("postgres://user:secret@db:5432/gelk")
	runner := NewRunner(RunnerConfig{
		Collector: NewJSONLines(strings.NewReader(gitItems)),
		Store:     mem,
		BatchSize: 1,
	})

	result, err := runner.Run(context.Background(), Request{
		Kind:       models.KindGit,
		Identifier: "https://github.com/acme/widgets /tmp/clone",
		Index:      "git_raw",
		Aliases:    []string{"git-raw"},
		Anonymize:  true,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Fetched != 3 || result.Written != 2 || result.Errors != 1 {
		t.Errorf("result = %+v, want fetched=3 written=2 errors=1", result)
	}

	if _, ok := mem.Mapping("git_raw"); !ok {
		t.Error("raw mapping was not registered")
	}
	aliases, err := mem.ListAliases(context.Background(), "git_raw")
	if err != nil || len(aliases) != 1 || aliases[0] != "git-raw" {
		t.Errorf("aliases = %v, %v", aliases, err)
	}

	docs := collectAll(t, mem, "git-raw")
	if len(docs) != 2 {
		t.Fatalf("got %d docs, want 2", len(docs))
	}
	first, err := models.RawItemFromDocument(docs[0])
	if err != nil {
		t.Fatal(err)
	}
	if first.UUID != "u1" {
		t.Errorf("first uuid = %q, want write order", first.UUID)
	}
	if first.Origin != "https://github.com/acme/widgets" {
		t.Errorf("origin = %q", first.Origin)
	}
	wantAuthor := anonymize.Digest("Eduardo Morais") + " <xxxxxx@gmail.com>"
	if first.Data["Author"] != wantAuthor {
		t.Errorf("Author = %v, want %v", first.Data["Author"], wantAuthor)
	}

	second, _ := models.RawItemFromDocument(docs[1])
	if second.Data["Commit"] != "" {
		t.Errorf("empty committer = %#v, want empty string", second.Data["Commit"])
	}
}

// TestRunner_MeetupTag verifies that meetup items are tagged with their
// group url.
func TestRunner_MeetupTag(t *testing.T) {
	mem := store.NewMemory("memory://")
	in := `{"backend_name": "meetup", "uuid": "e1", "data": {"id": "1"}}`
	runner := NewRunner(RunnerConfig{Collector: NewJSONLines(strings.NewReader(in)), Store: mem})

	_, err := runner.Run(context.Background(), Request{
		Kind:       models.KindMeetup,
		Identifier: "https://www.meetup.com/South-East-Puppet-User-Group/",
		Index:      "meetup_raw",
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	docs := collectAll(t, mem, "meetup_raw")
	if len(docs) != 1 {
		t.Fatalf("got %d docs", len(docs))
	}
	if docs[0]["tag"] != "https://www.meetup.com/South-East-Puppet-User-Group/" {
		t.Errorf("tag = %v", docs[0]["tag"])
	}
}

// TestRunner_SkipsUnchanged verifies that a second run over identical
// items is skipped by the dedup filter.
func TestRunner_SkipsUnchanged(t *testing.T) {
	mem := store.NewMemory("memory://")
	seen := newMockDedup()
	req := Request{Kind: models.KindGit, Identifier: "https://github.com/acme/widgets", Index: "git_raw"}

	for run, wantWritten := range []int{2, 0} {
		runner := NewRunner(RunnerConfig{
			Collector: NewJSONLines(strings.NewReader(gitItems)),
			Store:     mem,
			Dedup:     seen,
		})
		result, err := runner.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("run %d: %v", run, err)
		}
		if result.Written != wantWritten {
			t.Errorf("run %d: written = %d, want %d", run, result.Written, wantWritten)
		}
	}
}

// TestRunner_RerunAfterFailedWrite verifies that items of a batch that
// failed to write are not remembered as seen, so the rerun stores them.
func TestRunner_RerunAfterFailedWrite(t *testing.T) {
	mem := store.NewMemory("memory://")
	seen := newMockDedup()
	req := Request{Kind: models.KindGit, Identifier: "https://github.com/acme/widgets", Index: "git_raw"}

	first := NewRunner(RunnerConfig{
		Collector: NewJSONLines(strings.NewReader(gitItems)),
		Store:     &flakyStore{Store: mem},
		Dedup:     seen,
	})
	if _, err := first.Run(context.Background(), req); err == nil {
		t.Fatal("expected write error on the first run")
	}
	if n := len(seen.seen); n != 0 {
		t.Errorf("%d hashes recorded after a failed write, want 0", n)
	}

	second := NewRunner(RunnerConfig{
		Collector: NewJSONLines(strings.NewReader(gitItems)),
		Store:     mem,
		Dedup:     seen,
	})
	result, err := second.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("rerun: %v", err)
	}
	if result.Written != 2 || result.Skipped != 0 {
		t.Errorf("rerun result = %+v, want written=2 skipped=0", result)
	}
	if docs := collectAll(t, mem, "git_raw"); len(docs) != 2 {
		t.Errorf("raw index has %d docs after rerun, want 2", len(docs))
	}
	if n := len(seen.seen); n != 2 {
		t.Errorf("%d hashes recorded after the rerun, want 2", n)
	}
}

// TestRunner_EmptyIdentifier verifies that nothing is created for an empty
// identifier.
func TestRunner_EmptyIdentifier(t *testing.T) {
	mem := store.NewMemory("memory://")
	runner := NewRunner(RunnerConfig{Collector: NewJSONLines(strings.NewReader("")), Store: mem})
	if _, err := runner.Run(context.Background(), Request{Kind: models.KindGit, Index: "git_raw"}); err == nil {
		t.Fatal("expected error")
	}
	if ok, _ := mem.IndexExists(context.Background(), "git_raw"); ok {
		t.Error("index created for a failed request")
	}
}

// TestJSONLines_BadLine verifies that undecodable input stops collection
// with the line number.
func TestJSONLines_BadLine(t *testing.T) {
	c := NewJSONLines(strings.NewReader("{\"uuid\": \"a\"}\nnot json\n"))
	n := 0
	err := c.Collect(context.Background(), nil, func(models.RawItem) error {
		n++
		return nil
	})
	if err == nil || !strings.Contains(err.Error(), "line 2") {
		t.Fatalf("err = %v, want line 2 error", err)
	}
	if n != 1 {
		t.Errorf("collected %d items before the error, want 1", n)
	}
}
