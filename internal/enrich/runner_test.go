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

package enrich

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bcem/gelk/internal/metrics"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

func seedRaw(t *testing.T, s store.Store, index string, items ...*models.RawItem) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateIndex(ctx, index, nil); err != nil {
		t.Fatal(err)
	}
	var docs []store.Document
	for _, it := range items {
		d, err := it.Document()
		if err != nil {
			t.Fatal(err)
		}
		docs = append(docs, d)
	}
	if _, err := s.BulkUpsert(ctx, index, docs); err != nil {
		t.Fatal(err)
	}
}

// TestRunner_EnrichesInOrder verifies that every raw item is enriched in
// write order, bad items are counted, and aliases are added.
func TestRunner_EnrichesInOrder(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory("memory://")

	first := gitItem("A <a@x.org>", "", "Tue Aug 14 14:30:13 2012 -0300")
	first.UUID = "first"
	broken := &models.RawItem{Backend: "git", UUID: "broken", Data: map[string]any{"commit": "c"}}
	second := gitItem("B <b@y.org>", "", "Wed Aug 15 14:30:13 2012 -0300")
	second.UUID = "second"
	seedRaw(t, mem, "git_raw", first, broken, second)

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		t.Fatal(err)
	}

	runner := NewRunner(RunnerConfig{
		Enricher:  newEnricher(t, Config{}),
		Store:     mem,
		Metrics:   m,
		Kind:      models.KindGit,
		BatchSize: 1,
	})
	result, err := runner.Run(ctx, "git_raw", "git_enriched", []string{"git"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.RawItems != 3 || result.Written != 2 || result.Errors != 1 {
		t.Errorf("result = %+v, want raw=3 written=2 errors=1", result)
	}

	if _, ok := mem.Mapping("git_enriched"); !ok {
		t.Error("rich mapping not registered")
	}

	var order []string
	err = mem.Scan(ctx, "git", func(d store.Document) error {
		order = append(order, d["uuid"].(string))
		return nil
	})
	if err != nil {
		t.Fatalf("Scan alias: %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("enriched order = %v", order)
	}

	if n, err := testutil.GatherAndCount(reg, "gelk_enriched_items_total"); err != nil || n != 2 {
		t.Errorf("enriched series = %d, %v; want written and error", n, err)
	}
}

// TestRunner_MissingRawIndex verifies that a missing raw index aborts.
func TestRunner_MissingRawIndex(t *testing.T) {
	runner := NewRunner(RunnerConfig{
		Enricher: newEnricher(t, Config{}),
		Store:    store.NewMemory("memory://"),
		Kind:     models.KindGit,
	})
	if _, err := runner.Run(context.Background(), "nope", "git_enriched", nil); err == nil {
		t.Fatal("expected error")
	}
}
