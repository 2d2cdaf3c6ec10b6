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
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/gelk/internal/mapping"
	"github.com/bcem/gelk/internal/metrics"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// DefaultBatchSize is the number of rich documents sent per bulk write.
const DefaultBatchSize = 100

// Result summarises a completed enrichment run.
type Result struct {
	RawItems int
	Written  int
	Errors   int
	Elapsed  time.Duration
}

// Runner reads a raw index in write order and fills an enriched index.
type Runner struct {
	logger    *slog.Logger
	enricher  *Enricher
	store     store.Store
	metrics   *metrics.Metrics
	kind      models.RawKind
	batchSize int
}

// RunnerConfig holds dependencies for the enrichment runner.
type RunnerConfig struct {
	Logger    *slog.Logger
	Enricher  *Enricher
	Store     store.Store
	Metrics   *metrics.Metrics
	Kind      models.RawKind
	BatchSize int
}

// NewRunner creates an enrichment runner.
func NewRunner(cfg RunnerConfig) *Runner {
	size := cfg.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger:    logger,
		enricher:  cfg.Enricher,
		store:     cfg.Store,
		metrics:   cfg.Metrics,
		kind:      cfg.Kind,
		batchSize: size,
	}
}

// Run enriches every item of rawIndex into enrichIndex. The rich mapping
// is registered before the first write. Items that fail to enrich are
// logged and counted; store failures abort the run.
func (r *Runner) Run(ctx context.Context, rawIndex, enrichIndex string, aliases []string) (*Result, error) {
	start := time.Now()
	backend := r.kind.String()

	if err := r.store.CreateIndex(ctx, enrichIndex, mapping.Rich(r.kind)); err != nil {
		return nil, fmt.Errorf("create enriched index: %w", err)
	}

	r.logger.Info("starting enrichment",
		"backend", backend,
		"raw_index", rawIndex,
		"enrich_index", enrichIndex,
		"identity_mode", r.enricher.IdentityMode(),
	)

	result := &Result{}
	var batch []store.Document
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.store.BulkUpsert(ctx, enrichIndex, batch)
		result.Written += n
		r.metrics.EnrichedItems(backend, "written", n)
		batch = batch[:0]
		if err != nil {
			return fmt.Errorf("write enriched batch: %w", err)
		}
		return nil
	}

	err := r.store.Scan(ctx, rawIndex, func(doc store.Document) error {
		result.RawItems++

		item, err := models.RawItemFromDocument(doc)
		if err != nil {
			r.itemFailed(backend, doc["uuid"], err)
			result.Errors++
			return nil
		}
		if item.Kind() != r.kind {
			r.itemFailed(backend, item.UUID, fmt.Errorf("backend %q is not %s", item.Backend, r.kind))
			result.Errors++
			return nil
		}

		rich, err := r.enricher.Enrich(ctx, item)
		if err != nil {
			r.itemFailed(backend, item.UUID, err)
			result.Errors++
			return nil
		}
		for _, ri := range rich {
			batch = append(batch, store.Document(ri))
		}
		if len(batch) >= r.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("scan %s: %w", rawIndex, err)
	}
	if err := flush(); err != nil {
		return result, err
	}

	for _, alias := range aliases {
		if err := r.store.AddAlias(ctx, enrichIndex, alias); err != nil {
			return result, fmt.Errorf("add enriched alias: %w", err)
		}
	}

	result.Elapsed = time.Since(start)

	r.logger.Info("enrichment complete",
		"backend", backend,
		"enrich_index", enrichIndex,
		"raw_items", result.RawItems,
		"written", result.Written,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

func (r *Runner) itemFailed(backend string, id any, err error) {
	r.logger.Warn("enrich item failed",
		"backend", backend,
		"uuid", id,
		"error", err,
	)
	r.metrics.EnrichedItems(backend, "error", 1)
}
