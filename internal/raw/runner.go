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
	"fmt"
	"log/slog"
	"time"

	"github.com/bcem/gelk/internal/anonymize"
	"github.com/bcem/gelk/internal/dedup"
	"github.com/bcem/gelk/internal/mapping"
	"github.com/bcem/gelk/internal/metrics"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// DefaultBatchSize is the number of raw documents sent per bulk write.
const DefaultBatchSize = 100

// Deduper decides whether an item's content changed since the last write,
// and records the content of items once they are written. Implemented by
// dedup.Filter.
type Deduper interface {
	IsNew(ctx context.Context, index, itemUUID, contentHash string) (bool, error)
	Commit(ctx context.Context, index string, entries []dedup.Entry) error
}

// Request defines the scope of a raw ingestion run.
type Request struct {
	Kind       models.RawKind
	Identifier string
	Index      string
	Aliases    []string
	Anonymize  bool
}

// Result summarises a completed raw ingestion run.
type Result struct {
	Backend string
	Index   string
	Fetched int
	Written int
	Skipped int
	Errors  int
	Elapsed time.Duration
}

// Runner collects raw items and writes them to a raw index.
type Runner struct {
	logger    *slog.Logger
	collector Collector
	store     store.Store
	dedup     Deduper
	metrics   *metrics.Metrics
	batchSize int
}

// RunnerConfig holds dependencies for the raw runner.
type RunnerConfig struct {
	Logger    *slog.Logger
	Collector Collector
	Store     store.Store
	Dedup     Deduper // optional
	Metrics   *metrics.Metrics
	BatchSize int
}

// NewRunner creates a raw ingestion runner.
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
		collector: cfg.Collector,
		store:     cfg.Store,
		dedup:     cfg.Dedup,
		metrics:   cfg.Metrics,
		batchSize: size,
	}
}

// Run collects every item for the request and persists it. Anonymization,
// when requested, happens before the item reaches the store.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	backend := req.Kind.String()

	params, err := CollectionParams(req.Kind, req.Identifier)
	if err != nil {
		return nil, err
	}

	if err := r.store.CreateIndex(ctx, req.Index, mapping.Raw(req.Kind)); err != nil {
		return nil, fmt.Errorf("create raw index: %w", err)
	}
	for _, alias := range req.Aliases {
		if err := r.store.AddAlias(ctx, req.Index, alias); err != nil {
			return nil, fmt.Errorf("add raw alias: %w", err)
		}
	}

	r.logger.Info("starting raw collection",
		"backend", backend,
		"index", req.Index,
		"params", params,
		"anonymize", req.Anonymize,
	)

	result := &Result{Backend: backend, Index: req.Index}
	tag := tagFromParams(params)
	origin := originFromParams(params)

	var (
		batch   []store.Document
		pending []dedup.Entry
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.store.BulkUpsert(ctx, req.Index, batch)
		result.Written += n
		r.metrics.RawItems(backend, "written", n)
		batch = batch[:0]
		entries := pending
		pending = nil
		if err != nil {
			// Hashes stay unrecorded so a rerun writes the batch again.
			return fmt.Errorf("write raw batch: %w", err)
		}
		if r.dedup != nil {
			if err := r.dedup.Commit(ctx, req.Index, entries); err != nil {
				r.logger.Warn("dedup commit failed", "index", req.Index, "error", err)
			}
		}
		return nil
	}

	err = r.collector.Collect(ctx, params, func(item models.RawItem) error {
		result.Fetched++

		doc, hash, skip, err := r.prepare(ctx, req, &item, origin, tag)
		if err != nil {
			r.logger.Warn("raw item rejected",
				"backend", backend,
				"uuid", item.UUID,
				"error", err,
			)
			result.Errors++
			r.metrics.RawItems(backend, "error", 1)
			return nil
		}
		if skip {
			result.Skipped++
			r.metrics.RawItems(backend, "skipped", 1)
			return nil
		}

		batch = append(batch, doc)
		if hash != "" {
			pending = append(pending, dedup.Entry{UUID: item.UUID, Hash: hash})
		}
		if len(batch) >= r.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("collect %s: %w", backend, err)
	}
	if err := flush(); err != nil {
		return result, err
	}

	result.Elapsed = time.Since(start)

	r.logger.Info("raw collection complete",
		"backend", backend,
		"index", req.Index,
		"fetched", result.Fetched,
		"written", result.Written,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)

	return result, nil
}

// prepare stamps provenance, anonymizes and dedups a single item. The
// returned hash is empty when dedup is off.
func (r *Runner) prepare(ctx context.Context, req Request, item *models.RawItem, origin, tag string) (store.Document, string, bool, error) {
	if item.UUID == "" {
		return nil, "", false, fmt.Errorf("item without uuid")
	}
	if item.Backend == "" {
		item.Backend = req.Kind.String()
	}
	if item.Kind() != req.Kind {
		return nil, "", false, fmt.Errorf("item backend %q does not match %s", item.Backend, req.Kind)
	}
	if item.Origin == "" {
		item.Origin = origin
	}
	if item.Tag == "" {
		item.Tag = tag
		if item.Tag == "" {
			item.Tag = item.Origin
		}
	}

	if req.Anonymize {
		if err := anonymize.Item(req.Kind, item.Data); err != nil {
			return nil, "", false, err
		}
	}

	var hash string
	if r.dedup != nil {
		h, err := dedup.ContentHash(item.Data)
		if err != nil {
			return nil, "", false, err
		}
		isNew, err := r.dedup.IsNew(ctx, req.Index, item.UUID, h)
		if err != nil {
			r.logger.Warn("dedup check failed", "uuid", item.UUID, "error", err)
		} else if !isNew {
			return nil, "", true, nil
		}
		hash = h
	}

	doc, err := item.Document()
	if err != nil {
		return nil, "", false, err
	}
	return doc, hash, false, nil
}
