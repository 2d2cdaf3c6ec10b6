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

// Package study runs batch post-processors over an enriched index and
// writes their derived indices.
//
// Every study is idempotent: derived indices are recreated on each run or
// written by deterministic uuid, and reference dates come from the data,
// never from the wall clock.
package study

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/gelk/internal/metrics"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// writeBatchSize is the number of documents sent per bulk write.
const writeBatchSize = 500

// Env is the explicit context a study runs in.
type Env struct {
	Logger      *slog.Logger
	Store       store.Store
	Kind        models.RawKind
	RawIndex    string
	EnrichIndex string
	// Now stamps study_creation_date and metadata__enriched_on.
	Now func() time.Time
}

func (e Env) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

func (e Env) backend() string { return e.Kind.String() }

// Study is a single batch post-processor.
type Study interface {
	Name() string
	Run(ctx context.Context, env Env) error
}

// inputIndexer is implemented by studies that read an index other than the
// enriched one.
type inputIndexer interface {
	InputIndex(env Env) string
}

// State is the lifecycle of a study run.
type State int

const (
	NotStarted State = iota
	Running
	Complete
	Failed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Running:
		return "running"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Runner executes studies and tracks the state of each one by name.
type Runner struct {
	env     Env
	metrics *metrics.Metrics

	mu     sync.Mutex
	states map[string]State
}

// NewRunner creates a study runner bound to env.
func NewRunner(env Env, m *metrics.Metrics) *Runner {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	return &Runner{env: env, metrics: m, states: make(map[string]State)}
}

// State returns the last known state of the named study.
func (r *Runner) State(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.states[name]
}

func (r *Runner) set(name string, s State) {
	r.mu.Lock()
	r.states[name] = s
	r.mu.Unlock()
}

// Run executes s. The start and end lines follow a fixed template so a
// missing end line means the study must be rerun from scratch.
func (r *Runner) Run(ctx context.Context, s Study) error {
	name := s.Name()
	index := r.env.EnrichIndex
	if in, ok := s.(inputIndexer); ok {
		index = in.InputIndex(r.env)
	}
	target := fmt.Sprintf("%s/%s", r.env.Store.URL(), index)

	r.set(name, Running)
	r.env.Logger.Info(fmt.Sprintf("[%s] %s starting study %s", r.env.backend(), name, target))
	start := time.Now()

	if err := s.Run(ctx, r.env); err != nil {
		r.set(name, Failed)
		r.metrics.StudyRun(name, Failed.String(), time.Since(start))
		r.env.Logger.Error(fmt.Sprintf("[%s] %s failed study %s", r.env.backend(), name, target),
			"error", err,
		)
		return fmt.Errorf("study %s: %w", name, err)
	}

	r.set(name, Complete)
	r.metrics.StudyRun(name, Complete.String(), time.Since(start))
	r.env.Logger.Info(fmt.Sprintf("[%s] %s end study %s", r.env.backend(), name, target))
	return nil
}

// writeAll sends docs to index in batches, merging into existing documents
// when merge is set.
func writeAll(ctx context.Context, s store.Store, index string, docs []store.Document, merge bool) error {
	for start := 0; start < len(docs); start += writeBatchSize {
		end := min(start+writeBatchSize, len(docs))
		var err error
		if merge {
			_, err = s.BulkMerge(ctx, index, docs[start:end])
		} else {
			_, err = s.BulkUpsert(ctx, index, docs[start:end])
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", index, err)
		}
	}
	return nil
}

// parseDate reads the date formats found in enriched documents.
func parseDate(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
