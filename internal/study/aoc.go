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

package study

import (
	"context"
	"fmt"
	"time"

	"github.com/bcem/gelk/internal/enrich"
	"github.com/bcem/gelk/internal/mapping"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// AreasOfCode re-walks raw git commits and writes one document per file
// touched, carrying commit, author and project fields.
type AreasOfCode struct {
	Enricher *enrich.Enricher
	OutIndex string
	OutAlias string
}

func (AreasOfCode) Name() string { return "AreasOfCode" }

// InputIndex is the raw index: file changes are not kept in enriched items.
func (AreasOfCode) InputIndex(env Env) string { return env.RawIndex }

func (a AreasOfCode) Run(ctx context.Context, env Env) error {
	if env.Kind != models.KindGit {
		return fmt.Errorf("areas of code need a git backend, got %s", env.Kind)
	}
	if a.Enricher == nil {
		return fmt.Errorf("areas of code need an enricher")
	}
	if a.OutIndex == "" {
		a.OutIndex = env.backend() + "_aoc"
	}
	if a.OutAlias == "" {
		a.OutAlias = env.backend() + "_aoc-enriched"
	}

	if err := store.Recreate(ctx, env.Store, a.OutIndex, mapping.Study()); err != nil {
		return err
	}

	now := env.now()
	var batch []store.Document
	skipped := 0

	err := env.Store.Scan(ctx, env.RawIndex, func(doc store.Document) error {
		item, err := models.RawItemFromDocument(doc)
		if err != nil {
			skipped++
			env.Logger.Warn("areas of code: bad raw item", "uuid", doc["uuid"], "error", err)
			return nil
		}
		events, err := a.Enricher.AreasOfCode(ctx, item)
		if err != nil {
			skipped++
			env.Logger.Warn("areas of code: item skipped", "uuid", item.UUID, "error", err)
			return nil
		}
		for _, ev := range events {
			ev["study_creation_date"] = now.Format(time.RFC3339)
			batch = append(batch, store.Document(ev))
		}
		if len(batch) >= writeBatchSize {
			if err := writeAll(ctx, env.Store, a.OutIndex, batch, false); err != nil {
				return err
			}
			batch = batch[:0]
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := writeAll(ctx, env.Store, a.OutIndex, batch, false); err != nil {
		return err
	}
	if skipped > 0 {
		env.Logger.Info("areas of code: raw items skipped", "count", skipped)
	}
	return env.Store.AddAlias(ctx, a.OutIndex, a.OutAlias)
}
