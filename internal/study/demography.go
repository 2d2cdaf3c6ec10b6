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
	"time"

	"github.com/bcem/gelk/internal/store"
)

// DemographyAlias is the fixed alias the demography study publishes.
const DemographyAlias = "demographics"

// Demography adds the first and last activity date of each author to
// every enriched document of that author.
type Demography struct {
	// DateField defaults to grimoire_creation_date.
	DateField string
}

func (Demography) Name() string { return "Demography" }

type activitySpan struct {
	min, max       time.Time
	minRaw, maxRaw string
}

func (d Demography) Run(ctx context.Context, env Env) error {
	field := d.DateField
	if field == "" {
		field = "grimoire_creation_date"
	}

	type docRef struct{ uuid, author string }
	var refs []docRef
	spans := make(map[string]*activitySpan)

	err := env.Store.Scan(ctx, env.EnrichIndex, func(doc store.Document) error {
		author, _ := doc["author_uuid"].(string)
		id, _ := doc["uuid"].(string)
		if author == "" || id == "" {
			return nil
		}
		t, ok := parseDate(doc[field])
		if !ok {
			return nil
		}
		raw := doc[field].(string)
		refs = append(refs, docRef{uuid: id, author: author})

		s, ok := spans[author]
		if !ok {
			spans[author] = &activitySpan{min: t, max: t, minRaw: raw, maxRaw: raw}
			return nil
		}
		if t.Before(s.min) {
			s.min, s.minRaw = t, raw
		}
		if t.After(s.max) {
			s.max, s.maxRaw = t, raw
		}
		return nil
	})
	if err != nil {
		return err
	}

	env.Logger.Debug("demography computed", "authors", len(spans), "documents", len(refs))

	docs := make([]store.Document, 0, len(refs))
	for _, ref := range refs {
		s := spans[ref.author]
		docs = append(docs, store.Document{
			"uuid":                ref.uuid,
			"demography_min_date": s.minRaw,
			"demography_max_date": s.maxRaw,
		})
	}
	if err := writeAll(ctx, env.Store, env.EnrichIndex, docs, true); err != nil {
		return err
	}
	return env.Store.AddAlias(ctx, env.EnrichIndex, DemographyAlias)
}
