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
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/gelk/internal/enrich"
	"github.com/bcem/gelk/internal/mapping"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// Onion layers.
const (
	LayerCore    = "core"
	LayerRegular = "regular"
	LayerCasual  = "casual"

	coreShare    = 0.80
	regularShare = 0.95

	timeframeAll = "all"
)

// Onion classifies contributors into core, regular and casual layers by
// how concentrated the activity is, over the whole history and per
// calendar quarter.
//
// Authors are ranked by contributions. An author is core while the share
// of contributions held by the authors ranked above them is below 80%,
// regular below 95%, and casual otherwise, so the top contributor is
// always core.
type Onion struct {
	OutIndex  string
	OutAlias  string
	DateField string
}

func (Onion) Name() string { return "Onion" }

type contributor struct {
	author        string
	contributions int
	fields        map[string]any
	latest        time.Time
}

type timeframe struct {
	name   string
	start  time.Time
	byUUID map[string]*contributor
	total  int
}

func (o Onion) Run(ctx context.Context, env Env) error {
	o = o.withDefaults(env)

	frames := map[string]*timeframe{}
	var latest time.Time

	add := func(name string, start time.Time, author string, t time.Time, doc store.Document) {
		tf, ok := frames[name]
		if !ok {
			tf = &timeframe{name: name, start: start, byUUID: map[string]*contributor{}}
			frames[name] = tf
		}
		c, ok := tf.byUUID[author]
		if !ok {
			c = &contributor{author: author}
			tf.byUUID[author] = c
		}
		c.contributions++
		tf.total++
		if !t.Before(c.latest) {
			c.latest = t
			c.fields = authorFields(doc)
		}
	}

	err := env.Store.Scan(ctx, env.EnrichIndex, func(doc store.Document) error {
		author, _ := doc["author_uuid"].(string)
		if author == "" {
			return nil
		}
		t, ok := parseDate(doc[o.DateField])
		if !ok {
			return nil
		}
		if t.After(latest) {
			latest = t
		}
		add(timeframeAll, time.Time{}, author, t, doc)
		name, start := quarterOf(t)
		add(name, start, author, t, doc)
		return nil
	})
	if err != nil {
		return err
	}

	if err := store.Recreate(ctx, env.Store, o.OutIndex, mapping.Study()); err != nil {
		return err
	}

	names := make([]string, 0, len(frames))
	for name := range frames {
		names = append(names, name)
	}
	sort.Strings(names)

	now := env.now()
	var docs []store.Document
	for _, name := range names {
		tf := frames[name]
		date := tf.start
		if name == timeframeAll {
			date = latest
		}
		for _, rec := range layers(tf) {
			rec["metadata__gelk_version"] = enrich.Version
			rec["metadata__gelk_backend_name"] = enrich.BackendName(env.Kind)
			rec["metadata__enriched_on"] = now.Format(time.RFC3339)
			rec.Stamp(now, date.Format(time.RFC3339))
			docs = append(docs, store.Document(rec))
		}
	}

	if err := writeAll(ctx, env.Store, o.OutIndex, docs, false); err != nil {
		return err
	}
	return env.Store.AddAlias(ctx, o.OutIndex, o.OutAlias)
}

func (o Onion) withDefaults(env Env) Onion {
	if o.DateField == "" {
		o.DateField = "grimoire_creation_date"
	}
	if o.OutIndex == "" {
		o.OutIndex = env.backend() + "_onion"
	}
	if o.OutAlias == "" {
		o.OutAlias = env.backend() + "_onion-enriched"
	}
	return o
}

// layers ranks the contributors of a timeframe and assigns their layer.
func layers(tf *timeframe) []models.StudyRecord {
	ranked := make([]*contributor, 0, len(tf.byUUID))
	for _, c := range tf.byUUID {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].contributions != ranked[j].contributions {
			return ranked[i].contributions > ranked[j].contributions
		}
		return ranked[i].author < ranked[j].author
	})

	out := make([]models.StudyRecord, 0, len(ranked))
	above := 0
	for rank, c := range ranked {
		share := float64(above) / float64(tf.total)
		layer := LayerCasual
		switch {
		case share < coreShare:
			layer = LayerCore
		case share < regularShare:
			layer = LayerRegular
		}
		above += c.contributions

		rec := models.StudyRecord{}
		for k, v := range c.fields {
			rec[k] = v
		}
		rec["uuid"] = uuid.NewSHA1(studyNamespace, []byte("onion:"+tf.name+":"+c.author)).String()
		rec["author_uuid"] = c.author
		rec["timeframe"] = tf.name
		rec["onion_role"] = layer
		rec["onion_rank"] = rank + 1
		rec["contributions"] = c.contributions
		rec["percent_contributions"] = round2(100 * float64(c.contributions) / float64(tf.total))
		rec["cum_net_sum"] = above
		out = append(out, rec)
	}
	return out
}

// quarterOf names the calendar quarter of t, e.g. "2020Q3", and returns its
// first instant.
func quarterOf(t time.Time) (string, time.Time) {
	q := (int(t.Month())-1)/3 + 1
	start := time.Date(t.Year(), time.Month((q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
	return fmt.Sprintf("%dQ%d", t.Year(), q), start
}
