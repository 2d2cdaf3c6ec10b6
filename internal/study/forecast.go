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
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/gelk/internal/enrich"
	"github.com/bcem/gelk/internal/mapping"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

const (
	defaultIntervalMonths = 6
	defaultObservations   = 20
)

// studyNamespace scopes the deterministic ids of study records.
var studyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gelk/studies"))

// confidences are the prediction levels and their field suffixes.
var confidences = []struct {
	suffix string
	level  float64
}{
	{"05", 0.5},
	{"07", 0.7},
	{"09", 0.9},
}

// ForecastActivity predicts when each author will next contribute to each
// repository.
//
// Activity is counted in Observations intervals of IntervalMonths each,
// ending at the latest activity in the index. A least-squares line over
// those counts gives the expected number of contributions in the next
// interval, r. Assuming Poisson arrivals at that rate, the probability of
// at least one contribution within t intervals is 1-exp(-r*t), so the
// delay reached with confidence c is -ln(1-c)/r intervals.
type ForecastActivity struct {
	OutIndex       string
	IntervalMonths int
	Observations   int
	DateField      string
}

func (ForecastActivity) Name() string { return "ForecastActivity" }

type authorRepo struct {
	author, repository string
}

type activityLog struct {
	dates  []time.Time
	latest time.Time
	fields map[string]any
}

func (f ForecastActivity) Run(ctx context.Context, env Env) error {
	f = f.withDefaults(env)

	logs := make(map[authorRepo]*activityLog)
	var toDate time.Time

	err := env.Store.Scan(ctx, env.EnrichIndex, func(doc store.Document) error {
		author, _ := doc["author_uuid"].(string)
		if author == "" {
			return nil
		}
		t, ok := parseDate(doc[f.DateField])
		if !ok {
			return nil
		}
		key := authorRepo{author: author, repository: models.DocString(doc["repository"])}
		l, ok := logs[key]
		if !ok {
			l = &activityLog{}
			logs[key] = l
		}
		l.dates = append(l.dates, t)
		if !t.Before(l.latest) {
			l.latest = t
			l.fields = authorFields(doc)
		}
		if t.After(toDate) {
			toDate = t
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := store.Recreate(ctx, env.Store, f.OutIndex, mapping.Study()); err != nil {
		return err
	}
	if len(logs) == 0 {
		env.Logger.Info("no activity to forecast", "index", env.EnrichIndex)
		return nil
	}

	fromDate := toDate.AddDate(0, -f.IntervalMonths*f.Observations, 0)
	intervalDays := toDate.AddDate(0, f.IntervalMonths, 0).Sub(toDate).Hours() / 24
	now := env.now()

	keys := make([]authorRepo, 0, len(logs))
	for k := range logs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].author != keys[j].author {
			return keys[i].author < keys[j].author
		}
		return keys[i].repository < keys[j].repository
	})

	docs := make([]store.Document, 0, len(keys))
	for _, k := range keys {
		l := logs[k]
		counts := f.bucket(l.dates, fromDate, toDate)
		rate := nextRate(counts)

		rec := models.StudyRecord{}
		for field, v := range l.fields {
			rec[field] = v
		}
		rec["uuid"] = uuid.NewSHA1(studyNamespace, []byte("forecast:"+k.author+":"+k.repository)).String()
		rec["author_uuid"] = k.author
		rec["origin"] = k.repository
		rec["repository"] = k.repository
		rec["interval_months"] = f.IntervalMonths
		rec["observations"] = f.Observations
		rec["from_date"] = fromDate.Format(time.RFC3339)
		rec["to_date"] = toDate.Format(time.RFC3339)
		rec["last_activity_date"] = l.latest.Format(time.RFC3339)
		rec["activity"] = len(l.dates)
		rec["predicted_rate"] = round2(rate)
		rec["is_git_survived"] = rate > 0
		for _, c := range confidences {
			if rate <= 0 {
				rec["prediction_"+c.suffix] = nil
				rec["next_activity_"+c.suffix] = nil
				continue
			}
			days := -math.Log(1-c.level) / rate * intervalDays
			rec["prediction_"+c.suffix] = round2(days)
			whole := math.Floor(days)
			next := toDate.AddDate(0, 0, int(whole)).Add(time.Duration((days - whole) * float64(24*time.Hour)))
			rec["next_activity_"+c.suffix] = next.Format(time.RFC3339)
		}
		rec["metadata__gelk_version"] = enrich.Version
		rec["metadata__gelk_backend_name"] = enrich.BackendName(env.Kind)
		rec["metadata__enriched_on"] = now.Format(time.RFC3339)
		rec.Stamp(now, toDate.Format(time.RFC3339))

		docs = append(docs, store.Document(rec))
	}

	return writeAll(ctx, env.Store, f.OutIndex, docs, false)
}

func (f ForecastActivity) withDefaults(env Env) ForecastActivity {
	if f.IntervalMonths <= 0 {
		f.IntervalMonths = defaultIntervalMonths
	}
	if f.Observations <= 0 {
		f.Observations = defaultObservations
	}
	if f.DateField == "" {
		f.DateField = "grimoire_creation_date"
	}
	if f.OutIndex == "" {
		f.OutIndex = env.backend() + "_forecast-activity"
	}
	return f
}

// bucket counts dates per interval. The last interval is closed so the
// latest activity is always counted.
func (f ForecastActivity) bucket(dates []time.Time, from, to time.Time) []float64 {
	counts := make([]float64, f.Observations)
	for _, d := range dates {
		if d.Before(from) || d.After(to) {
			continue
		}
		i := 0
		for i < f.Observations-1 && !d.Before(from.AddDate(0, (i+1)*f.IntervalMonths, 0)) {
			i++
		}
		counts[i]++
	}
	return counts
}

// nextRate fits y = a + b*x to counts by least squares and evaluates it at
// the interval after the last one.
func nextRate(counts []float64) float64 {
	n := float64(len(counts))
	if n == 0 {
		return 0
	}
	var sumX, sumY float64
	for i, y := range counts {
		sumX += float64(i)
		sumY += y
	}
	meanX, meanY := sumX/n, sumY/n

	var sxy, sxx float64
	for i, y := range counts {
		dx := float64(i) - meanX
		sxy += dx * (y - meanY)
		sxx += dx * dx
	}
	slope := 0.0
	if sxx > 0 {
		slope = sxy / sxx
	}
	return meanY + slope*(n-meanX)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var authorIdentityFields = []string{
	"id", "uuid", "name", "user_name", "domain", "org_name", "multi_org_names", "bot",
}

// authorFields copies the author identity fields of an enriched document.
// Documents enriched without identity management lack the profile fields;
// those get the rendering of an unresolved profile.
func authorFields(doc store.Document) map[string]any {
	unknown := models.Profile{State: models.Unresolved}
	out := map[string]any{
		"author_id":              unknown.RenderID(),
		"author_uuid":            unknown.RenderUUID(),
		"author_name":            unknown.RenderName(),
		"author_user_name":       unknown.RenderUserName(),
		"author_domain":          nil,
		"author_org_name":        unknown.RenderOrgName(),
		"author_multi_org_names": unknown.RenderOrgNames(),
		"author_bot":             false,
	}
	for _, f := range authorIdentityFields {
		if v, ok := doc["author_"+f]; ok {
			out["author_"+f] = v
		}
	}
	return out
}
