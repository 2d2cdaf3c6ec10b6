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

// Package enrich turns raw items into flat, identity- and time-resolved
// documents ready to be queried.
package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/bcem/gelk/internal/identity"
	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/projects"
	"github.com/bcem/gelk/internal/store"
)

// Version is stamped into metadata__gelk_version.
const Version = "0.9.2"

// RepoLabelsField holds the free-form labels of the item's repository.
const RepoLabelsField = "repository_labels"

// isoLayout is the offset-less timestamp format of date fields.
const isoLayout = "2006-01-02T15:04:05"

// Config holds the explicit context of an enrichment run.
type Config struct {
	Logger *slog.Logger
	// IdentityMode enables organization, user name and bot resolution
	// through Resolver. Without it, identities get a locally computed uuid.
	IdentityMode bool
	Resolver     identity.Resolver
	Projects     *projects.Map
	// Now overrides the clock used for metadata__enriched_on.
	Now func() time.Time
}

// Enricher produces rich items for every supported raw kind.
type Enricher struct {
	logger       *slog.Logger
	identityMode bool
	resolver     identity.Resolver
	projects     *projects.Map
	now          func() time.Time
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	e := &Enricher{
		logger:       cfg.Logger,
		identityMode: cfg.IdentityMode,
		resolver:     cfg.Resolver,
		projects:     cfg.Projects,
		now:          cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.resolver == nil || !e.identityMode {
		e.resolver = identity.Local{}
	}
	if e.projects == nil {
		e.projects = projects.Empty()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// IdentityMode reports whether identity management is enabled.
func (e *Enricher) IdentityMode() bool { return e.identityMode }

// Enrich dispatches on the raw item's kind. Git commits yield one rich
// item; meetup events yield the event plus one item per comment and rsvp.
func (e *Enricher) Enrich(ctx context.Context, item *models.RawItem) ([]models.RichItem, error) {
	if item.Data == nil {
		return nil, fmt.Errorf("raw item %s has no data", item.UUID)
	}
	switch item.Kind() {
	case models.KindGit:
		rich, err := e.enrichCommit(ctx, item)
		if err != nil {
			return nil, err
		}
		return []models.RichItem{rich}, nil
	case models.KindMeetup:
		return e.enrichEvent(ctx, item)
	default:
		return nil, fmt.Errorf("raw item %s: unsupported backend %q", item.UUID, item.Backend)
	}
}

// baseFields are the provenance and context fields every rich item of a
// raw item shares.
func (e *Enricher) baseFields(item *models.RawItem) models.RichItem {
	kind := item.Kind()
	origin := store.AnonymizeURL(item.Origin)

	rich := models.RichItem{
		"uuid":                        item.UUID,
		"perceval_uuid":               item.UUID,
		"origin":                      origin,
		"repository":                  origin,
		"tag":                         item.Tag,
		"metadata__updated_on":        unixToISO(item.UpdatedOn),
		"metadata__timestamp":         unixToISO(item.Timestamp),
		"metadata__enriched_on":       e.now().UTC().Format(isoLayout),
		"metadata__gelk_version":      Version,
		"metadata__gelk_backend_name": BackendName(kind),
		"metadata__filter_raw":        nil,
	}
	// The tag tells apart groups collected under a shared collector.
	if item.Tag != "" {
		rich["metadata__filter_raw"] = item.Tag
	}
	e.addProjectFields(rich, kind, item.Origin)
	return rich
}

// addProjectFields attaches project, project_1..N and repository labels.
func (e *Enricher) addProjectFields(rich models.RichItem, kind models.RawKind, origin string) {
	repo := projects.RepositoryID(origin)
	names := e.projects.Lookup(kind.String(), repo)
	if len(names) > 0 {
		rich["project"] = names[0]
		for i, name := range names {
			rich["project_"+strconv.Itoa(i+1)] = name
		}
	}
	labels := e.projects.Labels(kind.String(), repo)
	if labels == nil {
		labels = []string{}
	}
	rich[RepoLabelsField] = labels
}

// BackendName is the enricher name stamped into metadata__gelk_backend_name.
func BackendName(kind models.RawKind) string {
	switch kind {
	case models.KindGit:
		return "GitEnrich"
	case models.KindMeetup:
		return "MeetupEnrich"
	default:
		return "Enrich"
	}
}

func unixToISO(ts float64) string {
	if ts == 0 {
		return ""
	}
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC().Format(isoLayout)
}
