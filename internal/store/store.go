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

// Package store provides the indexing store: named indices of JSON
// documents keyed by uuid, with aliases and per-index mappings.
package store

import (
	"context"
	"errors"
	"net/url"
)

// ErrIndexNotFound is returned when writing to or reading from an index
// (or alias) that was never created.
var ErrIndexNotFound = errors.New("index not found")

// Document is a single indexed JSON object. Its "uuid" key is the
// document id.
type Document = map[string]any

// Mapping is the schema fragment registered with an index.
type Mapping = map[string]any

// Store is the indexing store used by every stage.
type Store interface {
	// CreateIndex registers an index and its mapping. Creating an existing
	// index replaces its mapping and keeps its documents.
	CreateIndex(ctx context.Context, name string, mapping Mapping) error
	// DeleteIndex drops an index, its documents and its aliases.
	DeleteIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	// BulkUpsert replaces documents by uuid and returns how many were written.
	BulkUpsert(ctx context.Context, index string, docs []Document) (int, error)
	// BulkMerge merges the given fields into existing documents by uuid.
	// Documents that do not exist yet are created.
	BulkMerge(ctx context.Context, index string, docs []Document) (int, error)
	// Scan visits documents of an index or alias in write order.
	Scan(ctx context.Context, index string, fn func(Document) error) error
	AddAlias(ctx context.Context, index, alias string) error
	// ListAliases returns the aliases pointing at index, sorted.
	ListAliases(ctx context.Context, index string) ([]string, error)
	// URL is the store location with credentials removed.
	URL() string
}

// AnonymizeURL strips user credentials from a connection URL so it can be
// logged.
func AnonymizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	u.User = nil
	return u.String()
}

// Recreate deletes index when it exists and creates it again.
func Recreate(ctx context.Context, s Store, index string, mapping Mapping) error {
	exists, err := s.IndexExists(ctx, index)
	if err != nil {
		return err
	}
	if exists {
		if err := s.DeleteIndex(ctx, index); err != nil {
			return err
		}
	}
	return s.CreateIndex(ctx, index, mapping)
}
