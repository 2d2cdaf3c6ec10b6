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

// Package models defines the data structures shared across the raw,
// enrichment and study stages.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// RawKind identifies the shape of a raw item's data payload.
type RawKind int

const (
	KindUnknown RawKind = iota
	KindGit
	KindMeetup
)

// String returns the backend name used in index names and log lines.
func (k RawKind) String() string {
	switch k {
	case KindGit:
		return "git"
	case KindMeetup:
		return "meetup"
	default:
		return "unknown"
	}
}

// ParseKind maps a backend name to its RawKind.
func ParseKind(name string) (RawKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "git":
		return KindGit, nil
	case "meetup":
		return KindMeetup, nil
	default:
		return KindUnknown, fmt.Errorf("unsupported backend %q", name)
	}
}

// RawItem is a fetched source record plus its provenance envelope.
//
// Data holds the verbatim source payload. It is only ever modified by the
// anonymization pass, which runs before the item is persisted.
type RawItem struct {
	Backend   string         `json:"backend_name"`
	Origin    string         `json:"origin"`
	UUID      string         `json:"uuid"`
	Tag       string         `json:"tag,omitempty"`
	Category  string         `json:"category,omitempty"`
	UpdatedOn float64        `json:"updated_on"`
	Timestamp float64        `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// Kind returns the RawKind declared by the item's backend name.
func (r *RawItem) Kind() RawKind {
	k, _ := ParseKind(r.Backend)
	return k
}

// Document converts the item into the generic document form stored in
// an index.
func (r *RawItem) Document() (map[string]any, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal raw item %s: %w", r.UUID, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("decode raw item %s: %w", r.UUID, err)
	}
	return doc, nil
}

// RawItemFromDocument is the inverse of Document.
func RawItemFromDocument(doc map[string]any) (*RawItem, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal raw document: %w", err)
	}
	var item RawItem
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, fmt.Errorf("decode raw document: %w", err)
	}
	return &item, nil
}
