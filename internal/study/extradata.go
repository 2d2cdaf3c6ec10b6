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
	"encoding/json"
	"fmt"

	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/store"
)

// JSONFetcher retrieves and decodes a remote JSON document.
// Implemented by fetch.Client.
type JSONFetcher interface {
	JSON(ctx context.Context, url string, v any) error
}

// ExtraData merges an externally hosted JSON document into enriched
// documents.
//
// An object is merged into every document. A list holds rules:
//
//	[{"conditions": [{"field": "author_name", "value": "x"}],
//	  "set_extra_fields": [{"field": "team", "value": "core"}]}]
//
// and each rule sets its fields on the documents matching all of its
// conditions.
type ExtraData struct {
	URL     string
	Fetcher JSONFetcher
}

func (ExtraData) Name() string { return "ExtraData" }

type fieldValue struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

type extraRule struct {
	Conditions []fieldValue `json:"conditions"`
	SetFields  []fieldValue `json:"set_extra_fields"`
}

func (r extraRule) matches(doc store.Document) bool {
	for _, c := range r.Conditions {
		v, ok := doc[c.Field]
		if !ok || models.DocString(v) != models.DocString(c.Value) {
			return false
		}
	}
	return true
}

// Run fetches the document before touching the index so an unreachable
// or malformed source leaves enriched documents as they were.
func (x ExtraData) Run(ctx context.Context, env Env) error {
	if x.URL == "" {
		return fmt.Errorf("extra data: no json url")
	}
	if x.Fetcher == nil {
		return fmt.Errorf("extra data: no fetcher")
	}

	var payload json.RawMessage
	if err := x.Fetcher.JSON(ctx, x.URL, &payload); err != nil {
		return fmt.Errorf("extra data: %w", err)
	}
	rules, err := parseExtra(payload)
	if err != nil {
		return fmt.Errorf("extra data %s: %w", x.URL, err)
	}

	var docs []store.Document
	err = env.Store.Scan(ctx, env.EnrichIndex, func(doc store.Document) error {
		id, _ := doc["uuid"].(string)
		if id == "" {
			return nil
		}
		update := store.Document{}
		for _, r := range rules {
			if !r.matches(doc) {
				continue
			}
			for _, f := range r.SetFields {
				update[f.Field] = f.Value
			}
		}
		if len(update) == 0 {
			return nil
		}
		update["uuid"] = id
		docs = append(docs, update)
		return nil
	})
	if err != nil {
		return err
	}

	env.Logger.Debug("extra data matched", "documents", len(docs), "rules", len(rules))
	return writeAll(ctx, env.Store, env.EnrichIndex, docs, true)
}

// parseExtra turns either accepted document shape into rules. An object
// becomes a single rule without conditions.
func parseExtra(payload json.RawMessage) ([]extraRule, error) {
	var obj map[string]any
	if err := json.Unmarshal(payload, &obj); err == nil {
		if obj == nil {
			return nil, fmt.Errorf("document is null")
		}
		rule := extraRule{}
		for k, v := range obj {
			if k == "uuid" {
				continue
			}
			rule.SetFields = append(rule.SetFields, fieldValue{Field: k, Value: v})
		}
		return []extraRule{rule}, nil
	}

	var rules []extraRule
	if err := json.Unmarshal(payload, &rules); err != nil {
		return nil, fmt.Errorf("decode extra data: expected an object or a list of rules: %w", err)
	}
	for i, r := range rules {
		if len(r.SetFields) == 0 {
			return nil, fmt.Errorf("rule %d sets no fields", i)
		}
		for _, c := range r.Conditions {
			if c.Field == "" {
				return nil, fmt.Errorf("rule %d has a condition without field", i)
			}
		}
	}
	return rules, nil
}
