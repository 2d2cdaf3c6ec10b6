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

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-process Store. Documents are deep-copied on the way in
// and out, so callers never share maps with the store.
type Memory struct {
	mu      sync.RWMutex
	url     string
	indices map[string]*memIndex
	aliases map[string]map[string]bool // alias -> index set
}

type memIndex struct {
	mapping Mapping
	order   []string
	docs    map[string]Document
}

// NewMemory creates an empty in-memory store.
func NewMemory(url string) *Memory {
	return &Memory{
		url:     url,
		indices: make(map[string]*memIndex),
		aliases: make(map[string]map[string]bool),
	}
}

func (m *Memory) URL() string { return AnonymizeURL(m.url) }

func (m *Memory) CreateIndex(_ context.Context, name string, mapping Mapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if idx, ok := m.indices[name]; ok {
		idx.mapping = mapping
		return nil
	}
	m.indices[name] = &memIndex{mapping: mapping, docs: make(map[string]Document)}
	return nil
}

func (m *Memory) DeleteIndex(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[name]; !ok {
		return fmt.Errorf("delete %s: %w", name, ErrIndexNotFound)
	}
	delete(m.indices, name)
	for alias, set := range m.aliases {
		delete(set, name)
		if len(set) == 0 {
			delete(m.aliases, alias)
		}
	}
	return nil
}

func (m *Memory) IndexExists(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.indices[name]
	return ok, nil
}

// Mapping returns the mapping registered for index.
func (m *Memory) Mapping(name string) (Mapping, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.indices[name]
	if !ok {
		return nil, false
	}
	return idx.mapping, true
}

func (m *Memory) BulkUpsert(_ context.Context, index string, docs []Document) (int, error) {
	return m.write(index, docs, false)
}

func (m *Memory) BulkMerge(_ context.Context, index string, docs []Document) (int, error) {
	return m.write(index, docs, true)
}

func (m *Memory) write(index string, docs []Document, merge bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx, ok := m.indices[index]
	if !ok {
		return 0, fmt.Errorf("write %s: %w", index, ErrIndexNotFound)
	}

	n := 0
	for _, d := range docs {
		id, _ := d["uuid"].(string)
		if id == "" {
			return n, fmt.Errorf("write %s: document without uuid", index)
		}
		doc, err := clone(d)
		if err != nil {
			return n, err
		}
		existing, seen := idx.docs[id]
		if !seen {
			idx.order = append(idx.order, id)
		}
		if merge && seen {
			for k, v := range doc {
				existing[k] = v
			}
		} else {
			idx.docs[id] = doc
		}
		n++
	}
	return n, nil
}

func (m *Memory) Scan(ctx context.Context, index string, fn func(Document) error) error {
	m.mu.RLock()
	names := m.resolve(index)
	if len(names) == 0 {
		m.mu.RUnlock()
		return fmt.Errorf("scan %s: %w", index, ErrIndexNotFound)
	}
	// Snapshot so fn may write back into the store.
	var snapshot []Document
	for _, name := range names {
		idx := m.indices[name]
		for _, id := range idx.order {
			doc, err := clone(idx.docs[id])
			if err != nil {
				m.mu.RUnlock()
				return err
			}
			snapshot = append(snapshot, doc)
		}
	}
	m.mu.RUnlock()

	for _, doc := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}

// resolve returns the concrete indices behind a name. Callers hold mu.
func (m *Memory) resolve(name string) []string {
	if _, ok := m.indices[name]; ok {
		return []string{name}
	}
	var out []string
	for idx := range m.aliases[name] {
		out = append(out, idx)
	}
	sort.Strings(out)
	return out
}

func (m *Memory) AddAlias(_ context.Context, index, alias string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.indices[index]; !ok {
		return fmt.Errorf("alias %s: %w", index, ErrIndexNotFound)
	}
	if m.aliases[alias] == nil {
		m.aliases[alias] = make(map[string]bool)
	}
	m.aliases[alias][index] = true
	return nil
}

func (m *Memory) ListAliases(_ context.Context, index string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.indices[index]; !ok {
		return nil, fmt.Errorf("aliases %s: %w", index, ErrIndexNotFound)
	}
	var out []string
	for alias, set := range m.aliases {
		if set[index] {
			out = append(out, alias)
		}
	}
	sort.Strings(out)
	return out, nil
}

// clone deep-copies a document through JSON, which also normalizes
// numbers to float64 the way the Postgres store returns them.
func clone(d Document) (Document, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("marshal document: %w", err)
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return out, nil
}
