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

// Package dedup skips raw items whose content was already written, using
// a Redis key per (raw index, item uuid) holding the last content hash.
package dedup

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a content hash is remembered. After it expires
	// the item is rewritten once, which is harmless because writes are
	// upserts.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "gelk:seen:"
)

// ContentHash returns the sha1 of the canonical JSON encoding of data.
// encoding/json sorts map keys, so equal payloads hash equally.
func ContentHash(data any) (string, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal content: %w", err)
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:]), nil
}

// Entry is the content hash of one written raw item.
type Entry struct {
	UUID string
	Hash string
}

// Filter tracks the content hash last written for each raw item.
// Checking and recording are separate so that a hash is only remembered
// once its item is stored.
type Filter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis.
func NewFilter(rdb *redis.Client) *Filter {
	return &Filter{
		rdb: rdb,
		ttl: DefaultTTL,
	}
}

func key(index, itemUUID string) string {
	return fmt.Sprintf("%s%s:%s", keyPrefix, index, itemUUID)
}

// IsNew returns true if the item was never committed with this content
// hash. It does not record anything.
func (f *Filter) IsNew(ctx context.Context, index, itemUUID, contentHash string) (bool, error) {
	prev, err := f.rdb.Get(ctx, key(index, itemUUID)).Result()
	if err == redis.Nil {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup GET: %w", err)
	}
	return prev != contentHash, nil
}

// Commit records the hashes of items that were written to index.
func (f *Filter) Commit(ctx context.Context, index string, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	pipe := f.rdb.Pipeline()
	for _, e := range entries {
		pipe.Set(ctx, key(index, e.UUID), e.Hash, f.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("dedup commit: %w", err)
	}
	return nil
}
