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

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bcem/gelk/internal/models"
)

const (
	// DefaultCacheTTL bounds how long a resolution is reused.
	DefaultCacheTTL = time.Hour

	cacheKeyPrefix = "gelk:identity:"
)

// Cached fronts another resolver with a Redis hash per identity.
// Only resolved profiles are cached, so newly registered identities are
// picked up on the next call.
type Cached struct {
	next Resolver
	rdb  *redis.Client
	ttl  time.Duration
}

// NewCached wraps next with a Redis cache.
func NewCached(next Resolver, rdb *redis.Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cached{next: next, rdb: rdb, ttl: ttl}
}

// Resolve serves from the cache when possible. Redis failures degrade to
// a direct call on the wrapped resolver.
func (c *Cached) Resolve(ctx context.Context, source string, id models.Identity) (models.Profile, error) {
	key := cacheKeyPrefix + UUID(source, id.Email, id.Name, id.Username)

	data, err := c.rdb.HGet(ctx, key, "profile").Result()
	switch {
	case err == nil:
		var p models.Profile
		if jerr := json.Unmarshal([]byte(data), &p); jerr == nil {
			p.ID = id.ID
			return p, nil
		}
	case !errors.Is(err, redis.Nil):
		slog.Warn("identity cache read failed", "key", key, "error", err)
	}

	p, err := c.next.Resolve(ctx, source, id)
	if err != nil {
		return models.Profile{}, err
	}
	if p.State != models.Resolved {
		return p, nil
	}

	if err := c.store(ctx, key, p); err != nil {
		slog.Warn("identity cache write failed", "key", key, "error", err)
	}
	return p, nil
}

func (c *Cached) store(ctx context.Context, key string, p models.Profile) error {
	b, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	pipe := c.rdb.Pipeline()
	pipe.HSet(ctx, key, map[string]any{
		"profile":   string(b),
		"cached_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, c.ttl)
	_, err = pipe.Exec(ctx)
	return err
}
