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
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/gelk/internal/models"
)

// TestUUID_Normalization verifies that accents and case do not change the
// identity uuid, while every component does.
func TestUUID_Normalization(t *testing.T) {
	base := UUID("git", "jose@example.org", "José Pérez", "jperez")

	if got := UUID("git", "jose@example.org", "Jose Perez", "jperez"); got != base {
		t.Errorf("accented name changed the uuid: %s != %s", got, base)
	}
	if got := UUID("GIT", "Jose@Example.org", "JOSÉ PÉREZ", "JPerez"); got != base {
		t.Errorf("case changed the uuid: %s != %s", got, base)
	}
	if len(base) != 40 {
		t.Errorf("uuid %q is not a sha1 hex digest", base)
	}

	for _, other := range []string{
		UUID("meetup", "jose@example.org", "José Pérez", "jperez"),
		UUID("git", "other@example.org", "José Pérez", "jperez"),
		UUID("git", "jose@example.org", "José Pérez", ""),
	} {
		if other == base {
			t.Error("distinct identities share a uuid")
		}
	}
}

// TestUUID_StoredValues verifies keys against identity uuids stored by
// earlier deployments, where a missing username is rendered as "none".
func TestUUID_StoredValues(t *testing.T) {
	tests := []struct {
		name  string
		email string
		who   string
		want  string
	}{
		{"plain", "companheiro.vermelho@gmail.com", "Eduardo Morais", "f3aee5067d4691544f10d915932c9f1d08cb3b36"},
		{"anonymized", "xxxxxx@gmail.com", "e2ea52f7f782fe08109b762e474ff20656a51f47", "5fe609e6ddadd19697e69832ac1889bb942cccfb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UUID("git", tt.email, tt.who, ""); got != tt.want {
				t.Errorf("UUID = %s, want %s", got, tt.want)
			}
		})
	}
	if UUID("git", "a@b.org", "Ann", "") != UUID("git", "a@b.org", "Ann", "none") {
		t.Error("empty username not rendered as none")
	}
}

// TestLocal verifies that the local resolver never reports a match.
func TestLocal(t *testing.T) {
	id := models.Identity{ID: "7", Name: "Ann", Email: "ann@acme.org"}
	p, err := Local{}.Resolve(context.Background(), "git", id)
	if err != nil {
		t.Fatal(err)
	}
	want := models.Profile{
		State: models.Unresolved,
		ID:    "7",
		UUID:  UUID("git", "ann@acme.org", "Ann", ""),
		Name:  "Ann",
		Email: "ann@acme.org",
	}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

// TestStatic verifies hits and misses of the in-memory resolver.
func TestStatic(t *testing.T) {
	id := models.Identity{ID: "7", Name: "Ann", Email: "ann@acme.org"}
	s := Static{
		UUID("git", "ann@acme.org", "Ann", ""): {UUID: "canonical", Name: "Ann Lee", OrgNames: []string{"Acme"}},
	}

	p, _ := s.Resolve(context.Background(), "git", id)
	if p.State != models.Resolved || p.UUID != "canonical" || p.ID != "7" {
		t.Errorf("hit = %+v", p)
	}

	p, _ = s.Resolve(context.Background(), "meetup", id)
	if p.State != models.Unresolved {
		t.Errorf("miss on another source = %+v", p)
	}
}

// countingResolver records how often it is called.
type countingResolver struct {
	calls atomic.Int32
	next  Resolver
}

func (c *countingResolver) Resolve(ctx context.Context, source string, id models.Identity) (models.Profile, error) {
	c.calls.Add(1)
	return c.next.Resolve(ctx, source, id)
}

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_URL")
	if addr == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(addr)
	if err != nil {
		t.Fatalf("parse redis url: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

// TestCached verifies that resolved profiles are served from Redis and
// unresolved ones are not cached.
func TestCached(t *testing.T) {
	rdb := testRedis(t)
	ctx := context.Background()

	// Unique names keep runs independent of earlier cache contents.
	name := "Ann " + uuid.NewString()
	known := models.Identity{ID: "1", Name: name, Email: "ann@acme.org"}
	unknown := models.Identity{ID: "2", Name: "Nobody " + uuid.NewString()}

	inner := &countingResolver{next: Static{
		UUID("git", known.Email, known.Name, ""): {UUID: "canonical", Name: "Ann Lee"},
	}}
	c := NewCached(inner, rdb, time.Minute)

	for i := 0; i < 3; i++ {
		p, err := c.Resolve(ctx, "git", known)
		if err != nil {
			t.Fatal(err)
		}
		if p.State != models.Resolved || p.UUID != "canonical" || p.ID != "1" {
			t.Errorf("call %d: profile = %+v", i, p)
		}
	}
	if got := inner.calls.Load(); got != 1 {
		t.Errorf("resolved identity reached the resolver %d times, want 1", got)
	}

	inner.calls.Store(0)
	for i := 0; i < 2; i++ {
		if _, err := c.Resolve(ctx, "git", unknown); err != nil {
			t.Fatal(err)
		}
	}
	if got := inner.calls.Load(); got != 2 {
		t.Errorf("unresolved identity reached the resolver %d times, want 2", got)
	}
}

// TestPGResolver verifies registration and lookup when TEST_DATABASE_URL
// is set.
func TestPGResolver(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	r, err := NewPGResolver(ctx, pool)
	if err != nil {
		t.Fatalf("NewPGResolver: %v", err)
	}

	id := models.Identity{ID: "42", Name: "Zhongpeng " + uuid.NewString(), Email: "lin@example.org", Username: "zlin"}
	if p, err := r.Resolve(ctx, "git", id); err != nil || p.State != models.Unresolved {
		t.Fatalf("before register = %+v, %v", p, err)
	}

	profile := models.Profile{UUID: uuid.NewString(), Name: "Zhongpeng Lin", OrgNames: []string{"Bitergia", "Acme"}}
	if err := r.Register(ctx, "git", id, profile); err != nil {
		t.Fatalf("Register: %v", err)
	}

	p, err := r.Resolve(ctx, "git", id)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.State != models.Resolved || p.UUID != profile.UUID || p.ID != "42" || p.UserName != "zlin" {
		t.Errorf("profile = %+v", p)
	}
	if diff := cmp.Diff([]string{"Bitergia", "Acme"}, p.OrgNames); diff != "" {
		t.Errorf("orgs mismatch (-want +got):\n%s", diff)
	}
}
