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
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bcem/gelk/internal/models"
)

// PGResolver resolves identities against identity tables in Postgres.
//
// gelk_identities maps an identity uuid to a profile uuid,
// gelk_profiles holds the canonical person and gelk_enrollments lists the
// organizations of a profile in resolution order.
type PGResolver struct {
	pool *pgxpool.Pool
}

// NewPGResolver creates a resolver and ensures its tables exist.
func NewPGResolver(ctx context.Context, pool *pgxpool.Pool) (*PGResolver, error) {
	r := &PGResolver{pool: pool}
	if err := r.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure identity schema: %w", err)
	}
	slog.Info("identity store initialised")
	return r, nil
}

func (r *PGResolver) ensureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS gelk_profiles (
			uuid       TEXT PRIMARY KEY,
			name       TEXT DEFAULT '',
			email      TEXT DEFAULT '',
			is_bot     BOOLEAN DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS gelk_identities (
			id           TEXT PRIMARY KEY,
			profile_uuid TEXT NOT NULL REFERENCES gelk_profiles(uuid) ON DELETE CASCADE,
			source       TEXT NOT NULL,
			name         TEXT DEFAULT '',
			email        TEXT DEFAULT '',
			username     TEXT DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS gelk_enrollments (
			profile_uuid TEXT NOT NULL REFERENCES gelk_profiles(uuid) ON DELETE CASCADE,
			org_name     TEXT NOT NULL,
			position     INT NOT NULL DEFAULT 0,
			PRIMARY KEY (profile_uuid, org_name)
		);
		CREATE INDEX IF NOT EXISTS idx_identities_profile ON gelk_identities(profile_uuid);
	`)
	return err
}

// Resolve looks up the identity by its computed uuid.
func (r *PGResolver) Resolve(ctx context.Context, source string, id models.Identity) (models.Profile, error) {
	key := UUID(source, id.Email, id.Name, id.Username)

	var p models.Profile
	var username string
	err := r.pool.QueryRow(ctx, `
		SELECT p.uuid, p.name, p.email, p.is_bot, i.username
		FROM gelk_identities i
		JOIN gelk_profiles p ON p.uuid = i.profile_uuid
		WHERE i.id = $1
	`, key).Scan(&p.UUID, &p.Name, &p.Email, &p.Bot, &username)
	if errors.Is(err, pgx.ErrNoRows) {
		return Unresolved(source, id), nil
	}
	if err != nil {
		return models.Profile{}, fmt.Errorf("resolve identity %s: %w", key, err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT org_name FROM gelk_enrollments
		WHERE profile_uuid = $1
		ORDER BY position, org_name
	`, p.UUID)
	if err != nil {
		return models.Profile{}, fmt.Errorf("list enrollments %s: %w", p.UUID, err)
	}
	orgs, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return models.Profile{}, fmt.Errorf("scan enrollments %s: %w", p.UUID, err)
	}

	p.State = models.Resolved
	p.ID = id.ID
	p.UserName = username
	p.OrgNames = orgs
	if p.Name == "" {
		p.Name = id.Name
	}
	return p, nil
}

// Register stores an identity under a profile, creating the profile when
// needed. Organizations are enrolled in the given order.
func (r *PGResolver) Register(ctx context.Context, source string, id models.Identity, profile models.Profile) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin register: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO gelk_profiles (uuid, name, email, is_bot)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (uuid) DO UPDATE SET
			name   = EXCLUDED.name,
			email  = EXCLUDED.email,
			is_bot = EXCLUDED.is_bot
	`, profile.UUID, profile.Name, profile.Email, profile.Bot); err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO gelk_identities (id, profile_uuid, source, name, email, username)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET profile_uuid = EXCLUDED.profile_uuid
	`, UUID(source, id.Email, id.Name, id.Username), profile.UUID, source, id.Name, id.Email, id.Username); err != nil {
		return fmt.Errorf("upsert identity: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM gelk_enrollments WHERE profile_uuid = $1`, profile.UUID); err != nil {
		return fmt.Errorf("clear enrollments: %w", err)
	}
	for pos, org := range profile.OrgNames {
		if _, err := tx.Exec(ctx, `
			INSERT INTO gelk_enrollments (profile_uuid, org_name, position)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, profile.UUID, org, pos); err != nil {
			return fmt.Errorf("enroll %s: %w", org, err)
		}
	}

	return tx.Commit(ctx)
}
