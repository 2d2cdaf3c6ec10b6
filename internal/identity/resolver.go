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

	"github.com/bcem/gelk/internal/models"
)

// Resolver maps a raw identity to a canonical profile. A miss is not an
// error: implementations return a profile with State Unresolved.
type Resolver interface {
	Resolve(ctx context.Context, source string, id models.Identity) (models.Profile, error)
}

// Unresolved builds the profile returned when nothing matched. It keeps
// the raw name and the locally computed uuid so enriched documents stay
// groupable by person.
func Unresolved(source string, id models.Identity) models.Profile {
	return models.Profile{
		State: models.Unresolved,
		ID:    id.ID,
		UUID:  UUID(source, id.Email, id.Name, id.Username),
		Name:  id.Name,
		Email: id.Email,
	}
}

// Local resolves every identity to its locally computed uuid and raw
// name. It is used when identity management is disabled.
type Local struct{}

// Resolve never fails and never reports a match.
func (Local) Resolve(_ context.Context, source string, id models.Identity) (models.Profile, error) {
	return Unresolved(source, id), nil
}

// Static is an in-memory resolver keyed by the identity uuid.
type Static map[string]models.Profile

// Resolve looks the identity up by its computed uuid.
func (s Static) Resolve(_ context.Context, source string, id models.Identity) (models.Profile, error) {
	key := UUID(source, id.Email, id.Name, id.Username)
	if p, ok := s[key]; ok {
		p.State = models.Resolved
		if p.ID == "" {
			p.ID = id.ID
		}
		return p, nil
	}
	return Unresolved(source, id), nil
}
