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

package enrich

import (
	"context"
	"strings"

	"github.com/bcem/gelk/internal/models"
)

// resolve returns the profile for an identity role. An absent role yields
// an Undefined profile; resolver failures degrade to Unresolved so a
// single lookup never fails the whole item.
func (e *Enricher) resolve(ctx context.Context, source string, id models.Identity) models.Profile {
	if id.IsEmpty() {
		return models.Profile{State: models.Undefined}
	}
	p, err := e.resolver.Resolve(ctx, source, id)
	if err != nil {
		e.logger.Warn("identity resolution failed",
			"source", source,
			"identity_id", id.ID,
			"error", err,
		)
		return models.Profile{State: models.Unresolved, ID: id.ID, Name: id.Name, Email: id.Email}
	}
	return p
}

// EmailDomain returns the part after the last "@", or nil when there is no
// email.
func EmailDomain(email string) any {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return nil
	}
	return email[at+1:]
}

// profileFields renders the full identity field set under prefix, turning
// unresolved and undefined states into their sentinels.
func profileFields(rich models.RichItem, prefix string, p models.Profile) {
	rich[prefix+"_id"] = p.RenderID()
	rich[prefix+"_uuid"] = p.RenderUUID()
	rich[prefix+"_name"] = p.RenderName()
	rich[prefix+"_user_name"] = p.RenderUserName()
	rich[prefix+"_org_name"] = p.RenderOrgName()
	rich[prefix+"_multi_org_names"] = p.RenderOrgNames()
	rich[prefix+"_bot"] = p.State == models.Resolved && p.Bot
	if p.State == models.Undefined {
		rich[prefix+"_domain"] = nil
	} else {
		rich[prefix+"_domain"] = EmailDomain(p.Email)
	}
}
