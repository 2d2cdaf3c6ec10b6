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

package models

const (
	// UnknownValue is rendered for identities the resolver could not match.
	UnknownValue = "Unknown"

	// UndefinedValue is rendered when the role itself is absent from the
	// raw item (e.g. a commit without committer).
	UndefinedValue = "-- UNDEFINED --"
)

// Identity is a person reference found inside a raw payload.
type Identity struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
}

// IsEmpty reports whether the identity carries nothing to resolve.
func (i Identity) IsEmpty() bool {
	return i.ID == "" && i.Name == "" && i.Email == "" && i.Username == ""
}

// ResolutionState tells how a Profile was obtained.
type ResolutionState int

const (
	// Undefined means the role is absent from the raw item.
	Undefined ResolutionState = iota
	// Unresolved means the identity exists but no profile matched.
	Unresolved
	// Resolved means the identity service returned a profile.
	Resolved
)

// Profile is the outcome of identity resolution. Sentinel strings only
// appear once a profile is rendered through the Render* helpers.
type Profile struct {
	State    ResolutionState
	ID       string
	UUID     string
	Name     string
	UserName string
	Email    string
	OrgNames []string
	Bot      bool
}

func (p Profile) sentinel() string {
	if p.State == Undefined {
		return UndefinedValue
	}
	return UnknownValue
}

func (p Profile) render(v string) string {
	if p.State == Resolved && v != "" {
		return v
	}
	return p.sentinel()
}

// RenderName returns the profile name. Unresolved profiles keep the name
// seen in the raw item when there is one.
func (p Profile) RenderName() string {
	if p.State != Undefined && p.Name != "" {
		return p.Name
	}
	return p.sentinel()
}

// RenderUUID returns the canonical uuid or the sentinel.
func (p Profile) RenderUUID() string {
	if p.State != Undefined && p.UUID != "" {
		return p.UUID
	}
	return p.sentinel()
}

// RenderUserName returns the user name or the sentinel.
func (p Profile) RenderUserName() string { return p.render(p.UserName) }

// RenderOrgName returns the first organization or the sentinel.
func (p Profile) RenderOrgName() string {
	if p.State == Resolved && len(p.OrgNames) > 0 {
		return p.OrgNames[0]
	}
	return p.sentinel()
}

// RenderOrgNames returns the organizations in resolver order, or a one
// element list holding the sentinel.
func (p Profile) RenderOrgNames() []string {
	if p.State == Resolved && len(p.OrgNames) > 0 {
		out := make([]string, len(p.OrgNames))
		copy(out, p.OrgNames)
		return out
	}
	return []string{p.sentinel()}
}

// RenderID returns the identity id or the sentinel.
func (p Profile) RenderID() string {
	if p.State != Undefined && p.ID != "" {
		return p.ID
	}
	return p.sentinel()
}
