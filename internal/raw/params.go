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

// Package raw collects source items and persists them, optionally
// anonymized, into a raw index.
package raw

import (
	"fmt"
	"strings"

	"github.com/bcem/gelk/internal/models"
)

// CollectionParams derives the ordered collector arguments for an
// identifier.
//
//   - git: "<url> [local clone path]" yields just the url; the clone path
//     is a collector hint, not a tag.
//   - meetup: a group url yields "--tag <url> <url>" so collected items are
//     tagged with their own group.
//
// Further validation of the identifier is left to the collector.
func CollectionParams(kind models.RawKind, identifier string) ([]string, error) {
	fields := strings.Fields(identifier)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty %s identifier", kind)
	}

	switch kind {
	case models.KindGit:
		return []string{fields[0]}, nil
	case models.KindMeetup:
		url := strings.TrimSpace(identifier)
		return []string{"--tag", url, url}, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", kind)
	}
}

// tagFromParams returns the value following "--tag", or "".
func tagFromParams(params []string) string {
	for i := 0; i+1 < len(params); i++ {
		if params[i] == "--tag" {
			return params[i+1]
		}
	}
	return ""
}

// originFromParams returns the trailing positional argument.
func originFromParams(params []string) string {
	if len(params) == 0 {
		return ""
	}
	return params[len(params)-1]
}
