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

// Package mapping declares the schema fragments registered with each
// index before documents are written to it.
package mapping

import (
	"encoding/json"
	"fmt"

	"github.com/bcem/gelk/internal/models"
)

const meetupRaw = `{
  "dynamic": true,
  "properties": {
    "data": {
      "properties": {
        "comments": {
          "properties": {
            "comment": {"type": "text", "index": true},
            "member": {
              "properties": {
                "bio": {"type": "text", "index": true}
              }
            }
          }
        }
      }
    }
  }
}`

const gitRaw = `{
  "dynamic": true,
  "properties": {
    "data": {
      "properties": {
        "message": {"type": "text", "index": true}
      }
    }
  }
}`

const gitRich = `{
  "properties": {
    "message_analyzed": {"type": "text", "index": true},
    "title_analyzed": {"type": "text", "index": true}
  }
}`

const meetupRich = `{
  "properties": {
    "description_analyzed": {"type": "text", "index": true},
    "comment_analyzed": {"type": "text", "index": true},
    "venue_geolocation": {"type": "geo_point"},
    "group_geolocation": {"type": "geo_point"}
  }
}`

const studyOutput = `{"dynamic": true}`

func decode(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		panic(fmt.Sprintf("mapping: invalid built-in mapping: %v", err))
	}
	return m
}

// Raw returns the mapping of the raw index of kind.
func Raw(kind models.RawKind) map[string]any {
	switch kind {
	case models.KindMeetup:
		return decode(meetupRaw)
	case models.KindGit:
		return decode(gitRaw)
	default:
		return decode(studyOutput)
	}
}

// Rich returns the mapping of the enriched index of kind.
func Rich(kind models.RawKind) map[string]any {
	switch kind {
	case models.KindMeetup:
		return decode(meetupRich)
	case models.KindGit:
		return decode(gitRich)
	default:
		return decode(studyOutput)
	}
}

// Study returns the mapping used by derived study indices.
func Study() map[string]any {
	return decode(studyOutput)
}
