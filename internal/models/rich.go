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

import (
	"fmt"
	"time"
)

// RichItem is a flat, queryable document derived from a RawItem.
// It always carries a "uuid" key tying it back to its raw item.
type RichItem map[string]any

// UUID returns the document key.
func (r RichItem) UUID() string {
	s, _ := r["uuid"].(string)
	return s
}

// String returns the string value stored under key, or "".
func (r RichItem) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// StudyRecord is a document produced by a study.
type StudyRecord map[string]any

// Stamp sets the creation fields every study record carries.
func (s StudyRecord) Stamp(created time.Time, grimoireDate string) {
	s["study_creation_date"] = created.UTC().Format(time.RFC3339)
	s["grimoire_creation_date"] = grimoireDate
}

// DocString converts an arbitrary document value into a string, the way
// values are compared across raw and enriched documents.
func DocString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%g", t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
