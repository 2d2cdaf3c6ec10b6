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
	"fmt"
	"time"

	"github.com/bcem/gelk/internal/models"
)

// gitDateLayout is the format git uses for AuthorDate and CommitDate.
const gitDateLayout = "Mon Jan 2 15:04:05 2006 -0700"

// ParseGitDate parses a git date keeping its own UTC offset.
func ParseGitDate(s string) (time.Time, error) {
	t, err := time.Parse(gitDateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse git date %q: %w", s, err)
	}
	return t, nil
}

// Weekday numbers days from 0 (Monday) to 6 (Sunday).
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// addDateFields adds the local and UTC-normalized views of t:
//
//	<p>_date, <p>_date_weekday, <p>_date_hour   (t's own offset)
//	utc_<p>, utc_<p>_date_weekday, utc_<p>_date_hour
//	<p>_tz                                     (offset in hours)
func addDateFields(rich models.RichItem, prefix string, t time.Time) {
	utc := t.UTC()
	_, offset := t.Zone()

	rich[prefix+"_date"] = t.Format(isoLayout)
	rich[prefix+"_date_weekday"] = Weekday(t)
	rich[prefix+"_date_hour"] = t.Hour()
	rich["utc_"+prefix] = utc.Format(isoLayout)
	rich["utc_"+prefix+"_date_weekday"] = Weekday(utc)
	rich["utc_"+prefix+"_date_hour"] = utc.Hour()
	rich[prefix+"_tz"] = float64(offset) / 3600
}

// fromMillis converts epoch milliseconds and an offset in milliseconds into
// a time carrying that offset.
func fromMillis(ms, offsetMs int64) time.Time {
	zone := time.FixedZone("", int(offsetMs/1000))
	return time.UnixMilli(ms).In(zone)
}
