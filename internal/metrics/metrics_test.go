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

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// TestNil verifies that a nil Metrics records nothing without panicking.
func TestNil(t *testing.T) {
	var m *Metrics
	m.RawItems("git", "written", 3)
	m.EnrichedItems("git", "written", 3)
	m.StudyRun("Onion", "complete", time.Second)
}

// TestCounters verifies the recorded values.
func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := New(reg)
	if err != nil {
		t.Fatal(err)
	}

	m.RawItems("git", "written", 3)
	m.RawItems("git", "written", 2)
	m.RawItems("git", "skipped", 0)
	m.EnrichedItems("meetup", "error", 1)
	m.StudyRun("Onion", "complete", 250*time.Millisecond)
	m.StudyRun("Onion", "failed", time.Second)

	if got := testutil.ToFloat64(m.rawItems.WithLabelValues("git", "written")); got != 5 {
		t.Errorf("raw written = %v, want 5", got)
	}
	if n := testutil.CollectAndCount(m.rawItems); n != 1 {
		t.Errorf("raw series = %d, want 1 (zero adds create no series)", n)
	}
	if got := testutil.ToFloat64(m.enrichedItems.WithLabelValues("meetup", "error")); got != 1 {
		t.Errorf("enriched errors = %v", got)
	}
	if n := testutil.CollectAndCount(m.studyRuns); n != 2 {
		t.Errorf("study run series = %d, want 2", n)
	}
	if n, err := testutil.GatherAndCount(reg, "gelk_study_duration_seconds"); err != nil || n != 1 {
		t.Errorf("duration series = %d, %v", n, err)
	}
}

// TestNew_DuplicateRegistration verifies that registering twice fails.
func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg); err == nil {
		t.Error("expected error on second registration")
	}
}
