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

package raw

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bcem/gelk/internal/models"
)

// TestCollectionParams covers both backends and the empty identifier.
func TestCollectionParams(t *testing.T) {
	tests := []struct {
		name       string
		kind       models.RawKind
		identifier string
		want       []string
		wantErr    bool
	}{
		{
			name:       "git with local clone path",
			kind:       models.KindGit,
			identifier: "https://host/repo /tmp/local-clone",
			want:       []string{"https://host/repo"},
		},
		{
			name:       "git url only",
			kind:       models.KindGit,
			identifier: "https://github.com/grimoirelab/perceval",
			want:       []string{"https://github.com/grimoirelab/perceval"},
		},
		{
			name:       "meetup group",
			kind:       models.KindMeetup,
			identifier: "https://host/group",
			want:       []string{"--tag", "https://host/group", "https://host/group"},
		},
		{
			name:       "empty",
			kind:       models.KindGit,
			identifier: "   ",
			wantErr:    true,
		},
		{
			name:       "unknown kind",
			kind:       models.KindUnknown,
			identifier: "https://host/x",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CollectionParams(tt.kind, tt.identifier)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("CollectionParams: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestParamsTagAndOrigin verifies the tag and origin read back from
// derived params.
func TestParamsTagAndOrigin(t *testing.T) {
	params := []string{"--tag", "https://host/group", "https://host/group"}
	if got := tagFromParams(params); got != "https://host/group" {
		t.Errorf("tag = %q", got)
	}
	if got := originFromParams(params); got != "https://host/group" {
		t.Errorf("origin = %q", got)
	}
	if got := tagFromParams([]string{"https://host/repo"}); got != "" {
		t.Errorf("git tag = %q, want empty", got)
	}
}
