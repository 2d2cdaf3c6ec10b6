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

package projects_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bcem/gelk/internal/fetch"
	"github.com/bcem/gelk/internal/projects"
)

const mappingJSON = `{
  "zeta": {
    "git": ["https://github.com/acme/widgets /tmp/clone --labels=[core, api]"],
    "meta": {"title": "Zeta"}
  },
  "alpha": {
    "git": ["https://github.com/acme/widgets", "https://github.com/acme/docs"],
    "meetup": ["https://www.meetup.com/acme-users/"]
  }
}`

// TestParse_DocumentOrder verifies that projects keep document order and
// that non-list values are ignored.
func TestParse_DocumentOrder(t *testing.T) {
	m, err := projects.Parse([]byte(mappingJSON))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	got := m.Lookup("git", "https://github.com/acme/widgets")
	if diff := cmp.Diff([]string{"zeta", "alpha"}, got); diff != "" {
		t.Errorf("projects mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"core", "api"}, m.Labels("git", "https://github.com/acme/widgets")); diff != "" {
		t.Errorf("labels mismatch (-want +got):\n%s", diff)
	}
	if got := m.Lookup("meetup", "https://www.meetup.com/acme-users/"); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("meetup projects = %v", got)
	}
	if got := m.Lookup("git", "https://github.com/other/repo"); got != nil {
		t.Errorf("unknown repo projects = %v", got)
	}
	if got := m.Lookup("meta", "Zeta"); got != nil {
		t.Errorf("meta treated as repositories: %v", got)
	}
}

// TestParse_Errors covers malformed documents.
func TestParse_Errors(t *testing.T) {
	for _, doc := range []string{`["a", "b"]`, `{"p": [`} {
		if _, err := projects.Parse([]byte(doc)); err == nil {
			t.Errorf("Parse(%q): expected error", doc)
		}
	}
}

// TestNilMap verifies that lookups on a nil map return nothing.
func TestNilMap(t *testing.T) {
	var m *projects.Map
	if m.Lookup("git", "x") != nil || m.Labels("git", "x") != nil {
		t.Error("nil map returned projects")
	}
}

// TestLoad_File verifies loading a YAML document from disk.
func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects.yaml")
	doc := "grimoire:\n  git:\n    - https://github.com/chaoss/grimoirelab-elk\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	m, err := projects.Load(context.Background(), path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Lookup("git", "https://github.com/chaoss/grimoirelab-elk"); len(got) != 1 || got[0] != "grimoire" {
		t.Errorf("projects = %v", got)
	}
}

// TestLoad_HTTP verifies loading through a fetcher, and that an http
// location without one is rejected.
func TestLoad_HTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(mappingJSON))
	}))
	defer server.Close()

	m, err := projects.Load(context.Background(), server.URL, fetch.NewClientWith(server.Client()))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Lookup("git", "https://github.com/acme/docs"); len(got) != 1 || got[0] != "alpha" {
		t.Errorf("projects = %v", got)
	}

	if _, err := projects.Load(context.Background(), server.URL, nil); err == nil {
		t.Error("expected error without fetcher")
	}
}

// TestLoad_Empty verifies that no location yields an empty map.
func TestLoad_Empty(t *testing.T) {
	m, err := projects.Load(context.Background(), "  ", nil)
	if err != nil || m.Lookup("git", "x") != nil {
		t.Errorf("Load empty = %v, %v", m, err)
	}
}
