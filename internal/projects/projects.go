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

// Package projects maps repositories to the projects they belong to.
//
// The mapping document has the shape
//
//	{"<project>": {"<source type>": ["<repository> [--labels=[a, b]]", ...]}}
//
// and may be written as JSON or YAML. Project order is the document order.
package projects

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fetcher retrieves a remote document. Satisfied by fetch.Client.
type Fetcher interface {
	Bytes(ctx context.Context, url string) ([]byte, error)
}

var labelsRe = regexp.MustCompile(`--labels=\[(.*?)\]`)

type entry struct {
	project string
	labels  []string
}

// Map is the project-mapping collaborator.
type Map struct {
	// repos is keyed by source type, then repository id.
	repos map[string]map[string][]entry
}

// Empty returns a map without projects.
func Empty() *Map {
	return &Map{repos: make(map[string]map[string][]entry)}
}

// Load reads a mapping document from a local path or an http(s) URL.
// An empty location yields an empty map.
func Load(ctx context.Context, location string, f Fetcher) (*Map, error) {
	if strings.TrimSpace(location) == "" {
		return Empty(), nil
	}

	var data []byte
	var err error
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		if f == nil {
			return nil, fmt.Errorf("load projects %s: no fetcher configured", location)
		}
		data, err = f.Bytes(ctx, location)
	} else {
		data, err = os.ReadFile(location)
	}
	if err != nil {
		return nil, fmt.Errorf("load projects %s: %w", location, err)
	}
	return Parse(data)
}

// Parse decodes a mapping document. Decoding goes through yaml.Node so the
// order of projects is the order in which they appear in the document.
func Parse(data []byte) (*Map, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse projects: %w", err)
	}

	m := Empty()
	if len(root.Content) == 0 {
		return m, nil
	}
	doc := root.Content[0]
	if doc.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("parse projects: top level must be an object")
	}

	for i := 0; i+1 < len(doc.Content); i += 2 {
		project := doc.Content[i].Value
		sources := doc.Content[i+1]
		if sources.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(sources.Content); j += 2 {
			sourceType := sources.Content[j].Value
			var repos []string
			if err := sources.Content[j+1].Decode(&repos); err != nil {
				// Non-list values (e.g. "meta") are not repositories.
				continue
			}
			for _, r := range repos {
				m.add(project, sourceType, r)
			}
		}
	}
	return m, nil
}

func (m *Map) add(project, sourceType, line string) {
	labels := parseLabels(line)
	repo := RepositoryID(labelsRe.ReplaceAllString(line, ""))
	if repo == "" {
		return
	}
	if m.repos[sourceType] == nil {
		m.repos[sourceType] = make(map[string][]entry)
	}
	for _, e := range m.repos[sourceType][repo] {
		if e.project == project {
			return
		}
	}
	m.repos[sourceType][repo] = append(m.repos[sourceType][repo], entry{project: project, labels: labels})
}

// RepositoryID reduces a repository line to the identifier used as origin:
// its first whitespace-delimited token.
func RepositoryID(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

func parseLabels(line string) []string {
	match := labelsRe.FindStringSubmatch(line)
	if match == nil {
		return nil
	}
	var out []string
	for _, l := range strings.Split(match[1], ",") {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

// Lookup returns the projects of repo in document order, possibly none.
func (m *Map) Lookup(sourceType, repo string) []string {
	if m == nil {
		return nil
	}
	var out []string
	for _, e := range m.repos[sourceType][repo] {
		out = append(out, e.project)
	}
	return out
}

// Labels returns the union of labels attached to repo, in first-seen order.
func (m *Map) Labels(sourceType, repo string) []string {
	if m == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range m.repos[sourceType][repo] {
		for _, l := range e.labels {
			if !seen[l] {
				seen[l] = true
				out = append(out, l)
			}
		}
	}
	return out
}
