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
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bcem/gelk/internal/anonymize"
	"github.com/bcem/gelk/internal/models"
)

const gitSource = "git"

// commit is the subset of a git raw payload the enricher reads.
type commit struct {
	Hash       string
	Message    string
	Author     models.Identity
	Committer  models.Identity
	AuthorDate time.Time
	CommitDate time.Time
	Parents    []string
	Files      []fileChange
}

type fileChange struct {
	Path    string
	Action  string
	Added   int
	Removed int
}

func parseCommit(data map[string]any) (*commit, error) {
	c := &commit{
		Hash:      stringOf(data["commit"]),
		Message:   stringOf(data["message"]),
		Author:    signatureIdentity(stringOf(data["Author"])),
		Committer: signatureIdentity(stringOf(data["Commit"])),
	}
	if c.Hash == "" {
		return nil, fmt.Errorf("commit without hash")
	}

	var err error
	if c.AuthorDate, err = ParseGitDate(stringOf(data["AuthorDate"])); err != nil {
		return nil, err
	}
	if cd := stringOf(data["CommitDate"]); cd != "" {
		if c.CommitDate, err = ParseGitDate(cd); err != nil {
			return nil, err
		}
	} else {
		c.CommitDate = c.AuthorDate
	}

	if parents, ok := data["parents"].([]any); ok {
		for _, p := range parents {
			c.Parents = append(c.Parents, stringOf(p))
		}
	}

	if files, ok := data["files"].([]any); ok {
		for _, f := range files {
			fm, ok := f.(map[string]any)
			if !ok {
				continue
			}
			path := stringOf(fm["newfile"])
			if path == "" {
				path = stringOf(fm["file"])
			}
			if path == "" {
				continue
			}
			c.Files = append(c.Files, fileChange{
				Path:    path,
				Action:  stringOf(fm["action"]),
				Added:   lineCount(fm["added"]),
				Removed: lineCount(fm["removed"]),
			})
		}
	}
	return c, nil
}

// signatureIdentity parses "Name <email>" into an Identity. An empty
// signature yields an empty identity.
func signatureIdentity(sig string) models.Identity {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return models.Identity{}
	}
	name, email := anonymize.SplitSignature(sig)
	return models.Identity{Name: name, Email: email}
}

// lineCount reads git numstat values; binary files report "-".
func lineCount(v any) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

func stringOf(v any) string {
	return models.DocString(v)
}

// enrichCommit builds the rich item of a git commit.
func (e *Enricher) enrichCommit(ctx context.Context, item *models.RawItem) (models.RichItem, error) {
	c, err := parseCommit(item.Data)
	if err != nil {
		return nil, fmt.Errorf("raw item %s: %w", item.UUID, err)
	}

	rich := e.baseFields(item)

	author := e.resolve(ctx, gitSource, c.Author)
	committer := e.resolve(ctx, gitSource, c.Committer)

	// Missing committer gives "" and a nil domain, never an error.
	rich["author_name"] = c.Author.Name
	rich["author_domain"] = EmailDomain(c.Author.Email)
	rich["author_uuid"] = author.RenderUUID()
	rich["committer_name"] = c.Committer.Name
	rich["committer_domain"] = EmailDomain(c.Committer.Email)
	rich["git_author_domain"] = rich["author_domain"]

	if e.identityMode {
		profileFields(rich, "Author", author)
		profileFields(rich, "Commit", committer)
		profileFields(rich, "author", author)
	}

	addDateFields(rich, "author", c.AuthorDate)
	addDateFields(rich, "commit", c.CommitDate)

	title, _, _ := strings.Cut(c.Message, "\n")
	added, removed := 0, 0
	for _, f := range c.Files {
		added += f.Added
		removed += f.Removed
	}

	rich["hash"] = c.Hash
	rich["hash_short"] = shortHash(c.Hash)
	rich["message"] = c.Message
	rich["message_analyzed"] = c.Message
	rich["title"] = title
	rich["title_analyzed"] = title
	rich["files"] = len(c.Files)
	rich["lines_added"] = added
	rich["lines_removed"] = removed
	rich["lines_changed"] = added + removed
	rich["merge_commit"] = len(c.Parents) > 1
	rich["is_git_commit"] = 1
	rich["repo_name"] = rich["origin"]
	rich["grimoire_creation_date"] = c.AuthorDate.Format(time.RFC3339)

	return rich, nil
}

func shortHash(h string) string {
	if len(h) <= 7 {
		return h
	}
	return h[:7]
}
