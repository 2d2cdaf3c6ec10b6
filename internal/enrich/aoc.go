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
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/gelk/internal/models"
)

// aocNamespace scopes the deterministic ids of file-touch events.
var aocNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("gelk/areas-of-code"))

// codeExtensions lists the extensions counted as "Code" in filetype.
var codeExtensions = map[string]bool{
	"c": true, "cc": true, "cpp": true, "cs": true, "go": true, "h": true,
	"hpp": true, "java": true, "js": true, "jsx": true, "kt": true,
	"php": true, "pl": true, "py": true, "rb": true, "rs": true,
	"scala": true, "sh": true, "swift": true, "ts": true, "tsx": true,
}

// AreasOfCode expands a git raw item into one event per changed file.
// Every event shares the commit-level fields and perceval_uuid, and gets
// its own uuid derived from the raw uuid, the file position and its path.
func (e *Enricher) AreasOfCode(ctx context.Context, item *models.RawItem) ([]models.RichItem, error) {
	if item.Kind() != models.KindGit {
		return nil, fmt.Errorf("raw item %s: areas of code need a git item, got %q", item.UUID, item.Backend)
	}
	c, err := parseCommit(item.Data)
	if err != nil {
		return nil, fmt.Errorf("raw item %s: %w", item.UUID, err)
	}

	author := e.resolve(ctx, gitSource, c.Author)
	owner := ownerOf(item.Origin)

	out := make([]models.RichItem, 0, len(c.Files))
	for i, f := range c.Files {
		rich := e.baseFields(item)
		key := item.UUID + strconv.Itoa(i) + f.Path
		rich["uuid"] = uuid.NewSHA1(aocNamespace, []byte(key)).String()
		rich["id"] = c.Hash + "_" + strconv.Itoa(i)

		rich["hash"] = c.Hash
		rich["date"] = c.AuthorDate.UTC().Format(isoLayout)
		rich["committer"] = c.Committer.Name
		rich["committer_date"] = c.CommitDate.UTC().Format(isoLayout)
		rich["eventtype"] = "commit"
		rich["owner"] = owner
		rich["message"] = c.Message
		rich["files"] = len(c.Files)
		rich["git_author_domain"] = EmailDomain(c.Author.Email)
		rich["grimoire_creation_date"] = c.AuthorDate.Format(time.RFC3339)

		profileFields(rich, "author", author)
		if !e.identityMode {
			rich["author_name"] = c.Author.Name
			rich["author_domain"] = EmailDomain(c.Author.Email)
		}

		addFileFields(rich, f)
		out = append(out, rich)
	}
	return out, nil
}

func addFileFields(rich models.RichItem, f fileChange) {
	name := path.Base(f.Path)
	ext := ""
	if dot := strings.LastIndex(name, "."); dot > 0 {
		ext = name[dot+1:]
	}
	dir := path.Dir(f.Path)
	if dir == "." {
		dir = ""
	}

	rich["filepath"] = f.Path
	rich["fileaction"] = f.Action
	rich["addedlines"] = f.Added
	rich["removedlines"] = f.Removed
	rich["file_name"] = name
	rich["file_ext"] = ext
	rich["file_dir_name"] = dir + "/"
	rich["file_path_list"] = strings.Split(f.Path, "/")
	if codeExtensions[strings.ToLower(ext)] {
		rich["filetype"] = "Code"
	} else {
		rich["filetype"] = "Other"
	}
}

// ownerOf returns the organization or user segment of a repository URL,
// e.g. "chaoss" for https://github.com/chaoss/grimoirelab.
func ownerOf(origin string) string {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(origin, "/"), ".git")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-2]
}
