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
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/bcem/gelk/internal/models"
)

// Collector produces raw items for a set of collection parameters.
// Items are passed to fn in source order; returning an error from fn stops
// the collection.
type Collector interface {
	Collect(ctx context.Context, params []string, fn func(models.RawItem) error) error
}

// maxLineBytes bounds a single JSON-lines record.
const maxLineBytes = 32 << 20

// JSONLines reads collector output written as one JSON item per line.
// Blank lines are ignored.
type JSONLines struct {
	r io.Reader
}

// NewJSONLines creates a collector over r.
func NewJSONLines(r io.Reader) *JSONLines {
	return &JSONLines{r: r}
}

// Collect decodes every line of the underlying reader. The parameters are
// not needed to read pre-fetched output and are ignored.
func (j *JSONLines) Collect(ctx context.Context, _ []string, fn func(models.RawItem) error) error {
	sc := bufio.NewScanner(j.r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return err
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var item models.RawItem
		if err := json.Unmarshal(b, &item); err != nil {
			return fmt.Errorf("decode item on line %d: %w", line, err)
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read items: %w", err)
	}
	return nil
}
