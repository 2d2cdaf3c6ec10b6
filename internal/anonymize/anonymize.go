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

// Package anonymize replaces personally identifying names inside raw
// payloads with one-way digests. Numeric and opaque ids are preserved so
// the referential structure of the payload stays intact.
//
// Anonymization is deterministic but not idempotent: digesting a digest
// yields a new value. Apply it exactly once, before persistence.
package anonymize

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bcem/gelk/internal/models"
)

// maskedLocalPart replaces the local part of anonymized email addresses.
const maskedLocalPart = "xxxxxx"

// Digest returns the sha1 hex digest of name's bytes. Go strings are
// arbitrary byte sequences, so malformed UTF-8 is hashed verbatim and the
// same malformed name always yields the same digest.
func Digest(name string) string {
	sum := sha1.Sum([]byte(name))
	return hex.EncodeToString(sum[:])
}

// Item anonymizes data in place according to the payload shape of kind.
func Item(kind models.RawKind, data map[string]any) error {
	if data == nil {
		return nil
	}
	switch kind {
	case models.KindGit:
		anonymizeCommit(data)
	case models.KindMeetup:
		anonymizeEvent(data)
	default:
		return fmt.Errorf("anonymize: unsupported kind %s", kind)
	}
	return nil
}

// anonymizeCommit rewrites the "Name <local@domain>" author and committer
// strings as "<digest> <xxxxxx@domain>". Empty or missing fields become "".
func anonymizeCommit(data map[string]any) {
	for _, field := range []string{"Author", "Commit"} {
		v, _ := data[field].(string)
		data[field] = anonymizeSignature(v)
	}
}

func anonymizeSignature(sig string) string {
	sig = strings.TrimSpace(sig)
	if sig == "" {
		return ""
	}

	name, email := SplitSignature(sig)
	digest := Digest(name)
	if email == "" {
		return digest
	}

	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	return fmt.Sprintf("%s <%s@%s>", digest, maskedLocalPart, domain)
}

// SplitSignature splits a git "Name <email>" string. A signature without
// angle brackets is all name.
func SplitSignature(sig string) (name, email string) {
	open := strings.LastIndex(sig, "<")
	if open < 0 {
		return strings.TrimSpace(sig), ""
	}
	name = strings.TrimSpace(sig[:open])
	rest := sig[open+1:]
	if end := strings.Index(rest, ">"); end >= 0 {
		rest = rest[:end]
	}
	return name, strings.TrimSpace(rest)
}

// anonymizeEvent handles the event hosts, rsvp members and comment members
// of an events-platform item.
func anonymizeEvent(data map[string]any) {
	if hosts, ok := data["event_hosts"].([]any); ok {
		for i, h := range hosts {
			host, ok := h.(map[string]any)
			if !ok {
				continue
			}
			hosts[i] = map[string]any{
				"id":   host["id"],
				"name": Digest(stringField(host, "name")),
			}
		}
	}

	if rsvps, ok := data["rsvps"].([]any); ok {
		for _, r := range rsvps {
			rsvp, ok := r.(map[string]any)
			if !ok {
				continue
			}
			member, _ := rsvp["member"].(map[string]any)
			if member == nil {
				continue
			}
			var host any
			if ctx, ok := member["event_context"].(map[string]any); ok {
				host = ctx["host"]
			}
			rsvp["member"] = map[string]any{
				"id":            member["id"],
				"name":          Digest(stringField(member, "name")),
				"event_context": map[string]any{"host": host},
			}
		}
	}

	if comments, ok := data["comments"].([]any); ok {
		for _, c := range comments {
			comment, ok := c.(map[string]any)
			if !ok {
				continue
			}
			member, _ := comment["member"].(map[string]any)
			if member == nil {
				continue
			}
			comment["member"] = map[string]any{
				"id":   member["id"],
				"name": Digest(stringField(member, "name")),
			}
		}
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
