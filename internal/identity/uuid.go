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

// Package identity resolves the people referenced by raw items into
// canonical profiles.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// UUID computes the deterministic identity uuid used when no identity
// service is involved, and as the lookup key of the Postgres resolver.
//
// The key is sha1("source:email:name:username") after NFKD normalization,
// with accents removed from the name and everything lowercased. Empty
// components are rendered as "none" so keys match identities stored by
// earlier deployments.
func UUID(source, email, name, username string) string {
	key := strings.Join([]string{
		normalize(source, false),
		normalize(email, false),
		normalize(name, true),
		normalize(username, false),
	}, ":")
	key = strings.ToLower(key)

	sum := sha1.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

// absent stands for a missing identity component in the key.
const absent = "none"

func normalize(s string, unaccent bool) string {
	if s == "" {
		return absent
	}
	var t transform.Transformer = norm.NFKD
	if unaccent {
		t = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)))
	}
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
