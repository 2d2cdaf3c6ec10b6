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

package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// TestJSON_Decodes verifies a successful fetch and decode.
func TestJSON_Decodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Accept") != "application/json" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"team": "core", "weight": 3}`))
	}))
	defer server.Close()

	c := NewClientWith(server.Client())
	var got struct {
		Team   string `json:"team"`
		Weight int    `json:"weight"`
	}
	if err := c.JSON(context.Background(), server.URL, &got); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if got.Team != "core" || got.Weight != 3 {
		t.Errorf("got %+v", got)
	}
}

// TestJSON_HTTPError verifies that a non-200 status is an error.
func TestJSON_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	c := NewClient(context.Background(), Config{Timeout: 5 * time.Second, RetryMax: 1})
	var v map[string]any
	err := c.JSON(context.Background(), server.URL, &v)
	if err == nil || !strings.Contains(err.Error(), "HTTP 404") {
		t.Fatalf("err = %v, want HTTP 404", err)
	}
}

// TestJSON_Malformed verifies that an undecodable body is an error.
func TestJSON_Malformed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"team": `))
	}))
	defer server.Close()

	var v map[string]any
	if err := NewClientWith(server.Client()).JSON(context.Background(), server.URL, &v); err == nil {
		t.Fatal("expected decode error")
	}
}

// TestNewClient_BearerToken verifies that a configured token is sent.
func TestNewClient_BearerToken(t *testing.T) {
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	c := NewClient(context.Background(), Config{Token: "s3cret", RetryMax: 1})
	body, err := c.Bytes(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(body) != "[]" {
		t.Errorf("body = %q", body)
	}
	if auth != "Bearer s3cret" {
		t.Errorf("Authorization = %q", auth)
	}
}
