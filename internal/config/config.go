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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bcem/gelk/internal/models"
	"github.com/bcem/gelk/internal/study"
)

// StudyConfig names a study and its parameters.
type StudyConfig struct {
	Name   string       `yaml:"name"`
	Params study.Params `yaml:",inline"`
}

// BackendConfig holds the indices and options of one source backend.
type BackendConfig struct {
	Kind          models.RawKind
	RawIndex      string
	EnrichIndex   string
	RawAliases    []string
	EnrichAliases []string
	Anonymize     bool
	Studies       []StudyConfig
}

// Config holds all configuration for gelk.
type Config struct {
	Backends map[string]BackendConfig

	// PostgreSQL (indexing store and identities)
	DatabaseURL string

	// Redis
	RedisURL     string
	StudiesQueue string
	DedupEnabled bool

	// Identities
	IdentityMode     bool
	IdentityCacheTTL time.Duration

	// Projects file path or URL; empty means no project mapping.
	ProjectsSource string

	// Remote fetches (projects, extra data)
	FetchToken    string
	FetchTimeout  time.Duration
	FetchRetryMax int

	BatchSize   int
	MetricsPort int

	// Study trigger endpoint
	WebhookPort  int
	WebhookToken string
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	DatabaseURL string `yaml:"database_url"`
	Redis       struct {
		URL    string `yaml:"url"`
		Dedup  *bool  `yaml:"dedup"`
		Queues struct {
			Studies string `yaml:"studies"`
		} `yaml:"queues"`
	} `yaml:"redis"`
	Identity struct {
		Enabled  bool   `yaml:"enabled"`
		CacheTTL string `yaml:"cache_ttl"`
	} `yaml:"identity"`
	Projects string `yaml:"projects"`
	Fetch    struct {
		Token    string `yaml:"token"`
		Timeout  string `yaml:"timeout"`
		RetryMax int    `yaml:"retry_max"`
	} `yaml:"fetch"`
	BatchSize   int `yaml:"batch_size"`
	MetricsPort int `yaml:"metrics_port"`
	Webhook     struct {
		Port  int    `yaml:"port"`
		Token string `yaml:"token"`
	} `yaml:"webhook"`
	Backends map[string]struct {
		RawIndex      string        `yaml:"raw_index"`
		EnrichIndex   string        `yaml:"enriched_index"`
		RawAliases    []string      `yaml:"raw_aliases"`
		EnrichAliases []string      `yaml:"enriched_aliases"`
		Anonymize     bool          `yaml:"anonymize"`
		Studies       []StudyConfig `yaml:"studies"`
	} `yaml:"backends"`
}

// Load reads configuration from path, or from CONFIG_PATH when path is
// empty, expanding ${VAR} references. A missing default file is not an
// error: everything then comes from the environment.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = envOrDefault("CONFIG_PATH", "config.yaml")
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return Parse(data)
	case errors.Is(err, fs.ErrNotExist) && !explicit:
		return build(rawConfig{})
	default:
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
}

// Parse builds a configuration from YAML data without touching the
// filesystem.
func Parse(data []byte) (*Config, error) {
	// Expand ${VAR} references in the YAML
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config YAML: %w", err)
	}
	return build(raw)
}

func build(raw rawConfig) (*Config, error) {
	cfg := &Config{
		DatabaseURL:      firstNonEmpty(raw.DatabaseURL, envOrDefault("DATABASE_URL", "")),
		RedisURL:         firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "")),
		StudiesQueue:     firstNonEmpty(raw.Redis.Queues.Studies, envOrDefault("STUDIES_QUEUE", "gelk-studies")),
		IdentityMode:     raw.Identity.Enabled || envOrDefault("GELK_IDENTITY_MODE", "") == "true",
		ProjectsSource:   firstNonEmpty(raw.Projects, envOrDefault("GELK_PROJECTS", "")),
		FetchToken:       firstNonEmpty(raw.Fetch.Token, envOrDefault("GELK_FETCH_TOKEN", "")),
		FetchRetryMax:    raw.Fetch.RetryMax,
		BatchSize:        raw.BatchSize,
		MetricsPort:      raw.MetricsPort,
		WebhookPort:      raw.Webhook.Port,
		WebhookToken:     firstNonEmpty(raw.Webhook.Token, envOrDefault("GELK_WEBHOOK_TOKEN", "")),
		IdentityCacheTTL: envOrDefaultDuration("GELK_IDENTITY_CACHE_TTL", 24*time.Hour),
		FetchTimeout:     envOrDefaultDuration("GELK_FETCH_TIMEOUT", 30*time.Second),
		Backends:         make(map[string]BackendConfig),
	}
	cfg.DedupEnabled = cfg.RedisURL != ""
	if raw.Redis.Dedup != nil {
		cfg.DedupEnabled = *raw.Redis.Dedup && cfg.RedisURL != ""
	}

	if raw.Identity.CacheTTL != "" {
		d, err := time.ParseDuration(raw.Identity.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("identity.cache_ttl: %w", err)
		}
		cfg.IdentityCacheTTL = d
	}
	if raw.Fetch.Timeout != "" {
		d, err := time.ParseDuration(raw.Fetch.Timeout)
		if err != nil {
			return nil, fmt.Errorf("fetch.timeout: %w", err)
		}
		cfg.FetchTimeout = d
	}
	if cfg.FetchRetryMax <= 0 {
		cfg.FetchRetryMax = envOrDefaultInt("GELK_FETCH_RETRY_MAX", 3)
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = envOrDefaultInt("GELK_BATCH_SIZE", 100)
	}
	if cfg.MetricsPort == 0 {
		cfg.MetricsPort = envOrDefaultInt("METRICS_PORT", 0)
	}
	if cfg.WebhookPort == 0 {
		cfg.WebhookPort = envOrDefaultInt("WEBHOOK_PORT", 8080)
	}

	for name, b := range raw.Backends {
		kind, err := models.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("backends: %w", err)
		}
		for i, s := range b.Studies {
			if strings.TrimSpace(s.Name) == "" {
				return nil, fmt.Errorf("backends.%s.studies[%d]: missing name", name, i)
			}
		}
		bc := BackendConfig{
			Kind:          kind,
			RawIndex:      b.RawIndex,
			EnrichIndex:   b.EnrichIndex,
			RawAliases:    b.RawAliases,
			EnrichAliases: b.EnrichAliases,
			Anonymize:     b.Anonymize,
			Studies:       b.Studies,
		}
		cfg.Backends[kind.String()] = withIndexDefaults(bc)
	}

	return cfg, nil
}

// Backend returns the settings of the named backend. Backends missing from
// the file get default index names.
func (c *Config) Backend(name string) (BackendConfig, error) {
	kind, err := models.ParseKind(name)
	if err != nil {
		return BackendConfig{}, err
	}
	if b, ok := c.Backends[kind.String()]; ok {
		return b, nil
	}
	return withIndexDefaults(BackendConfig{Kind: kind}), nil
}

// BackendNames lists configured backends, sorted.
func (c *Config) BackendNames() []string {
	names := make([]string, 0, len(c.Backends))
	for name := range c.Backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Study returns the configured settings of the named study, matching
// names with or without the "enrich_" prefix. Unconfigured studies get
// default parameters.
func (b BackendConfig) Study(name string) StudyConfig {
	for _, sc := range b.Studies {
		if sc.Name == name || sc.Name == "enrich_"+name || "enrich_"+sc.Name == name {
			return StudyConfig{Name: name, Params: sc.Params}
		}
	}
	return StudyConfig{Name: name}
}

func withIndexDefaults(b BackendConfig) BackendConfig {
	if b.RawIndex == "" {
		b.RawIndex = b.Kind.String() + "_raw"
	}
	if b.EnrichIndex == "" {
		b.EnrichIndex = b.Kind.String() + "_enriched"
	}
	return b
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
