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

// gelk: raw ingestion, enrichment and studies
//
// Usage:
//
//	gelk raw     --backend git --url "https://host/repo /tmp/clone" [--input items.jsonl] [--anonymize]
//	gelk enrich  --backend git
//	gelk study   --backend git [--name onion]      (all configured studies when --name is empty)
//	gelk enqueue --backend git --name onion
//	gelk worker
//	gelk serve                                     (POST /webhook/{backend} queues studies)
//
// Collector output is read as JSON lines from --input, or stdin.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/gelk/internal/config"
	"github.com/bcem/gelk/internal/dedup"
	"github.com/bcem/gelk/internal/enrich"
	"github.com/bcem/gelk/internal/fetch"
	"github.com/bcem/gelk/internal/identity"
	"github.com/bcem/gelk/internal/metrics"
	"github.com/bcem/gelk/internal/projects"
	"github.com/bcem/gelk/internal/queue"
	"github.com/bcem/gelk/internal/raw"
	"github.com/bcem/gelk/internal/store"
	"github.com/bcem/gelk/internal/study"
	"github.com/bcem/gelk/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "raw":
		err = runRaw(ctx, logger, args)
	case "enrich":
		err = runEnrich(ctx, logger, args)
	case "study":
		err = runStudy(ctx, logger, args)
	case "enqueue":
		err = runEnqueue(ctx, logger, args)
	case "worker":
		err = runWorker(ctx, logger, args)
	case "serve":
		err = runServe(ctx, logger, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		slog.Error("gelk failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: gelk <raw|enrich|study|enqueue|worker|serve> [flags]")
}

// app holds the connections and components shared by every command.
type app struct {
	logger  *slog.Logger
	cfg     *config.Config
	pool    *pgxpool.Pool
	rdb     *redis.Client
	store   store.Store
	metrics *metrics.Metrics
	fetcher *fetch.Client
}

func newApp(ctx context.Context, logger *slog.Logger, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	a := &app{logger: logger, cfg: cfg}

	// --- Connect to PostgreSQL ---
	a.pool, err = pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("create Postgres pool: %w", err)
	}
	if err := a.pool.Ping(ctx); err != nil {
		a.pool.Close()
		return nil, fmt.Errorf("connect to PostgreSQL: %w", err)
	}
	logger.Info("connected to PostgreSQL", "url", store.AnonymizeURL(cfg.DatabaseURL))

	a.store, err = store.NewPostgres(ctx, a.pool, cfg.DatabaseURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("initialise store: %w", err)
	}

	// --- Connect to Redis (optional) ---
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opt)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = a.rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to Redis: %w", err)
		}
		logger.Info("connected to Redis")
	}

	// --- Metrics ---
	reg := prometheus.NewRegistry()
	a.metrics, err = metrics.New(reg)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.MetricsPort > 0 {
		metrics.Serve(ctx, cfg.MetricsPort, reg)
	}

	a.fetcher = fetch.NewClient(ctx, fetch.Config{
		Timeout:  cfg.FetchTimeout,
		RetryMax: cfg.FetchRetryMax,
		Token:    cfg.FetchToken,
	})
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}

// enricher builds the enricher with the configured identity resolver and
// project map.
func (a *app) enricher(ctx context.Context) (*enrich.Enricher, error) {
	prjs, err := projects.Load(ctx, a.cfg.ProjectsSource, a.fetcher)
	if err != nil {
		return nil, err
	}

	var resolver identity.Resolver = identity.Local{}
	if a.cfg.IdentityMode {
		pg, err := identity.NewPGResolver(ctx, a.pool)
		if err != nil {
			return nil, fmt.Errorf("initialise identities: %w", err)
		}
		resolver = pg
		if a.rdb != nil {
			resolver = identity.NewCached(pg, a.rdb, a.cfg.IdentityCacheTTL)
		}
	}

	return enrich.New(enrich.Config{
		Logger:       a.logger,
		IdentityMode: a.cfg.IdentityMode,
		Resolver:     resolver,
		Projects:     prjs,
	}), nil
}

func (a *app) studyRunner(b config.BackendConfig) *study.Runner {
	return study.NewRunner(study.Env{
		Logger:      a.logger,
		Store:       a.store,
		Kind:        b.Kind,
		RawIndex:    b.RawIndex,
		EnrichIndex: b.EnrichIndex,
	}, a.metrics)
}

func runRaw(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("raw", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	backendFlag := fs.String("backend", "", "Backend: git or meetup (required)")
	urlFlag := fs.String("url", "", "Repository or group identifier (required)")
	inputFlag := fs.String("input", "-", "Collector output as JSON lines; - reads stdin")
	anonFlag := fs.Bool("anonymize", false, "Anonymize identities before writing")
	fs.Parse(args)

	if *backendFlag == "" || *urlFlag == "" {
		fs.Usage()
		return errors.New("--backend and --url are required")
	}

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.cfg.Backend(*backendFlag)
	if err != nil {
		return err
	}

	var in io.Reader = os.Stdin
	if *inputFlag != "-" {
		f, err := os.Open(*inputFlag)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	var deduper raw.Deduper
	if a.rdb != nil && a.cfg.DedupEnabled {
		deduper = dedup.NewFilter(a.rdb)
	}

	runner := raw.NewRunner(raw.RunnerConfig{
		Logger:    logger,
		Collector: raw.NewJSONLines(in),
		Store:     a.store,
		Dedup:     deduper,
		Metrics:   a.metrics,
		BatchSize: a.cfg.BatchSize,
	})
	_, err = runner.Run(ctx, raw.Request{
		Kind:       b.Kind,
		Identifier: *urlFlag,
		Index:      b.RawIndex,
		Aliases:    b.RawAliases,
		Anonymize:  *anonFlag || b.Anonymize,
	})
	return err
}

func runEnrich(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("enrich", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	backendFlag := fs.String("backend", "", "Backend: git or meetup (required)")
	fs.Parse(args)

	if *backendFlag == "" {
		fs.Usage()
		return errors.New("--backend is required")
	}

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.cfg.Backend(*backendFlag)
	if err != nil {
		return err
	}
	e, err := a.enricher(ctx)
	if err != nil {
		return err
	}

	runner := enrich.NewRunner(enrich.RunnerConfig{
		Logger:    logger,
		Enricher:  e,
		Store:     a.store,
		Metrics:   a.metrics,
		Kind:      b.Kind,
		BatchSize: a.cfg.BatchSize,
	})
	_, err = runner.Run(ctx, b.RawIndex, b.EnrichIndex, b.EnrichAliases)
	return err
}

func runStudy(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("study", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	backendFlag := fs.String("backend", "", "Backend: git or meetup (required)")
	nameFlag := fs.String("name", "", "Study to run; empty runs every configured study")
	fs.Parse(args)

	if *backendFlag == "" {
		fs.Usage()
		return errors.New("--backend is required")
	}

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	b, err := a.cfg.Backend(*backendFlag)
	if err != nil {
		return err
	}

	configs := b.Studies
	if *nameFlag != "" {
		configs = []config.StudyConfig{b.Study(*nameFlag)}
	}
	if len(configs) == 0 {
		logger.Info("no studies configured", "backend", b.Kind.String())
		return nil
	}

	e, err := a.enricher(ctx)
	if err != nil {
		return err
	}
	runner := a.studyRunner(b)

	var failed []string
	for _, sc := range configs {
		s, err := study.New(sc.Name, sc.Params, study.Deps{Enricher: e, Fetcher: a.fetcher})
		if err != nil {
			return err
		}
		// Studies are independent: one failure does not stop the others.
		if err := runner.Run(ctx, s); err != nil {
			failed = append(failed, sc.Name)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("studies failed: %v", failed)
	}
	return nil
}

func runEnqueue(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	backendFlag := fs.String("backend", "", "Backend: git or meetup (required)")
	nameFlag := fs.String("name", "", "Study to enqueue (required)")
	fs.Parse(args)

	if *backendFlag == "" || *nameFlag == "" {
		fs.Usage()
		return errors.New("--backend and --name are required")
	}

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.rdb == nil {
		return errors.New("REDIS_URL is required to enqueue studies")
	}

	b, err := a.cfg.Backend(*backendFlag)
	if err != nil {
		return err
	}
	sc := b.Study(*nameFlag)
	// Reject unknown names before they reach a worker.
	if _, err := study.New(sc.Name, sc.Params, study.Deps{}); err != nil {
		return err
	}

	q := queue.New(a.rdb, a.cfg.StudiesQueue, logger)
	_, err = q.Publish(ctx, queue.Task{Study: sc.Name, Backend: b.Kind.String(), Params: sc.Params})
	return err
}

func runWorker(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	waitFlag := fs.Duration("wait", 5*time.Second, "How long each queue poll blocks")
	fs.Parse(args)

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.rdb == nil {
		return errors.New("REDIS_URL is required to run a worker")
	}

	e, err := a.enricher(ctx)
	if err != nil {
		return err
	}

	q := queue.New(a.rdb, a.cfg.StudiesQueue, logger)
	logger.Info("study worker started", "queue", a.cfg.StudiesQueue)

	err = q.Consume(ctx, *waitFlag, func(ctx context.Context, t queue.Task) error {
		b, err := a.cfg.Backend(t.Backend)
		if err != nil {
			return err
		}
		s, err := study.New(t.Study, t.Params, study.Deps{Enricher: e, Fetcher: a.fetcher})
		if err != nil {
			return err
		}
		return a.studyRunner(b).Run(ctx, s)
	})

	logger.Info("study worker stopped")
	return err
}

func runServe(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Config file (default $CONFIG_PATH or config.yaml)")
	portFlag := fs.Int("port", 0, "Listen port (default $WEBHOOK_PORT or 8080)")
	fs.Parse(args)

	a, err := newApp(ctx, logger, *configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	if a.rdb == nil {
		return errors.New("REDIS_URL is required to serve study notifications")
	}

	port := a.cfg.WebhookPort
	if *portFlag > 0 {
		port = *portFlag
	}

	q := queue.New(a.rdb, a.cfg.StudiesQueue, logger)
	handler := webhook.NewHandler(webhook.HandlerConfig{
		Logger:    logger,
		Config:    a.cfg,
		Publisher: q,
		Pinger:    q,
		Token:     a.cfg.WebhookToken,
	})
	ready, err := webhook.Serve(ctx, port, handler)
	if err != nil {
		return err
	}
	<-ready
	if a.cfg.WebhookToken == "" {
		logger.Warn("webhook token not set, notifications are unauthenticated")
	}

	<-ctx.Done()
	logger.Info("webhook server stopped")
	return nil
}
