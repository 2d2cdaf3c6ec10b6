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

// Package metrics exposes pipeline counters in Prometheus format.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline collectors.
type Metrics struct {
	rawItems      *prometheus.CounterVec
	enrichedItems *prometheus.CounterVec
	studyRuns     *prometheus.CounterVec
	studyDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		rawItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gelk",
			Name:      "raw_items_total",
			Help:      "Raw items processed, by backend and result (written, skipped, error)",
		}, []string{"backend", "result"}),
		enrichedItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gelk",
			Name:      "enriched_items_total",
			Help:      "Rich items written, by backend and result (written, error)",
		}, []string{"backend", "result"}),
		studyRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gelk",
			Name:      "study_runs_total",
			Help:      "Study runs, by study and final state",
		}, []string{"study", "state"}),
		studyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gelk",
			Name:      "study_duration_seconds",
			Help:      "Time spent running a study",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"study"}),
	}

	for _, c := range []prometheus.Collector{m.rawItems, m.enrichedItems, m.studyRuns, m.studyDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

// RawItems adds n raw items with the given result.
func (m *Metrics) RawItems(backend, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rawItems.WithLabelValues(backend, result).Add(float64(n))
}

// EnrichedItems adds n rich items with the given result.
func (m *Metrics) EnrichedItems(backend, result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.enrichedItems.WithLabelValues(backend, result).Add(float64(n))
}

// StudyRun records a finished study run.
func (m *Metrics) StudyRun(study, state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.studyRuns.WithLabelValues(study, state).Inc()
	m.studyDuration.WithLabelValues(study).Observe(elapsed.Seconds())
}

// Serve exposes /metrics on port until ctx is cancelled.
func Serve(ctx context.Context, port int, g prometheus.Gatherer) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	go func() {
		slog.Info("metrics listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", err)
		}
	}()
}
