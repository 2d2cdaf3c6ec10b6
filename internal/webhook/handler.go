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

// Package webhook handles study notifications. When a source has new data
// (a push hook, a scheduler tick, a new meetup event), the caller POSTs to
// /webhook/{backend} and the handler queues the studies of that backend
// for the workers.
package webhook

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/bcem/gelk/internal/config"
	"github.com/bcem/gelk/internal/queue"
	"github.com/bcem/gelk/internal/study"
)

// TokenHeader carries the shared secret when one is configured.
const TokenHeader = "X-Gelk-Token"

const maxBodyBytes = 1 << 20

// Notification is the optional request body. Without studies, every study
// configured for the backend is queued.
type Notification struct {
	Studies []string `json:"studies"`
}

// Publisher queues study tasks. Satisfied by queue.Queue.
type Publisher interface {
	Publish(ctx context.Context, t queue.Task) (string, error)
}

// Pinger reports whether the queue is reachable. Satisfied by queue.Queue.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HandlerConfig holds the handler dependencies.
type HandlerConfig struct {
	Logger    *slog.Logger
	Config    *config.Config
	Publisher Publisher
	Pinger    Pinger
	// Token, when set, must be sent in TokenHeader.
	Token string
}

// Handler processes study notifications.
type Handler struct {
	logger    *slog.Logger
	cfg       *config.Config
	publisher Publisher
	pinger    Pinger
	token     string
}

// NewHandler creates a study notification handler.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		cfg:       cfg.Config,
		publisher: cfg.Publisher,
		pinger:    cfg.Pinger,
		token:     cfg.Token,
	}
}

// Routes returns the handler's endpoints.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook/{backend}", h.ServeNotification)
	mux.HandleFunc("GET /health", h.ServeHealth)
	return mux
}

// ServeNotification queues the requested studies and answers 202 with the
// task ids. Nothing is queued unless every requested study is valid. When
// the queue fails midway it answers 503 with the ids queued so far.
func (h *Handler) ServeNotification(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		h.logger.Warn("study notification with bad token", "remote", r.RemoteAddr)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	backend, err := h.cfg.Backend(r.PathValue("backend"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	var n Notification
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &n); err != nil {
			http.Error(w, "body must be a JSON object", http.StatusBadRequest)
			return
		}
	}

	tasks, err := Tasks(backend, n.Studies)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ids := make([]string, 0, len(tasks))
	for _, t := range tasks {
		id, err := h.publisher.Publish(r.Context(), t)
		if err != nil {
			h.logger.Error("queue study failed",
				"backend", t.Backend,
				"study", t.Study,
				"error", err,
			)
			// Tasks queued before the failure stay queued; report them so
			// the caller only retries the rest.
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"backend": backend.Kind.String(),
				"tasks":   ids,
				"error":   "study queue unavailable",
			})
			return
		}
		ids = append(ids, id)
	}

	h.logger.Info("study notification queued",
		"backend", backend.Kind.String(),
		"tasks", len(ids),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"backend": backend.Kind.String(),
		"tasks":   ids,
	})
}

// ServeHealth reports whether the study queue is reachable.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			http.Error(w, "redis unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handler) authorized(r *http.Request) bool {
	if h.token == "" {
		return true
	}
	got := r.Header.Get(TokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.token)) == 1
}

// Tasks builds the study tasks of a notification. An empty list selects
// the configured studies of the backend.
func Tasks(b config.BackendConfig, names []string) ([]queue.Task, error) {
	configs := b.Studies
	if len(names) > 0 {
		configs = make([]config.StudyConfig, 0, len(names))
		for _, name := range names {
			configs = append(configs, b.Study(name))
		}
	}

	tasks := make([]queue.Task, 0, len(configs))
	for _, sc := range configs {
		if _, err := study.New(sc.Name, sc.Params, study.Deps{}); err != nil {
			return nil, err
		}
		tasks = append(tasks, queue.Task{
			Study:   sc.Name,
			Backend: b.Kind.String(),
			Params:  sc.Params,
		})
	}
	return tasks, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Serve starts the webhook HTTP server on the given port.
// It binds the port immediately and signals readiness via the returned channel
// before starting to accept connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	server := &http.Server{
		Handler: handler.Routes(),
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind webhook port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("webhook server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("webhook server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("webhook server error", "error", err)
		}
	}()

	return ready, nil
}
