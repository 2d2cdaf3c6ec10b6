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

// Package queue carries study tasks through a Redis list so studies can
// run on separate workers, one study per task.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/gelk/internal/study"
)

// TaskName identifies study tasks in the message envelope.
const TaskName = "gelk.study"

// ErrMalformed is returned for queue entries that are not study tasks.
var ErrMalformed = errors.New("malformed task message")

// Task asks a worker to run one study against one backend.
type Task struct {
	ID         string       `json:"id"`
	Study      string       `json:"study"`
	Backend    string       `json:"backend"`
	Params     study.Params `json:"params"`
	EnqueuedAt time.Time    `json:"enqueued_at"`
}

// message wraps a task for Redis transport.
type message struct {
	Task            string            `json:"task"`
	Body            string            `json:"body"`
	ContentEncoding string            `json:"content-encoding"`
	ContentType     string            `json:"content-type"`
	Headers         map[string]string `json:"headers"`
}

// Queue publishes and consumes study tasks on a single Redis list.
type Queue struct {
	rdb       *redis.Client
	queueName string
	logger    *slog.Logger
}

// New creates a queue bound to queueName.
func New(rdb *redis.Client, queueName string, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{rdb: rdb, queueName: queueName, logger: logger}
}

// Publish assigns the task an id and pushes it to the queue.
func (q *Queue) Publish(ctx context.Context, t Task) (string, error) {
	t.ID = uuid.New().String()
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now().UTC()
	}

	body, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal study task: %w", err)
	}
	msg := message{
		Task:            TaskName,
		Body:            string(body),
		ContentEncoding: "utf-8",
		ContentType:     "application/json",
		Headers: map[string]string{
			"id":      t.ID,
			"study":   t.Study,
			"backend": t.Backend,
		},
	}
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal task message: %w", err)
	}

	// LPUSH + BRPOP keeps tasks in FIFO order.
	if err := q.rdb.LPush(ctx, q.queueName, string(msgJSON)).Err(); err != nil {
		return "", fmt.Errorf("redis LPUSH: %w", err)
	}

	q.logger.Info("published study task",
		"task_id", t.ID,
		"study", t.Study,
		"backend", t.Backend,
		"queue", q.queueName,
	)
	return t.ID, nil
}

// Handler runs a consumed task.
type Handler func(ctx context.Context, t Task) error

// Consume pops tasks until ctx is cancelled. Handler errors are logged and
// the task is dropped; failed studies are rerun by enqueueing them again.
func (q *Queue) Consume(ctx context.Context, wait time.Duration, h Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		t, err := q.Pop(ctx, wait)
		if errors.Is(err, ErrMalformed) {
			q.logger.Warn("dropping queue entry", "queue", q.queueName, "error", err)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		if t == nil {
			continue
		}
		if err := h(ctx, *t); err != nil {
			q.logger.Error("study task failed",
				"task_id", t.ID,
				"study", t.Study,
				"backend", t.Backend,
				"error", err,
			)
		}
	}
}

// Pop waits up to wait for the next task. It returns nil when none arrived.
func (q *Queue) Pop(ctx context.Context, wait time.Duration) (*Task, error) {
	res, err := q.rdb.BRPop(ctx, wait, q.queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis BRPOP: %w", err)
	}
	// res is [queue, value].
	return decode(res[1])
}

func decode(raw string) (*Task, error) {
	var msg message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if msg.Task != TaskName {
		return nil, fmt.Errorf("%w: unexpected task %q", ErrMalformed, msg.Task)
	}
	var t Task
	if err := json.Unmarshal([]byte(msg.Body), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &t, nil
}

// Ping checks the Redis connection.
func (q *Queue) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return q.rdb.Ping(ctx).Err()
}
