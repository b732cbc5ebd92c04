// Package queue defines async trigger intake. Producers enqueue triggers;
// a worker claims them and feeds them to the engine.
package queue

import (
	"context"
	"time"

	"github.com/stockpilot/trigger-engine/types"
)

type Task struct {
	TaskID      string         `json:"taskId"`
	Trigger     types.Trigger  `json:"trigger"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"maxAttempts"`
	NotBefore   *time.Time     `json:"notBefore,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	EnqueuedAt  time.Time      `json:"enqueuedAt"`
}

type Delivery struct {
	ID       string    `json:"id"`
	Stream   string    `json:"stream"`
	Task     Task      `json:"task"`
	Received time.Time `json:"received"`
}

type Stats struct {
	StreamLength int64 `json:"streamLength"`
	DLQLength    int64 `json:"dlqLength"`
	Pending      int64 `json:"pending"`
}

type Queue interface {
	Enqueue(ctx context.Context, task Task) (string, error)
	Claim(ctx context.Context, consumer string, block time.Duration, count int) ([]Delivery, error)
	Ack(ctx context.Context, consumer string, messageIDs ...string) error
	Nack(ctx context.Context, consumer string, deliveries []Delivery, reason string) error
	Requeue(ctx context.Context, task Task, reason string, delay time.Duration) (string, error)
	DeadLetter(ctx context.Context, delivery Delivery, reason string) (string, error)
	ListDLQ(ctx context.Context, limit int) ([]Delivery, error)
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
