package redisstreams

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stockpilot/trigger-engine/runtime/queue"
	"github.com/stockpilot/trigger-engine/types"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	prefix := "trigeng:qtest:" + uuid.NewString()
	q, err := New(addr, WithPrefix(prefix), WithGroup("test"))
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		ctx := context.Background()
		_ = q.client.Del(ctx, q.triggerStream, q.dlqStream).Err()
		_ = q.Close()
	})
	return q
}

func testTask() queue.Task {
	return queue.Task{
		Trigger: types.Trigger{
			Kind:    types.KindStockoutAlert,
			Details: map[string]any{"item": "USB-C Cable"},
		},
		MaxAttempts: 3,
	}
}

func TestQueue_EnqueueClaimAck(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, testTask())
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a message id")
	}

	deliveries, err := q.Claim(ctx, "worker-1", time.Second, 4)
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if len(deliveries) != 1 {
		t.Fatalf("expected 1 delivery, got %d", len(deliveries))
	}
	task := deliveries[0].Task
	if task.Trigger.Kind != types.KindStockoutAlert {
		t.Fatalf("trigger lost in transit: %+v", task)
	}
	if task.TaskID == "" || task.Attempt != 1 {
		t.Fatalf("enqueue defaults missing: %+v", task)
	}

	if err := q.Ack(ctx, "worker-1", deliveries[0].ID); err != nil {
		t.Fatalf("ack failed: %v", err)
	}
	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats.StreamLength != 0 {
		t.Fatalf("acked message should be gone, stream length %d", stats.StreamLength)
	}
}

func TestQueue_EnqueueRequiresKind(t *testing.T) {
	q := newTestQueue(t)
	if _, err := q.Enqueue(context.Background(), queue.Task{}); err == nil {
		t.Fatal("expected error for a task without a trigger kind")
	}
}

func TestQueue_DeadLetterAndRequeue(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	if _, err := q.Enqueue(ctx, testTask()); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	deliveries, err := q.Claim(ctx, "worker-1", time.Second, 1)
	if err != nil || len(deliveries) != 1 {
		t.Fatalf("claim failed: %v (%d deliveries)", err, len(deliveries))
	}

	dlqID, err := q.DeadLetter(ctx, deliveries[0], "exhausted retries")
	if err != nil {
		t.Fatalf("dead letter failed: %v", err)
	}

	entries, err := q.ListDLQ(ctx, 10)
	if err != nil {
		t.Fatalf("list dlq failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != dlqID {
		t.Fatalf("dlq entry missing: %+v", entries)
	}
	if entries[0].Task.Metadata["dead_letter_reason"] != "exhausted retries" {
		t.Fatalf("reason not recorded: %+v", entries[0].Task.Metadata)
	}

	newID, err := q.RequeueDLQByID(ctx, dlqID, true)
	if err != nil {
		t.Fatalf("requeue from dlq failed: %v", err)
	}
	if newID == "" {
		t.Fatal("expected a new message id")
	}
	stats, _ := q.Stats(ctx)
	if stats.DLQLength != 0 || stats.StreamLength != 1 {
		t.Fatalf("requeue should drain the dlq: %+v", stats)
	}
}

func TestQueue_RequeueCarriesDelay(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	task := testTask()
	task.Attempt = 2
	if _, err := q.Requeue(ctx, task, "tool timeout", time.Minute); err != nil {
		t.Fatalf("requeue failed: %v", err)
	}

	deliveries, err := q.Claim(ctx, "worker-1", time.Second, 1)
	if err != nil || len(deliveries) != 1 {
		t.Fatalf("claim failed: %v (%d deliveries)", err, len(deliveries))
	}
	got := deliveries[0].Task
	if got.NotBefore == nil || !got.NotBefore.After(time.Now().UTC()) {
		t.Fatalf("delay not recorded: %+v", got.NotBefore)
	}
	if got.Metadata["requeue_reason"] != "tool timeout" {
		t.Fatalf("reason not recorded: %+v", got.Metadata)
	}
	_ = q.Ack(ctx, "worker-1", deliveries[0].ID)
}
