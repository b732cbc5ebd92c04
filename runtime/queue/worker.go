package queue

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ProcessFunc handles one claimed trigger task. The returned string is a
// short description of the run it started.
type ProcessFunc func(ctx context.Context, task Task) (string, error)

// Worker claims queued triggers and processes them one batch at a time.
// Failed tasks are retried with backoff until MaxAttempts, then moved to
// the dead letter stream.
type Worker struct {
	queue    Queue
	process  ProcessFunc
	consumer string
	batch    int
	block    time.Duration
	backoff  time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type WorkerOption func(*Worker)

func WithConsumer(name string) WorkerOption {
	return func(w *Worker) {
		if strings.TrimSpace(name) != "" {
			w.consumer = strings.TrimSpace(name)
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batch = n
		}
	}
}

func WithRetryBackoff(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.backoff = d
		}
	}
}

func NewWorker(q Queue, process ProcessFunc, opts ...WorkerOption) (*Worker, error) {
	if q == nil {
		return nil, fmt.Errorf("queue is required")
	}
	if process == nil {
		return nil, fmt.Errorf("process func is required")
	}
	w := &Worker{
		queue:    q,
		process:  process,
		consumer: "engine-" + uuid.NewString(),
		batch:    4,
		block:    2 * time.Second,
		backoff:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins claiming tasks. Non-blocking; the loop stops when ctx is
// cancelled or Stop is called.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.started = true
	w.cancel = cancel
	w.done = make(chan struct{})
	done := w.done
	w.mu.Unlock()

	go func() {
		defer close(done)
		w.loop(runCtx)
	}()
	return nil
}

func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	w.started = false
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	cancel()
	<-done
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		deliveries, err := w.queue.Claim(ctx, w.consumer, w.block, w.batch)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[queue] claim failed: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.backoff):
			}
			continue
		}
		for _, delivery := range deliveries {
			w.handle(ctx, delivery)
		}
	}
}

func (w *Worker) handle(ctx context.Context, delivery Delivery) {
	task := delivery.Task

	// Delayed tasks go back on the stream until their time comes.
	if task.NotBefore != nil {
		if wait := time.Until(*task.NotBefore); wait > 0 {
			if _, err := w.queue.Requeue(ctx, task, "not yet due", wait); err != nil {
				log.Printf("[queue] requeue of delayed task %s failed: %v", task.TaskID, err)
				return
			}
			_ = w.queue.Ack(ctx, w.consumer, delivery.ID)
			return
		}
	}

	output, err := w.process(ctx, task)
	if err == nil {
		if ackErr := w.queue.Ack(ctx, w.consumer, delivery.ID); ackErr != nil {
			log.Printf("[queue] ack of task %s failed: %v", task.TaskID, ackErr)
		}
		if output != "" {
			log.Printf("[queue] task %s processed: %s", task.TaskID, output)
		}
		return
	}

	log.Printf("[queue] task %s attempt %d failed: %v", task.TaskID, task.Attempt, err)
	if task.Attempt >= task.MaxAttempts {
		if _, dlqErr := w.queue.DeadLetter(ctx, delivery, err.Error()); dlqErr != nil {
			log.Printf("[queue] dead letter of task %s failed: %v", task.TaskID, dlqErr)
		}
		return
	}
	task.Attempt++
	if _, reqErr := w.queue.Requeue(ctx, task, err.Error(), w.backoff); reqErr != nil {
		log.Printf("[queue] requeue of task %s failed: %v", task.TaskID, reqErr)
		return
	}
	_ = w.queue.Ack(ctx, w.consumer, delivery.ID)
}
