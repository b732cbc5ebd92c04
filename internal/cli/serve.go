package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/stockpilot/trigger-engine/internal/config"
	cronpkg "github.com/stockpilot/trigger-engine/runtime/cron"
	queuepkg "github.com/stockpilot/trigger-engine/runtime/queue"
	"github.com/stockpilot/trigger-engine/runtime/queue/redisstreams"
	"github.com/stockpilot/trigger-engine/server"
	"github.com/stockpilot/trigger-engine/types"
)

func runServe(ctx context.Context, args []string) {
	opts, _ := parseArgs(args)

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	scheduler := cronpkg.New(func(cfg cronpkg.JobConfig) (string, error) {
		t := types.Trigger{
			Kind:          types.TriggerKind(cfg.Kind),
			TriggeredBy:   "scheduler",
			Details:       cfg.Details,
			ItemsAffected: cfg.Items,
			BudgetLimit:   cfg.Budget,
		}
		run, err := app.engine.Run(ctx, t)
		if err != nil && run.RunID == "" {
			return "", err
		}
		return fmt.Sprintf("run %s %s", run.RunID, run.Status), nil
	})
	if err := addDefaultJobs(scheduler); err != nil {
		log.Fatalf("scheduler setup failed: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	triggerQueue, worker := startQueueWorker(ctx, app)
	if triggerQueue != nil {
		defer func() {
			worker.Stop()
			if err := triggerQueue.Close(); err != nil {
				log.Printf("queue close failed: %v", err)
			}
		}()
	}

	srv := server.NewServer(server.Config{
		Addr:       opts.addr,
		Engine:     app.engine,
		Toolset:    app.toolset,
		MemStore:   app.memStore,
		TraceStore: app.traceStore,
		Scheduler:  scheduler,
		Queue:      triggerQueue,
		APIKey:     strings.TrimSpace(os.Getenv("ENGINE_API_KEY")),
	})
	defer func() {
		if err := srv.Close(); err != nil {
			log.Printf("server close failed: %v", err)
		}
	}()

	log.Printf("trigger engine listening")
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server error: %v", err)
	}
}

// startQueueWorker sets up async trigger intake when a redis address is
// configured and queueing is enabled. Returns nils when disabled.
func startQueueWorker(ctx context.Context, app *app) (queuepkg.Queue, *queuepkg.Worker) {
	if !config.ParseBoolString(os.Getenv("ENGINE_QUEUE_ENABLED"), false) {
		return nil, nil
	}
	addr := strings.TrimSpace(os.Getenv("ENGINE_REDIS_ADDR"))
	if addr == "" {
		log.Printf("queue enabled but ENGINE_REDIS_ADDR is not set; skipping")
		return nil, nil
	}
	triggerQueue, err := redisstreams.New(addr,
		redisstreams.WithPassword(os.Getenv("ENGINE_REDIS_PASSWORD")),
		redisstreams.WithDB(config.ParseIntEnv("ENGINE_REDIS_DB", 0)),
	)
	if err != nil {
		log.Fatalf("queue setup failed: %v", err)
	}
	worker, err := queuepkg.NewWorker(triggerQueue, func(ctx context.Context, task queuepkg.Task) (string, error) {
		run, err := app.engine.Run(ctx, task.Trigger)
		if err != nil && run.RunID == "" {
			return "", err
		}
		return fmt.Sprintf("run %s %s", run.RunID, run.Status), nil
	})
	if err != nil {
		log.Fatalf("queue worker setup failed: %v", err)
	}
	if err := worker.Start(ctx); err != nil {
		log.Fatalf("queue worker start failed: %v", err)
	}
	return triggerQueue, worker
}

// addDefaultJobs installs the standing schedules: a daily stock sweep and a
// weekly demand forecast.
func addDefaultJobs(scheduler *cronpkg.Scheduler) error {
	if err := scheduler.Add("daily-stock-check", "0 6 * * *", cronpkg.JobConfig{
		Kind: string(types.KindScheduledCheck),
	}); err != nil {
		return err
	}
	return scheduler.Add("weekly-forecast", "0 7 * * 1", cronpkg.JobConfig{
		Kind:  string(types.KindForecastRequest),
		Items: []string{"USB-C Cable"},
	})
}
