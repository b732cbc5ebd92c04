package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/stockpilot/trigger-engine/engine"
	"github.com/stockpilot/trigger-engine/internal/config"
	"github.com/stockpilot/trigger-engine/memory"
	memsqlite "github.com/stockpilot/trigger-engine/memory/sqlite"
	"github.com/stockpilot/trigger-engine/observe"
	obsotel "github.com/stockpilot/trigger-engine/observe/otel"
	observestore "github.com/stockpilot/trigger-engine/observe/store"
	tracesqlite "github.com/stockpilot/trigger-engine/observe/store/sqlite"
	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/state/factory"
	"github.com/stockpilot/trigger-engine/tools"
)

// app wires the stores, toolset, and engine from the environment. Every
// command builds one and closes it on exit.
type app struct {
	engine     *engine.Engine
	toolset    *tools.Set
	catalog    *tools.Catalog
	stateStore state.Store
	memStore   memory.Store
	traceStore observestore.Store
}

func newApp(ctx context.Context) (*app, error) {
	stateStore, err := factory.FromEnv(ctx)
	if err != nil {
		return nil, fmt.Errorf("state store: %w", err)
	}

	memStore, err := memsqlite.New(getenv("ENGINE_MEMORY_PATH", "./.trigger-engine/memory.db"))
	if err != nil {
		closeStore(stateStore)
		return nil, fmt.Errorf("memory store: %w", err)
	}

	traceStore, err := tracesqlite.New(getenv("ENGINE_TRACE_PATH", "./.trigger-engine/trace.db"))
	if err != nil {
		closeStore(stateStore)
		closeMemory(memStore)
		return nil, fmt.Errorf("trace store: %w", err)
	}

	catalog := tools.NewCatalog()
	toolset, err := tools.BuildSelection(tools.Deps{Catalog: catalog, Memory: memStore}, []string{"@all"})
	if err != nil {
		closeStore(stateStore)
		closeMemory(memStore)
		_ = traceStore.Close()
		return nil, fmt.Errorf("toolset: %w", err)
	}

	sinks := []observe.Sink{
		observe.LogSink{},
		observe.SinkFunc(func(ctx context.Context, event observe.Event) error {
			return traceStore.SaveEvent(ctx, event)
		}),
	}
	if config.ParseBoolString(os.Getenv("ENGINE_OTEL_ENABLED"), false) {
		// Spans go to whatever provider the process has registered
		// globally; without one this is a noop tracer.
		sinks = append(sinks, obsotel.NewSink(otel.GetTracerProvider()))
	}
	observer := observe.NewMultiSink(sinks...)

	eng, err := engine.New(toolset,
		engine.WithStore(stateStore),
		engine.WithMemory(memStore),
		engine.WithObserver(observer),
		engine.WithNamespace(getenv("ENGINE_NAMESPACE", "default")),
		engine.WithMaxIterations(config.ParseIntEnv("ENGINE_MAX_ITERATIONS", 12)),
		engine.WithApprovalThreshold(config.ParseFloatEnv("ENGINE_APPROVAL_LIMIT", 1000)),
	)
	if err != nil {
		closeStore(stateStore)
		closeMemory(memStore)
		_ = traceStore.Close()
		return nil, fmt.Errorf("engine: %w", err)
	}

	return &app{
		engine:     eng,
		toolset:    toolset,
		catalog:    catalog,
		stateStore: stateStore,
		memStore:   memStore,
		traceStore: traceStore,
	}, nil
}

func (a *app) close() {
	closeStore(a.stateStore)
	closeMemory(a.memStore)
	if a.traceStore != nil {
		if err := a.traceStore.Close(); err != nil {
			log.Printf("trace store close failed: %v", err)
		}
	}
}

func closeStore(store state.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("state store close failed: %v", err)
	}
}

func closeMemory(store memory.Store) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.Printf("memory store close failed: %v", err)
	}
}

func getenv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
