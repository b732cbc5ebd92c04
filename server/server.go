// Package server exposes the trigger engine over HTTP: trigger intake, run
// inspection, interrupt responses, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stockpilot/trigger-engine/engine"
	"github.com/stockpilot/trigger-engine/memory"
	"github.com/stockpilot/trigger-engine/observe"
	observestore "github.com/stockpilot/trigger-engine/observe/store"
	cronpkg "github.com/stockpilot/trigger-engine/runtime/cron"
	queuepkg "github.com/stockpilot/trigger-engine/runtime/queue"
	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/tools"
	"github.com/stockpilot/trigger-engine/types"
)

type Config struct {
	Addr       string
	Engine     *engine.Engine
	Toolset    *tools.Set
	MemStore   memory.Store
	TraceStore observestore.Store
	Scheduler  *cronpkg.Scheduler
	Queue      queuepkg.Queue

	// APIKey, when set, is required on every request. When empty, only
	// loopback requests are served.
	APIKey string
}

type Server struct {
	cfg  Config
	mux  *http.ServeMux
	http *http.Server
	once sync.Once
}

func NewServer(cfg Config) *Server {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:7070"
	}
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
	}
	s.registerRoutes()
	s.http = &http.Server{Addr: cfg.Addr, Handler: s.mux}
	return s
}

func (s *Server) Handler() http.Handler {
	if s == nil {
		return http.NotFoundHandler()
	}
	return s.mux
}

func (s *Server) ListenAndServe(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server is nil")
	}
	errCh := make(chan error, 1)
	go func() {
		err := s.http.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Println("shutdown signal received, stopping server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			log.Printf("http shutdown error: %v", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) Close() error {
	if s == nil {
		return nil
	}
	var outErr error
	s.once.Do(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		outErr = s.http.Shutdown(shutdownCtx)
	})
	return outErr
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/api/v1/triggers", s.require(s.handleTriggers))
	s.mux.HandleFunc("/api/v1/runs", s.require(s.handleRuns))
	s.mux.HandleFunc("/api/v1/runs/", s.require(s.handleRunSubresources))
	s.mux.HandleFunc("/api/v1/interrupts", s.require(s.handleInterrupts))
	s.mux.HandleFunc("/api/v1/metrics/summary", s.require(s.handleMetrics))
	s.mux.HandleFunc("/api/v1/tools", s.require(s.handleTools))
	s.mux.HandleFunc("/api/v1/memory/", s.require(s.handleMemory))
	s.mux.HandleFunc("/api/v1/queue/triggers", s.require(s.handleQueueTriggers))
	s.mux.HandleFunc("/api/v1/queue/stats", s.require(s.handleQueueStats))
	s.mux.HandleFunc("/api/v1/queue/dlq", s.require(s.handleQueueDLQ))
	s.mux.HandleFunc("/api/v1/cron/jobs", s.require(s.handleCronJobs))
	s.mux.HandleFunc("/api/v1/cron/jobs/", s.require(s.handleCronJobByName))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

func (s *Server) require(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.authenticate(r); err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		h(w, r)
	}
}

func (s *Server) authenticate(r *http.Request) error {
	if s.cfg.APIKey == "" {
		if isLocalRequest(r.RemoteAddr) {
			return nil
		}
		return fmt.Errorf("remote access requires an API key")
	}
	if extractAPIKey(r) != s.cfg.APIKey {
		return fmt.Errorf("invalid API key")
	}
	return nil
}

func extractAPIKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	if authz := strings.TrimSpace(r.Header.Get("Authorization")); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func isLocalRequest(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip != nil {
		return ip.IsLoopback()
	}
	return host == "localhost"
}

// handleTriggers accepts a trigger and runs it to completion or suspension.
func (s *Server) handleTriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	var t types.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid trigger payload: %w", err))
		return
	}
	run, err := s.cfg.Engine.Run(r.Context(), t)
	if err != nil {
		var verr *types.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		// A run that started but ended failed is still a result.
		if run.RunID != "" {
			writeJSON(w, http.StatusOK, run)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	query := state.ListRunsQuery{
		Namespace: strings.TrimSpace(r.URL.Query().Get("namespace")),
		Status:    types.RunStatus(strings.TrimSpace(r.URL.Query().Get("status"))),
		Kind:      types.TriggerKind(strings.TrimSpace(r.URL.Query().Get("kind"))),
		Limit:     parseInt(r.URL.Query().Get("limit"), 100),
		Offset:    parseInt(r.URL.Query().Get("offset"), 0),
	}
	runs, err := s.cfg.Engine.List(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleRunSubresources(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"))
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("run id is required"))
		return
	}
	runID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		run, err := s.cfg.Engine.Get(r.Context(), runID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)
		return
	}

	switch parts[1] {
	case "resume":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		var resp types.HumanResponse
		if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid response payload: %w", err))
			return
		}
		run, err := s.cfg.Engine.Resume(r.Context(), runID, resp)
		if err != nil {
			if run.RunID != "" && run.Status == types.StatusFailed {
				writeJSON(w, http.StatusOK, run)
				return
			}
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)

	case "cancel":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		run, err := s.cfg.Engine.Cancel(r.Context(), runID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, run)

	case "events":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		if s.cfg.TraceStore == nil {
			writeJSON(w, http.StatusOK, []observe.Event{})
			return
		}
		events, err := s.cfg.TraceStore.ListEventsByRun(r.Context(), runID, observestore.ListQuery{
			Limit:  parseInt(r.URL.Query().Get("limit"), 500),
			Offset: parseInt(r.URL.Query().Get("offset"), 0),
		})
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, events)

	case "transcript":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		run, err := s.cfg.Engine.Get(r.Context(), runID)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(run.Transcript()))

	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unsupported run endpoint"))
	}
}

// handleInterrupts lists runs currently waiting on a human.
func (s *Server) handleInterrupts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	runs, err := s.cfg.Engine.List(r.Context(), state.ListRunsQuery{
		Namespace: strings.TrimSpace(r.URL.Query().Get("namespace")),
		Status:    types.StatusWaitingForHuman,
		Limit:     parseInt(r.URL.Query().Get("limit"), 100),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	// An interrupt waiting past this age is flagged stale. It is never
	// auto-resolved; operators decide.
	staleAfter := time.Hour
	if raw := strings.TrimSpace(r.URL.Query().Get("stale_after")); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid stale_after: %w", err))
			return
		}
		staleAfter = d
	}

	type pending struct {
		RunID       string                  `json:"runId"`
		TriggerKind types.TriggerKind       `json:"triggerKind"`
		Tier        types.UrgencyTier       `json:"tier"`
		Priority    types.Priority          `json:"priority"`
		Interrupt   *types.PendingInterrupt `json:"interrupt"`
		Stale       bool                    `json:"stale"`
	}
	now := time.Now().UTC()
	out := make([]pending, 0, len(runs))
	for _, run := range runs {
		if run.Interrupt == nil {
			continue
		}
		out = append(out, pending{
			RunID:       run.RunID,
			TriggerKind: run.Trigger.Kind,
			Tier:        run.Classification.Tier,
			Priority:    run.Classification.Priority,
			Interrupt:   run.Interrupt,
			Stale:       staleAfter > 0 && now.Sub(run.Interrupt.CreatedAt) > staleAfter,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.TraceStore == nil {
		writeJSON(w, http.StatusOK, observestore.MetricsSummary{})
		return
	}
	query := observestore.MetricsQuery{}
	if raw := strings.TrimSpace(r.URL.Query().Get("since")); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid since timestamp: %w", err))
			return
		}
		query.Since = &since
	}
	summary, err := s.cfg.TraceStore.AggregateMetrics(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Toolset == nil {
		writeJSON(w, http.StatusOK, []tools.Definition{})
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Toolset.Definitions())
}

// handleMemory lists learned preferences in a namespace.
func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.MemStore == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("memory store not configured"))
		return
	}
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/v1/memory/"))
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, fmt.Errorf("namespace is required"))
		return
	}
	entries, err := s.cfg.MemStore.List(r.Context(), parts[0])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// handleQueueTriggers enqueues a trigger for async processing instead of
// running it inline.
func (s *Server) handleQueueTriggers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Queue == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("queue not configured"))
		return
	}
	var t types.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid trigger payload: %w", err))
		return
	}
	id, err := s.cfg.Queue.Enqueue(r.Context(), queuepkg.Task{Trigger: t})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"messageId": id})
}

func (s *Server) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Queue == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("queue not configured"))
		return
	}
	stats, err := s.cfg.Queue.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleQueueDLQ(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.cfg.Queue == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("queue not configured"))
		return
	}
	entries, err := s.cfg.Queue.ListDLQ(r.Context(), parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCronJobs(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scheduler == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("scheduler not configured"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.cfg.Scheduler.List())
	case http.MethodPost:
		var req struct {
			Name     string            `json:"name"`
			CronExpr string            `json:"cronExpr"`
			Config   cronpkg.JobConfig `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := s.cfg.Scheduler.Add(req.Name, req.CronExpr, req.Config); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		job, _ := s.cfg.Scheduler.Get(req.Name)
		writeJSON(w, http.StatusCreated, job)
	default:
		writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
	}
}

func (s *Server) handleCronJobByName(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scheduler == nil {
		writeError(w, http.StatusNotImplemented, fmt.Errorf("scheduler not configured"))
		return
	}
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/api/v1/cron/jobs/"))
	if len(parts) == 0 {
		writeError(w, http.StatusNotFound, fmt.Errorf("job name is required"))
		return
	}
	name := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			job, ok := s.cfg.Scheduler.Get(name)
			if !ok {
				writeError(w, http.StatusNotFound, fmt.Errorf("job %q not found", name))
				return
			}
			writeJSON(w, http.StatusOK, job)
		case http.MethodDelete:
			if err := s.cfg.Scheduler.Remove(name); err != nil {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		}
		return
	}

	switch parts[1] {
	case "trigger":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		output, err := s.cfg.Scheduler.Trigger(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"output": output})
	case "history":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
			return
		}
		history, err := s.cfg.Scheduler.History(name, parseInt(r.URL.Query().Get("limit"), 20))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, history)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unsupported job endpoint"))
	}
}

// statusFor maps engine errors to HTTP statuses.
func statusFor(err error) int {
	var verr *types.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest
	}
	var cerr *types.ConflictError
	if errors.As(err, &cerr) {
		return http.StatusConflict
	}
	if errors.Is(err, state.ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	parts := strings.Split(trimmed, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

func parseInt(raw string, fallback int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, map[string]any{"error": msg})
}
