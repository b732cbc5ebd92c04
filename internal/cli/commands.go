package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/stockpilot/trigger-engine/state"
	"github.com/stockpilot/trigger-engine/types"
)

func runFire(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "fire requires a trigger kind")
		printUsage()
		return
	}

	t := types.Trigger{
		Kind:        types.TriggerKind(strings.TrimSpace(positional[0])),
		TriggeredBy: "cli",
	}
	if opts.item != "" {
		t.Details = map[string]any{"item": opts.item}
	}
	if opts.budget != "" {
		budget, err := strconv.ParseFloat(opts.budget, 64)
		if err != nil {
			log.Fatalf("invalid budget %q: %v", opts.budget, err)
		}
		t.BudgetLimit = budget
	}
	if opts.details != "" {
		details := map[string]any{}
		if err := json.Unmarshal([]byte(opts.details), &details); err != nil {
			log.Fatalf("invalid details JSON: %v", err)
		}
		if t.Details == nil {
			t.Details = details
		} else {
			for k, v := range details {
				t.Details[k] = v
			}
		}
	}

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	run, err := app.engine.Run(ctx, t)
	if err != nil && run.RunID == "" {
		log.Fatalf("run failed: %v", err)
	}
	printRun(run)
}

func listRuns(ctx context.Context, args []string) {
	opts, _ := parseArgs(args)

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	limit := 20
	if opts.limit != "" {
		if n, err := strconv.Atoi(opts.limit); err == nil && n > 0 {
			limit = n
		}
	}
	runs, err := app.engine.List(ctx, state.ListRunsQuery{
		Status: types.RunStatus(opts.status),
		Kind:   types.TriggerKind(opts.kind),
		Limit:  limit,
	})
	if err != nil {
		log.Fatalf("list failed: %v", err)
	}
	if len(runs) == 0 {
		fmt.Println("no runs")
		return
	}
	for _, run := range runs {
		line := fmt.Sprintf("%s  %-18s %-18s %s", run.RunID, run.Trigger.Kind, run.Status, run.UpdatedAt.Format("2006-01-02 15:04:05"))
		if run.Interrupt != nil {
			line += "  [" + string(run.Interrupt.Kind) + " pending]"
		}
		fmt.Println(line)
	}
}

func showRun(ctx context.Context, args []string) {
	_, positional := parseArgs(args)
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "show requires a run id")
		return
	}

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	run, err := app.engine.Get(ctx, positional[0])
	if err != nil {
		log.Fatalf("load failed: %v", err)
	}
	printRun(run)
}

func resumeRun(ctx context.Context, args []string) {
	opts, positional := parseArgs(args)
	if len(positional) < 2 {
		fmt.Fprintln(os.Stderr, "resume requires a run id and a response type")
		printUsage()
		return
	}

	resp := types.HumanResponse{
		Type:        types.ResponseType(strings.TrimSpace(positional[1])),
		RespondedBy: "cli",
		Answer:      opts.answer,
	}
	if opts.inputs != "" {
		resp.EditedInputs = json.RawMessage(opts.inputs)
	}

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	run, err := app.engine.Resume(ctx, positional[0], resp)
	if err != nil && run.RunID == "" {
		log.Fatalf("resume failed: %v", err)
	}
	printRun(run)
}

func cancelRun(ctx context.Context, args []string) {
	_, positional := parseArgs(args)
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "cancel requires a run id")
		return
	}

	app, err := newApp(ctx)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer app.close()

	run, err := app.engine.Cancel(ctx, positional[0])
	if err != nil {
		log.Fatalf("cancel failed: %v", err)
	}
	printRun(run)
}

func printRun(run types.RunState) {
	fmt.Printf("run %s\n", run.RunID)
	fmt.Printf("  trigger:  %s (by %s)\n", run.Trigger.Kind, run.Trigger.TriggeredBy)
	fmt.Printf("  triage:   %s / %s\n", run.Classification.Tier, run.Classification.Priority)
	fmt.Printf("  status:   %s\n", run.Status)
	if run.Rationale != "" {
		fmt.Printf("  outcome:  %s\n", run.Rationale)
	}
	if run.Interrupt != nil {
		fmt.Printf("  waiting:  %s: %s\n", run.Interrupt.Kind, run.Interrupt.Reason)
		if run.Interrupt.EstimatedValue > 0 {
			fmt.Printf("  value:    $%.2f\n", run.Interrupt.EstimatedValue)
		}
	}
	if transcript := run.Transcript(); transcript != "" {
		fmt.Println("  steps:")
		for _, line := range strings.Split(strings.TrimRight(transcript, "\n"), "\n") {
			fmt.Println("    " + line)
		}
	}
}
