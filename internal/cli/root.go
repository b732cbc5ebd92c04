// Package cli implements the trigger-engine command line interface.
package cli

import (
	"context"
	"strings"
)

func Run(ctx context.Context, args []string) {
	if len(args) < 1 {
		printUsage()
		return
	}

	switch strings.TrimSpace(args[0]) {
	case "serve":
		runServe(ctx, args[1:])
	case "fire":
		runFire(ctx, args[1:])
	case "runs":
		listRuns(ctx, args[1:])
	case "show":
		showRun(ctx, args[1:])
	case "resume":
		resumeRun(ctx, args[1:])
	case "cancel":
		cancelRun(ctx, args[1:])
	case "help", "-h", "--help":
		printUsage()
	default:
		printUsage()
	}
}
