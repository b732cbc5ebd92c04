package cli

import "strings"

type cliOptions struct {
	addr    string
	item    string
	budget  string
	details string
	status  string
	kind    string
	limit   string
	answer  string
	inputs  string
}

func parseArgs(args []string) (cliOptions, []string) {
	opts := cliOptions{}
	positional := make([]string, 0, len(args))
	for _, arg := range args {
		switch {
		case strings.HasPrefix(arg, "--addr="):
			opts.addr = strings.TrimSpace(strings.TrimPrefix(arg, "--addr="))
		case strings.HasPrefix(arg, "--item="):
			opts.item = strings.TrimSpace(strings.TrimPrefix(arg, "--item="))
		case strings.HasPrefix(arg, "--budget="):
			opts.budget = strings.TrimSpace(strings.TrimPrefix(arg, "--budget="))
		case strings.HasPrefix(arg, "--details="):
			opts.details = strings.TrimSpace(strings.TrimPrefix(arg, "--details="))
		case strings.HasPrefix(arg, "--status="):
			opts.status = strings.TrimSpace(strings.TrimPrefix(arg, "--status="))
		case strings.HasPrefix(arg, "--kind="):
			opts.kind = strings.TrimSpace(strings.TrimPrefix(arg, "--kind="))
		case strings.HasPrefix(arg, "--limit="):
			opts.limit = strings.TrimSpace(strings.TrimPrefix(arg, "--limit="))
		case strings.HasPrefix(arg, "--answer="):
			opts.answer = strings.TrimSpace(strings.TrimPrefix(arg, "--answer="))
		case strings.HasPrefix(arg, "--inputs="):
			opts.inputs = strings.TrimSpace(strings.TrimPrefix(arg, "--inputs="))
		default:
			positional = append(positional, arg)
		}
	}
	return opts, positional
}
