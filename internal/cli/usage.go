package cli

import "fmt"

func printUsage() {
	fmt.Print(`trigger-engine - trigger processing for inventory operations

Usage:
  trigger-engine serve [--addr=HOST:PORT]
  trigger-engine fire <kind> [--item=NAME] [--budget=AMOUNT] [--details=JSON]
  trigger-engine runs [--status=STATUS] [--kind=KIND] [--limit=N]
  trigger-engine show <run-id>
  trigger-engine resume <run-id> <approve|deny|edit|answer> [--answer=TEXT] [--inputs=JSON]
  trigger-engine cancel <run-id>

Environment:
  ENGINE_STATE_BACKEND    sqlite | redis | hybrid (default sqlite)
  ENGINE_SQLITE_PATH      sqlite state path (default ./.trigger-engine/state.db)
  ENGINE_REDIS_ADDR       redis address for redis/hybrid backends
  ENGINE_NAMESPACE        run namespace (default "default")
  ENGINE_MAX_ITERATIONS   decision loop budget (default 12)
  ENGINE_APPROVAL_LIMIT   purchase value requiring approval (default 1000)
  ENGINE_API_KEY          API key for non-local HTTP access
  ENGINE_QUEUE_ENABLED    consume triggers from the redis stream queue
  ENGINE_OTEL_ENABLED     emit engine events as OpenTelemetry spans
`)
}
