// Command relayq-sweeper runs a Sweeper's reconciliation loop against a
// Redis-backed queue, independent of any monitor process. Running it as a
// separate process (rather than folding it into the monitor) means a
// queue keeps getting reconciled even while every monitor for it happens
// to be restarting.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relayq/relayq"
)

func main() {
	var (
		addr  = flag.String("redis-addr", envOr("RELAYQ_REDIS_ADDR", "127.0.0.1:6379"), "redis address")
		db    = flag.Int("redis-db", relayq.EnvInt("RELAYQ_REDIS_DB", 0), "redis database index")
		queue = flag.String("queue", "", "queue name (default: $RELAYQ_QUEUE or \"default\")")
		// Left at zero so an unset flag falls through to
		// SweeperConfigFromEnv's environment lookup, and from there to
		// SweeperConfig.setDefaults.
		interval = flag.Duration("interval", 0, "reconciliation interval (default: $RELAYQ_SWEEP_INTERVAL or 10s)")
		timeout  = flag.Duration("task-timeout", 0, "assumed timeout for tasks that didn't set their own (default: $RELAYQ_DEFAULT_TIMEOUT or 30s)")
		slack    = flag.Duration("slack", 0, "grace added to a task's timeout before R2 requeues it, to absorb clock skew (default: $RELAYQ_SWEEP_SLACK or 1s)")
	)
	flag.Parse()

	cfg := relayq.SweeperConfigFromEnv(relayq.SweeperConfig{
		Queue:       *queue,
		Interval:    *interval,
		TaskTimeout: *timeout,
		Slack:       *slack,
	})

	sweeper := relayq.NewSweeper(
		relayq.RedisClientOpt{Addr: *addr, DB: *db},
		cfg,
	)

	if err := sweeper.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "relayq-sweeper:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
