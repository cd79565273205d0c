// Command relayq-monitor runs a Monitor against a Redis-backed queue. It
// doubles as its own child process: when spawned by itself with
// RELAYQ_CHILD_MODE set, main hands off to relayq.MaybeRunChild before any
// flag parsing happens, since the child never needs (or should try to
// parse) the monitor's own flags.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/relayq/relayq"
)

func main() {
	registry := buildRegistry()

	// Must run before flag.Parse: a re-exec'd child is launched without
	// any of the monitor's arguments, so flag parsing would succeed with
	// defaults and the process would silently behave like a second monitor.
	if relayq.MaybeRunChild(registry) {
		return // unreachable: MaybeRunChild exits the process itself
	}

	var (
		addr  = flag.String("redis-addr", envOr("RELAYQ_REDIS_ADDR", "127.0.0.1:6379"), "redis address")
		db    = flag.Int("redis-db", relayq.EnvInt("RELAYQ_REDIS_DB", 0), "redis database index")
		queue = flag.String("queue", "", "queue name (default: $RELAYQ_QUEUE or \"default\")")
		mode  = flag.String("mode", "fork", "supervision mode: fork or prefork")
		// Left at zero so an unset flag falls through to ConfigFromEnv's
		// environment lookup, and from there to Config.setDefaults.
		dequeueWait = flag.Duration("dequeue-wait", 0, "how long to block waiting for a task (default: $RELAYQ_DEQUEUE_WAIT or 5s)")
		killGrace   = flag.Duration("kill-grace", 0, "grace period between SIGTERM and SIGKILL (default: $RELAYQ_KILL_GRACE or 10s)")
		defTimeout  = flag.Duration("default-timeout", 0, "default per-task execution timeout (default: $RELAYQ_DEFAULT_TIMEOUT or 30s)")
	)
	flag.Parse()

	m := relayq.ModeForkPerTask
	if *mode == "prefork" {
		m = relayq.ModePrefork
	}

	cfg := relayq.ConfigFromEnv(relayq.Config{
		Queue:          *queue,
		Mode:           m,
		DequeueWait:    *dequeueWait,
		KillGrace:      *killGrace,
		DefaultTimeout: *defTimeout,
		SuccessHandler: func(task *relayq.ResultTask) {
			fmt.Fprintf(os.Stdout, "task %d (%s) succeeded\n", task.ID(), task.Type())
		},
		ErrorHandler: func(task *relayq.ResultTask, killedBy string, err error) {
			if killedBy != "" {
				fmt.Fprintf(os.Stderr, "task %d (%s) killed by %s\n", task.ID(), task.Type(), killedBy)
				return
			}
			fmt.Fprintf(os.Stderr, "task %d (%s) failed: %v\n", task.ID(), task.Type(), err)
		},
	})

	monitor := relayq.NewMonitor(
		relayq.RedisClientOpt{Addr: *addr, DB: *db},
		registry,
		cfg,
	)

	// The health checker pings Redis independently of whether the monitor
	// is actively dequeuing, so a connection drop is noticed even during
	// an idle queue.
	hc := relayq.NewHealthchecker(
		relayq.RedisClientOpt{Addr: *addr, DB: *db},
		15*time.Second,
		func(err error) {
			if err != nil {
				fmt.Fprintln(os.Stderr, "relayq-monitor: redis health check failed:", err)
			}
		},
		nil,
	)
	var hcWG sync.WaitGroup
	hc.Start(&hcWG)
	defer func() {
		hc.Shutdown()
		hcWG.Wait()
	}()

	if err := monitor.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "relayq-monitor:", err)
		os.Exit(1)
	}
}

// buildRegistry registers the handlers this binary knows about. It must be
// identical whether this process ends up running as a monitor or, via
// re-exec, as a child.
func buildRegistry() *relayq.Registry {
	registry := relayq.NewRegistry()
	registry.HandleFunc("echo", func(ctx context.Context, task *relayq.ResultTask) error {
		fmt.Println(string(task.Payload()))
		return nil
	})
	return registry
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
