package relayq

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/child"
	"github.com/relayq/relayq/internal/rdb"
)

const envChildMode = "RELAYQ_CHILD_MODE"

// taskFD and replyFD are the file descriptors a monitor hands its child
// via os/exec's ExtraFiles, dedicated to the length-prefixed framing
// protocol. Keeping framing off fd 0/1 means a task handler's own
// stdin/stdout use (a handler that reads input, or the bundled echo
// handler printing its payload) can never corrupt a frame in transit;
// only the monitor and internal/child ever touch these fds.
const (
	taskFD  = 3
	replyFD = 4
)

// MaybeRunChild must be called at the very top of a program's main, before
// any flag parsing or other setup, using the same Registry the program
// will later pass to NewMonitor. If the current process was spawned by a
// Monitor to run one task (ModeForkPerTask) or to serve as a reused
// prefork worker (ModePrefork), MaybeRunChild takes over as that child,
// runs to completion, and terminates the process with os.Exit — it never
// returns in that case. Otherwise it returns false immediately and the
// caller's normal startup proceeds.
//
// This is relayq's substitute for fork(2): Go cannot fork a running
// process and continue two copies of it, so a monitor instead re-executes
// its own binary and uses an environment variable to steer the new
// process into child mode instead of monitor mode.
func MaybeRunChild(registry *Registry) bool {
	mode := os.Getenv(envChildMode)
	if mode == "" {
		return false
	}

	opt, ok := childOptFromEnv()
	if !ok {
		fmt.Fprintln(os.Stderr, "relayq: child process missing redis connection environment")
		os.Exit(1)
	}
	client, ok := opt.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		fmt.Fprintln(os.Stderr, "relayq: child process could not build a redis client")
		os.Exit(1)
	}
	broker := rdb.NewRDB(client)
	defer broker.Close()

	deps := child.Deps{
		Lookup:     registryLookup(registry),
		Broker:     broker,
		Serializer: DefaultSerializer,
	}
	taskIn := os.NewFile(taskFD, "relayq-task")
	replyOut := os.NewFile(replyFD, "relayq-reply")
	if taskIn == nil || replyOut == nil {
		fmt.Fprintln(os.Stderr, "relayq: child process missing its framing file descriptors")
		os.Exit(1)
	}
	if err := child.Run(taskIn, replyOut, mode, deps); err != nil {
		fmt.Fprintf(os.Stderr, "relayq: child exiting: %v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
	return true // unreachable; satisfies the compiler
}

// registryLookup adapts a Registry into the plain function shape
// internal/child depends on, so that package stays free of any
// dependency on the root package's exported types.
func registryLookup(registry *Registry) child.LookupFunc {
	return func(typename string) (child.HandlerFunc, bool) {
		h, ok := registry.Lookup(typename)
		if !ok {
			return nil, false
		}
		return func(ctx context.Context, msg *base.TaskMessage) error {
			return h.ProcessTask(ctx, resultTaskFromMessage(msg))
		}, true
	}
}
