package relayq

import (
	"time"

	"github.com/relayq/relayq/internal/base"
)

// outcomeKind classifies how one supervised task execution ended.
type outcomeKind int

const (
	// outcomeSuccess means the child ran the handler and reported success.
	outcomeSuccess outcomeKind = iota

	// outcomeTaskError means the child ran the handler and it returned an
	// error (or panicked).
	outcomeTaskError

	// outcomeTimeout means the child was still running the task past its
	// deadline and had to be signaled to stop.
	outcomeTimeout

	// outcomeChildDied means the child exited (or could not be started,
	// or the pipe broke) before delivering a reply, for a reason other
	// than the monitor's own timeout signal.
	outcomeChildDied
)

// outcome is what an executor reports back to the monitor loop after
// supervising one task.
type outcome struct {
	kind     outcomeKind
	err      error
	killedBy string // e.g. "SIGTERM", "SIGKILL"; empty unless the monitor signaled the child
}

// executor drives one task through a child process and reports how it
// went. forkExecutor spawns a fresh child per call; preforkExecutor
// reuses one child across calls.
type executor interface {
	// execute supervises msg through to completion or to the given
	// deadline. If the deadline elapses, execute sends the child a soft
	// kill and, if it hasn't exited within killGrace, a hard kill.
	execute(msg *base.TaskMessage, deadline time.Time, killGrace time.Duration) outcome

	// close shuts down any child process the executor is holding open.
	// Safe to call even if no child is running.
	close()
}
