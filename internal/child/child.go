// Package child implements the process that actually runs task code: the
// far end of a Monitor's fork-per-task or prefork supervision. It never
// shares a process with the monitor loop, matching the queue's guarantee
// that a runaway or crashing task cannot take the supervisor down with it.
//
// Both supervision modes speak the same protocol on this side: read one
// length-prefixed task frame, run the handler, write one length-prefixed
// reply frame, then release the task. The fork-per-task mode does this
// once and exits; the prefork mode loops until its task input is closed.
package child

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/ipc"
)

// HandlerFunc runs one task to completion.
type HandlerFunc func(ctx context.Context, msg *base.TaskMessage) error

// LookupFunc resolves a task's type name to the HandlerFunc that should
// process it.
type LookupFunc func(typename string) (HandlerFunc, bool)

// Serializer marshals and unmarshals a Reply. It is structurally
// compatible with relayq.Serializer without importing it, to keep this
// package free of a dependency on the root package.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// Deps bundles what Run needs from its caller.
type Deps struct {
	Lookup     LookupFunc
	Broker     base.Broker
	Serializer Serializer
}

// Reply is what a child writes back to its monitor after attempting one
// task.
type Reply struct {
	OK  bool   `json:"ok"`
	Err string `json:"err,omitempty"`
}

// Run drives the child-side protocol on r/w. In "fork" mode it processes
// exactly one task and returns. In "prefork" mode it loops, processing
// tasks as they arrive, until r reaches a clean EOF between frames (the
// monitor closed the pipe to retire this child).
func Run(r io.Reader, w io.Writer, mode string, deps Deps) error {
	reader := bufio.NewReader(r)
	switch mode {
	case "fork":
		_, err := runOnce(reader, w, deps)
		return err
	case "prefork":
		for {
			done, err := runOnce(reader, w, deps)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}
	default:
		return fmt.Errorf("child: unknown mode %q", mode)
	}
}

// runOnce processes at most one task frame. done is true when the input
// stream ended cleanly before a new frame arrived.
func runOnce(r *bufio.Reader, w io.Writer, deps Deps) (done bool, err error) {
	frame, err := ipc.ReadFrame(r)
	if err == io.EOF {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("child: read task frame: %w", err)
	}

	msg, decodeErr := base.DecodeMessage(frame)
	if decodeErr != nil {
		return false, writeReply(w, deps.Serializer, Reply{OK: false, Err: decodeErr.Error()})
	}

	procErr := dispatch(context.Background(), deps.Lookup, msg)
	reply := Reply{OK: procErr == nil}
	if procErr != nil {
		reply.Err = procErr.Error()
	}
	if err := writeReply(w, deps.Serializer, reply); err != nil {
		return false, err
	}

	// The child releases on the happy path; the monitor releases again,
	// unconditionally, as a safety net once it reaps this process. A
	// double release is a no-op (base.Broker.Release is idempotent).
	if err := deps.Broker.Release(context.Background(), msg); err != nil {
		return false, fmt.Errorf("child: release task: %w", err)
	}
	return false, nil
}

func dispatch(ctx context.Context, lookup LookupFunc, msg *base.TaskMessage) (procErr error) {
	handler, ok := lookup(msg.Type)
	if !ok {
		return fmt.Errorf("child: no handler registered for task type %q", msg.Type)
	}
	defer func() {
		if r := recover(); r != nil {
			procErr = fmt.Errorf("child: task panicked: %v", r)
		}
	}()
	return handler(ctx, msg)
}

func writeReply(w io.Writer, s Serializer, reply Reply) error {
	data, err := s.Marshal(reply)
	if err != nil {
		return fmt.Errorf("child: marshal reply: %w", err)
	}
	if err := ipc.WriteFrame(w, data); err != nil {
		return fmt.Errorf("child: write reply frame: %w", err)
	}
	return nil
}
