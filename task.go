package relayq

import (
	"encoding/json"
	"time"

	"github.com/relayq/relayq/internal/base"
)

// Task represents a unit of work to be enqueued and later processed by a
// registered Handler.
type Task struct {
	typename string
	payload  []byte
}

// NewTask returns a new Task carrying the given type name and payload. The
// type name is what a Registry dispatches on; the payload is opaque to the
// queue and interpreted only by the Handler registered for that type.
func NewTask(typename string, payload []byte) *Task {
	return &Task{typename: typename, payload: payload}
}

// Type returns the task's type name.
func (t *Task) Type() string { return t.typename }

// Payload returns the task's payload.
func (t *Task) Payload() []byte { return t.payload }

// ResultTask is the view of a Task a Handler receives: in addition to type
// and payload, it carries the queue metadata assigned at enqueue time.
type ResultTask struct {
	*Task
	id         int64
	queue      string
	timeout    time.Duration
	enqueuedAt time.Time
}

// ID returns the task's queue-assigned identifier.
func (t *ResultTask) ID() int64 { return t.id }

// Queue returns the name of the queue this task was dequeued from.
func (t *ResultTask) Queue() string { return t.queue }

// Timeout returns the per-task timeout recorded at enqueue time. It is zero
// when the task carries none, in which case the monitor enforces its
// configured DefaultTimeout instead.
func (t *ResultTask) Timeout() time.Duration { return t.timeout }

// EnqueuedAt returns when this task was last (re)enqueued.
func (t *ResultTask) EnqueuedAt() time.Time { return t.enqueuedAt }

// TaskInfo describes a task as it exists in the queue immediately after
// Client.Enqueue.
type TaskInfo struct {
	ID    int64
	Queue string
	Type  string
}

// option holds the parsed effect of a set of Option values.
type option struct {
	queue   string
	timeout time.Duration
}

// Option configures a single call to Client.Enqueue.
type Option interface {
	apply(*option)
}

type queueOption string

func (o queueOption) apply(opt *option) { opt.queue = string(o) }

// Queue returns an Option that assigns the task to the named queue instead
// of the default queue.
func Queue(name string) Option { return queueOption(name) }

type timeoutOption time.Duration

func (o timeoutOption) apply(opt *option) { opt.timeout = time.Duration(o) }

// Timeout returns an Option that overrides the monitor's default execution
// timeout for this one task.
func Timeout(d time.Duration) Option { return timeoutOption(d) }

func composeOptions(opts ...Option) option {
	var opt option
	opt.queue = base.DefaultQueueName
	for _, o := range opts {
		o.apply(&opt)
	}
	return opt
}

// resultTaskFromMessage builds the Handler-facing view of a dequeued
// TaskMessage.
func resultTaskFromMessage(msg *base.TaskMessage) *ResultTask {
	return &ResultTask{
		Task:       NewTask(msg.Type, msg.Payload),
		id:         msg.ID,
		queue:      msg.Queue,
		timeout:    time.Duration(msg.Timeout) * time.Second,
		enqueuedAt: time.Unix(msg.EnqueuedAt, 0),
	}
}

// Serializer marshals and unmarshals the child-process reply exchanged
// between a Monitor and its child over the internal/ipc frame protocol.
// The default implementation encodes as JSON; callers with an existing
// binary encoding may substitute their own.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSONSerializer is the default Serializer.
type JSONSerializer struct{}

// Marshal implements Serializer.
func (JSONSerializer) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

// Unmarshal implements Serializer.
func (JSONSerializer) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

// DefaultSerializer is used by the monitor/child reply protocol unless
// overridden.
var DefaultSerializer Serializer = JSONSerializer{}
