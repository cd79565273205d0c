// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package base defines foundational types and Redis key layout shared by
// relayq's queue, monitor, and sweeper.
package base

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Version of the relayq library.
const Version = "1.0.0"

// DefaultQueueName is the queue name used if none is specified by the
// caller.
const DefaultQueueName = "default"

// TaskState denotes where a task currently lives in the queue protocol.
type TaskState int

const (
	// TaskStateEnqueued means the task is sitting in the ready queue,
	// waiting to be dequeued.
	TaskStateEnqueued TaskState = iota + 1

	// TaskStateDequeued means a monitor has taken the task and is
	// currently executing it.
	TaskStateDequeued
)

func (s TaskState) String() string {
	switch s {
	case TaskStateEnqueued:
		return "enqueued"
	case TaskStateDequeued:
		return "dequeued"
	}
	panic(fmt.Sprintf("internal error: unknown task state %d", s))
}

// ValidateQueueName validates a given qname to be used as a queue name.
func ValidateQueueName(qname string) error {
	if len(strings.TrimSpace(qname)) == 0 {
		return fmt.Errorf("queue name must contain one or more characters")
	}
	return nil
}

// QueueKeyPrefix returns a prefix for all Redis keys belonging to the given
// queue. The `{name}` hash tag keeps every key for one queue on the same
// Redis Cluster slot so the queue's Lua scripts can run atomically.
func QueueKeyPrefix(qname string) string {
	return "relayq:{" + qname + "}:"
}

// QueueKey returns the Redis key for the queue's ready list (`<name>`).
func QueueKey(qname string) string {
	return QueueKeyPrefix(qname) + "queue"
}

// NotiKey returns the Redis key for the queue's notification sentinel list
// (`<name>_noti`).
func NotiKey(qname string) string {
	return QueueKeyPrefix(qname) + "noti"
}

// IDKey returns the Redis key for the queue's monotonic id counter
// (`<name>_id`).
func IDKey(qname string) string {
	return QueueKeyPrefix(qname) + "id"
}

// EnqueuedKey returns the Redis key for the queue's enqueued-task sorted
// set (`<name>_enqueued`).
func EnqueuedKey(qname string) string {
	return QueueKeyPrefix(qname) + "enqueued"
}

// DequeuedKey returns the Redis key for the queue's in-flight sorted set
// (`<name>_dequeued`).
func DequeuedKey(qname string) string {
	return QueueKeyPrefix(qname) + "dequeued"
}

// TaskMessage is the wire representation of a task. EncodeMessage's output
// is what gets stored as a list element / sorted-set member in Redis.
type TaskMessage struct {
	// ID is a monotonic, queue-unique task identifier assigned at enqueue
	// time.
	ID int64 `json:"id"`

	// Type identifies which registered Handler should process this task.
	Type string `json:"type"`

	// Payload holds the task's arguments, opaque to the queue.
	Payload []byte `json:"payload"`

	// Queue is the name of the queue this message belongs to.
	Queue string `json:"queue"`

	// Timeout is the task's execution timeout in seconds. Zero means "use
	// the monitor's configured default timeout".
	Timeout int64 `json:"timeout,omitempty"`

	// EnqueuedAt is the unix time the task was last (re)enqueued.
	EnqueuedAt int64 `json:"enqueued_at"`
}

// EncodeMessage marshals the given task message.
func EncodeMessage(msg *TaskMessage) ([]byte, error) {
	if msg == nil {
		return nil, fmt.Errorf("cannot encode nil message")
	}
	return json.Marshal(msg)
}

// DecodeMessage unmarshals bytes produced by EncodeMessage.
func DecodeMessage(data []byte) (*TaskMessage, error) {
	var msg TaskMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Z represents a sorted-set member together with its score, used when the
// sweeper reads the dequeued set.
type Z struct {
	Message *TaskMessage
	Score   int64
}

// Broker is the interface the queue protocol exposes to the Monitor,
// Client, and Sweeper. See internal/rdb.RDB for the Redis-backed
// implementation.
type Broker interface {
	Ping() error
	Close() error

	// Enqueue appends msg to the ready queue, assigning it an id if it
	// doesn't have one yet, and returns the assigned id.
	Enqueue(ctx context.Context, msg *TaskMessage) (int64, error)

	// Dequeue waits up to waitTimeout for a notification, then attempts to
	// take one task off the ready queue. It returns (nil, nil) if no task
	// was available.
	Dequeue(ctx context.Context, qname string, waitTimeout time.Duration) (*TaskMessage, error)

	// Release removes msg's id from the in-flight set. Idempotent.
	Release(ctx context.Context, msg *TaskMessage) error

	// Requeue moves msg from the in-flight set back to the ready queue.
	// Used only by the sweeper.
	Requeue(ctx context.Context, msg *TaskMessage) error

	// Len returns the number of tasks currently in the ready queue.
	Len(ctx context.Context, qname string) (int64, error)

	// NotiLen returns the number of sentinels currently in the
	// notification list.
	NotiLen(ctx context.Context, qname string) (int64, error)

	// DequeuedTasks returns every (message, dequeue-timestamp) pair
	// currently in the in-flight set, for the sweeper's R2 pass.
	DequeuedTasks(ctx context.Context, qname string) ([]Z, error)

	// RefillNotifications implements the sweeper's R1 reconciliation:
	// it compares the ready-queue length against the notification list
	// length and repairs the delta, returning the delta applied (positive
	// = sentinels appended, negative = sentinels dropped).
	RefillNotifications(ctx context.Context, qname string) (int64, error)
}
