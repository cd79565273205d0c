// Package rdb implements the queue protocol (internal/base.Broker) on top
// of a Redis-compatible store via go-redis.
package rdb

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	relerrors "github.com/relayq/relayq/internal/errors"
)

// sentinel is the single-byte notification placeholder pushed to the
// `<name>_noti` list. Its content is irrelevant; only its presence and
// count matter.
const sentinel = "1"

// takeScript implements the "take work" half of dequeue: pop the queue
// head, move its id-bearing membership from the enqueued set to the
// dequeued set. Returns the popped task bytes, or false if the queue was
// empty (a valid transient when the notification sentinel outran the
// queue write).
var takeScript = redis.NewScript(`
local data = redis.call('LPOP', KEYS[1])
if not data then
  return false
end
redis.call('ZREM', KEYS[2], data)
redis.call('ZADD', KEYS[3], ARGV[1], data)
return data
`)

// requeueScript implements the sweeper's timeout-requeue reconciliation
// pass: move a task from the dequeued set back to the ready queue with a
// fresh enqueue timestamp, atomically.
var requeueScript = redis.NewScript(`
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('RPUSH', KEYS[1], ARGV[2])
redis.call('RPUSH', KEYS[2], ARGV[4])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
return 1
`)

// refillScript implements the sweeper's notification-refill reconciliation
// pass: compare the ready queue's length against the notification list's
// length and repair the delta.
var refillScript = redis.NewScript(`
local qlen = redis.call('LLEN', KEYS[1])
local nlen = redis.call('LLEN', KEYS[2])
local delta = qlen - nlen
if delta > 0 then
  for i = 1, delta do
    redis.call('RPUSH', KEYS[2], ARGV[1])
  end
elseif delta < 0 then
  for i = 1, -delta do
    redis.call('LPOP', KEYS[2])
  end
end
return delta
`)

// RDB is the Redis-backed implementation of base.Broker.
type RDB struct {
	client redis.UniversalClient
}

// NewRDB returns an RDB wrapping the given Redis client.
func NewRDB(client redis.UniversalClient) *RDB {
	return &RDB{client: client}
}

// Client returns the underlying redis.UniversalClient, for callers (e.g.
// the inspector CLI) that need read-only access beyond the Broker
// interface.
func (r *RDB) Client() redis.UniversalClient { return r.client }

func (r *RDB) Ping() error {
	return r.client.Ping(context.Background()).Err()
}

func (r *RDB) Close() error {
	return r.client.Close()
}

// Enqueue implements base.Broker. It pipelines the queue writes into a
// single round trip; the writes are not required to be transactional
// because the sweeper repairs partial application.
func (r *RDB) Enqueue(ctx context.Context, msg *base.TaskMessage) (int64, error) {
	qname := msg.Queue
	if qname == "" {
		qname = base.DefaultQueueName
	}
	now := time.Now().Unix()

	if msg.ID == 0 {
		id, err := r.client.Incr(ctx, base.IDKey(qname)).Result()
		if err != nil {
			return 0, fmt.Errorf("relayq: assign task id: %w", err)
		}
		msg.ID = id
	}
	msg.EnqueuedAt = now

	data, err := base.EncodeMessage(msg)
	if err != nil {
		return 0, fmt.Errorf("relayq: encode task message: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.RPush(ctx, base.QueueKey(qname), data)
	pipe.RPush(ctx, base.NotiKey(qname), sentinel)
	pipe.ZAdd(ctx, base.EnqueuedKey(qname), redis.Z{Score: float64(now), Member: data})
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("relayq: enqueue pipeline: %w", err)
	}
	return msg.ID, nil
}

// Dequeue implements base.Broker's two-step protocol: a blocking wait on
// the notification list, then a scripted atomic take.
func (r *RDB) Dequeue(ctx context.Context, qname string, waitTimeout time.Duration) (*base.TaskMessage, error) {
	if qname == "" {
		qname = base.DefaultQueueName
	}
	res, err := r.client.BLPop(ctx, waitTimeout, base.NotiKey(qname)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // wait timeout elapsed, no work available
	}
	if err != nil {
		return nil, relerrors.E(relerrors.TransportError, "wait for notification", err)
	}
	_ = res // res[0] is the key name, res[1] the sentinel value; neither is needed

	now := time.Now().Unix()
	v, err := takeScript.Run(ctx, r.client,
		[]string{base.QueueKey(qname), base.EnqueuedKey(qname), base.DequeuedKey(qname)},
		now,
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil // the script returned false: the queue was empty
	}
	if err != nil {
		return nil, relerrors.E(relerrors.TransportError, "take task", err)
	}
	data, ok := v.(string)
	if !ok || data == "" {
		// The sentinel outran the queue write; a valid transient the
		// sweeper's R1 pass will have already accounted for, or will on
		// its next tick.
		return nil, nil
	}
	msg, err := base.DecodeMessage([]byte(data))
	if err != nil {
		return nil, relerrors.E(relerrors.DeserializationError, "decode dequeued task", err)
	}
	return msg, nil
}

// Release implements base.Broker. Removing a member from a set that no
// longer contains it is a no-op in Redis, so this is idempotent without
// any extra bookkeeping.
func (r *RDB) Release(ctx context.Context, msg *base.TaskMessage) error {
	qname := msg.Queue
	if qname == "" {
		qname = base.DefaultQueueName
	}
	data, err := base.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("relayq: encode task message: %w", err)
	}
	if err := r.client.ZRem(ctx, base.DequeuedKey(qname), data).Err(); err != nil {
		return fmt.Errorf("relayq: release task: %w", err)
	}
	return nil
}

// Requeue implements base.Broker (sweeper-only). It re-encodes msg with a
// fresh enqueue timestamp and atomically moves it from the dequeued set
// back to the ready queue.
func (r *RDB) Requeue(ctx context.Context, msg *base.TaskMessage) error {
	qname := msg.Queue
	if qname == "" {
		qname = base.DefaultQueueName
	}
	oldData, err := base.EncodeMessage(msg)
	if err != nil {
		return fmt.Errorf("relayq: encode task message: %w", err)
	}

	fresh := *msg
	fresh.EnqueuedAt = time.Now().Unix()
	newData, err := base.EncodeMessage(&fresh)
	if err != nil {
		return fmt.Errorf("relayq: encode requeued task message: %w", err)
	}

	_, err = requeueScript.Run(ctx, r.client,
		[]string{base.QueueKey(qname), base.NotiKey(qname), base.EnqueuedKey(qname), base.DequeuedKey(qname)},
		string(oldData), string(newData), fresh.EnqueuedAt, sentinel,
	).Result()
	if err != nil {
		return fmt.Errorf("relayq: requeue task: %w", err)
	}
	return nil
}

// Len implements base.Broker.
func (r *RDB) Len(ctx context.Context, qname string) (int64, error) {
	if qname == "" {
		qname = base.DefaultQueueName
	}
	n, err := r.client.LLen(ctx, base.QueueKey(qname)).Result()
	if err != nil {
		return 0, fmt.Errorf("relayq: queue length: %w", err)
	}
	return n, nil
}

// NotiLen implements base.Broker.
func (r *RDB) NotiLen(ctx context.Context, qname string) (int64, error) {
	if qname == "" {
		qname = base.DefaultQueueName
	}
	n, err := r.client.LLen(ctx, base.NotiKey(qname)).Result()
	if err != nil {
		return 0, fmt.Errorf("relayq: notification length: %w", err)
	}
	return n, nil
}

// DequeuedTasks implements base.Broker.
func (r *RDB) DequeuedTasks(ctx context.Context, qname string) ([]base.Z, error) {
	if qname == "" {
		qname = base.DefaultQueueName
	}
	zs, err := r.client.ZRangeWithScores(ctx, base.DequeuedKey(qname), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("relayq: list dequeued tasks: %w", err)
	}
	out := make([]base.Z, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			continue
		}
		msg, err := base.DecodeMessage([]byte(member))
		if err != nil {
			continue // corrupt member; skip rather than fail the whole sweep
		}
		out = append(out, base.Z{Message: msg, Score: int64(z.Score)})
	}
	return out, nil
}

// RefillNotifications implements base.Broker's R1 reconciliation.
func (r *RDB) RefillNotifications(ctx context.Context, qname string) (int64, error) {
	if qname == "" {
		qname = base.DefaultQueueName
	}
	v, err := refillScript.Run(ctx, r.client,
		[]string{base.QueueKey(qname), base.NotiKey(qname)},
		sentinel,
	).Result()
	if err != nil {
		return 0, fmt.Errorf("relayq: refill notifications: %w", err)
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case string:
		parsed, _ := strconv.ParseInt(n, 10, 64)
		return parsed, nil
	default:
		return 0, nil
	}
}
