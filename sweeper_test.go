package relayq

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/rdb"
	"github.com/relayq/relayq/internal/timeutil"
)

func newTestSweeper(t *testing.T, clock timeutil.Clock) (*Sweeper, *rdb.RDB, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := rdb.NewRDB(client)
	s := NewSweeper(RedisClientOpt{Addr: mr.Addr()}, SweeperConfig{
		Queue:       "default",
		TaskTimeout: 30 * time.Second,
		Clock:       clock,
	})
	return s, r, mr
}

func newTestSweeperWithSlack(t *testing.T, clock timeutil.Clock, slack time.Duration) (*Sweeper, *rdb.RDB, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := rdb.NewRDB(client)
	s := NewSweeper(RedisClientOpt{Addr: mr.Addr()}, SweeperConfig{
		Queue:       "default",
		TaskTimeout: 30 * time.Second,
		Slack:       slack,
		Clock:       clock,
	})
	return s, r, mr
}

func TestSweeperR1RepairsNotificationDrift(t *testing.T) {
	clock := timeutil.NewSimulatedClock(time.Now())
	s, r, mr := newTestSweeper(t, clock)
	ctx := context.Background()

	if _, err := r.Enqueue(ctx, &base.TaskMessage{Type: "noop", Queue: "default"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := mr.Lpop(base.NotiKey("default")); err != nil {
		t.Fatalf("simulate lost sentinel: %v", err)
	}

	s.sweep(ctx)

	qlen, _ := r.Len(ctx, "default")
	nlen, _ := r.NotiLen(ctx, "default")
	if qlen != nlen {
		t.Fatalf("expected R1 to repair drift, got queue=%d noti=%d", qlen, nlen)
	}
}

func TestSweeperR2RequeuesExpiredTask(t *testing.T) {
	clock := timeutil.NewSimulatedClock(time.Now())
	s, r, _ := newTestSweeper(t, clock)
	ctx := context.Background()

	if _, err := r.Enqueue(ctx, &base.TaskMessage{Type: "slow", Queue: "default", Timeout: 5}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	task, err := r.Dequeue(ctx, "default", time.Second)
	if err != nil || task == nil {
		t.Fatalf("dequeue: task=%+v err=%v", task, err)
	}

	// Advance well past the task's 5s timeout.
	clock.Advance(10 * time.Second)

	s.sweep(ctx)

	qlen, _ := r.Len(ctx, "default")
	if qlen != 1 {
		t.Fatalf("expected the expired task back on the ready queue, got length %d", qlen)
	}
	dq, _ := r.DequeuedTasks(ctx, "default")
	if len(dq) != 0 {
		t.Fatalf("expected the in-flight set to be empty after requeue, got %+v", dq)
	}
}

func TestSweeperR2HonorsSlackBeforeRequeuing(t *testing.T) {
	clock := timeutil.NewSimulatedClock(time.Now())
	s, r, _ := newTestSweeperWithSlack(t, clock, 3*time.Second)
	ctx := context.Background()

	if _, err := r.Enqueue(ctx, &base.TaskMessage{Type: "slow", Queue: "default", Timeout: 5}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := r.Dequeue(ctx, "default", time.Second); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	// Past the 5s timeout, but within the 3s slack: must not requeue yet.
	clock.Advance(6 * time.Second)
	s.sweep(ctx)

	dq, _ := r.DequeuedTasks(ctx, "default")
	if len(dq) != 1 {
		t.Fatalf("expected the task to remain in flight within slack, got %+v", dq)
	}

	// Past timeout+slack: now it must requeue.
	clock.Advance(3 * time.Second)
	s.sweep(ctx)

	dq, _ = r.DequeuedTasks(ctx, "default")
	if len(dq) != 0 {
		t.Fatalf("expected the task to be requeued once past timeout+slack, got %+v", dq)
	}
}

func TestSweeperR2LeavesFreshTaskInFlight(t *testing.T) {
	clock := timeutil.NewSimulatedClock(time.Now())
	s, r, _ := newTestSweeper(t, clock)
	ctx := context.Background()

	if _, err := r.Enqueue(ctx, &base.TaskMessage{Type: "slow", Queue: "default", Timeout: 60}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := r.Dequeue(ctx, "default", time.Second); err != nil {
		t.Fatalf("dequeue: %v", err)
	}

	clock.Advance(1 * time.Second)
	s.sweep(ctx)

	dq, _ := r.DequeuedTasks(ctx, "default")
	if len(dq) != 1 {
		t.Fatalf("expected the task to remain in flight, got %+v", dq)
	}
}
