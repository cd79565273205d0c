// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package relayq

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/log"
	"github.com/relayq/relayq/internal/rdb"
	"github.com/relayq/relayq/internal/timeutil"
)

// SweeperConfig configures a Sweeper.
type SweeperConfig struct {
	// Queue is the name of the queue this sweeper reconciles.
	Queue string

	// Interval between reconciliation passes. Defaults to 10s.
	Interval time.Duration

	// TaskTimeout is the execution timeout the sweeper assumes for a task
	// whose message didn't record its own (mirrors Monitor's
	// DefaultTimeout, since the sweeper has no other way to know how
	// long a given in-flight task is allowed to run). Defaults to 30s.
	TaskTimeout time.Duration

	// Slack is added to a task's timeout before R2 considers it expired,
	// absorbing clock skew between the sweeper and the monitor that
	// dequeued the task so a task the monitor is about to release isn't
	// requeued out from under it. Defaults to 1s.
	Slack time.Duration

	Logger log.Base

	// Clock is used for computing task age; overridable in tests.
	Clock timeutil.Clock
}

func (cfg *SweeperConfig) setDefaults() {
	if cfg.Queue == "" {
		cfg.Queue = base.DefaultQueueName
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.Slack <= 0 {
		cfg.Slack = time.Second
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.NewRealClock()
	}
}

// Sweeper runs the queue's two reconciliation passes on an interval,
// grounded in the same start/shutdown shape as relayq's other background
// loops: R1 (notification refill) repairs a length mismatch between the
// ready queue and its notification list; R2 (timeout requeue) moves
// in-flight tasks whose dequeue lease has expired back onto the ready
// queue. R1 always runs before R2 in a given cycle, since a task R2
// requeues needs a correct notification count to be observed by a
// consumer.
//
// R2 does not check whether the monitor that dequeued a task is still
// running it: a task still executing more than its timeout plus Slack after
// its dequeue (for instance during the monitor's KillGrace, which defaults
// to longer than Slack) is requeued anyway and may run a second time,
// concurrently, on another monitor. No suppression is attempted.
type Sweeper struct {
	cfg    SweeperConfig
	broker base.Broker
	logger *log.Logger

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewSweeper returns a Sweeper reconciling the queue reachable via r.
func NewSweeper(r RedisConnOpt, cfg SweeperConfig) *Sweeper {
	cfg.setDefaults()
	client, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic("relayq: RedisConnOpt.MakeRedisClient did not return a redis.UniversalClient")
	}
	return &Sweeper{
		cfg:    cfg,
		broker: rdb.NewRDB(client),
		logger: log.NewLogger(cfg.Logger),
		done:   make(chan struct{}),
	}
}

// Run blocks, reconciling the queue on cfg.Interval, until Shutdown is
// called or the process receives SIGINT/SIGTERM.
func (s *Sweeper) Run() error {
	s.logger.Infof("sweeper starting on queue %q, interval %s", s.cfg.Queue, s.cfg.Interval)
	go s.waitForSignals()

	s.wg.Add(1)
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.sweep(context.Background())
		}
	}
}

// Shutdown stops the sweeper and waits for Run to return.
func (s *Sweeper) Shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
	s.wg.Wait()
}

func (s *Sweeper) sweep(ctx context.Context) {
	delta, err := s.broker.RefillNotifications(ctx, s.cfg.Queue)
	if err != nil {
		s.logger.Errorf("R1 refill notifications: %v", err)
	} else if delta != 0 {
		s.logger.Infof("R1 repaired notification drift by %d", delta)
	}

	inFlight, err := s.broker.DequeuedTasks(ctx, s.cfg.Queue)
	if err != nil {
		s.logger.Errorf("R2 list in-flight tasks: %v", err)
		return
	}

	now := s.cfg.Clock.Now().Unix()
	for _, z := range inFlight {
		timeout := s.cfg.TaskTimeout
		if z.Message.Timeout > 0 {
			timeout = time.Duration(z.Message.Timeout) * time.Second
		}
		age := time.Duration(now-z.Score) * time.Second
		if age <= timeout+s.cfg.Slack {
			continue
		}
		if err := s.broker.Requeue(ctx, z.Message); err != nil {
			s.logger.Errorf("R2 requeue task %d: %v", z.Message.ID, err)
			continue
		}
		s.logger.Infof("R2 requeued task %d after %s in flight (timeout %s, slack %s)", z.Message.ID, age, timeout, s.cfg.Slack)
	}
}
