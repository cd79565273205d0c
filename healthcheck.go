// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package relayq

import (
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/log"
	"github.com/relayq/relayq/internal/rdb"
)

// HealthCheckFunc is called on every health check interval with the result
// of pinging the broker (nil on success).
type HealthCheckFunc func(err error)

// Healthchecker periodically pings a queue's broker and reports the
// result, independent of whether a Monitor is actively dequeuing (an idle
// monitor still needs to know its Redis connection died).
type Healthchecker struct {
	logger      *log.Logger
	broker      base.Broker
	interval    time.Duration
	healthcheck HealthCheckFunc
	done        chan struct{}
	closeOnce   sync.Once
}

// NewHealthchecker returns a Healthchecker connected via r, pinging its
// broker every interval.
func NewHealthchecker(r RedisConnOpt, interval time.Duration, fn HealthCheckFunc, logger log.Base) *Healthchecker {
	client, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic("relayq: RedisConnOpt.MakeRedisClient did not return a redis.UniversalClient")
	}
	return newHealthchecker(rdb.NewRDB(client), interval, fn, logger)
}

func newHealthchecker(broker base.Broker, interval time.Duration, fn HealthCheckFunc, logger log.Base) *Healthchecker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if fn == nil {
		fn = func(error) {}
	}
	return &Healthchecker{
		logger:      log.NewLogger(logger),
		broker:      broker,
		interval:    interval,
		healthcheck: fn,
		done:        make(chan struct{}),
	}
}

// Start runs the health check loop in a new goroutine, tracked by wg.
func (hc *Healthchecker) Start(wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		hc.run()
	}()
}

func (hc *Healthchecker) run() {
	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()
	for {
		select {
		case <-hc.done:
			return
		case <-ticker.C:
			hc.healthcheck(hc.broker.Ping())
		}
	}
}

// Shutdown stops the health check loop.
func (hc *Healthchecker) Shutdown() {
	hc.closeOnce.Do(func() { close(hc.done) })
}
