// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package relayq provides a Redis-backed task queue with an at-most-one-
// success execution guarantee: a task handed to a worker either finishes
// exactly once, or gets requeued for another attempt, even if the worker
// process is killed mid-task.
//
// # Quick start
//
// Enqueue a task from a client:
//
//	client := relayq.NewClient(relayq.RedisClientOpt{Addr: "127.0.0.1:6379"})
//	defer client.Close()
//	info, err := client.Enqueue(relayq.NewTask("email:welcome", payload))
//
// Process tasks from a monitor:
//
//	registry := relayq.NewRegistry()
//	registry.HandleFunc("email:welcome", sendWelcomeEmail)
//
//	relayq.MaybeRunChild(registry) // must run before any other setup
//
//	monitor := relayq.NewMonitor(
//		relayq.RedisClientOpt{Addr: "127.0.0.1:6379"},
//		registry,
//		relayq.Config{Queue: "default", Mode: relayq.ModeForkPerTask},
//	)
//	if err := monitor.Run(); err != nil {
//		log.Fatal(err)
//	}
//
// # Architecture
//
// A queue is five Redis keys: a ready list holding serialized tasks, a
// notification list whose length always tracks the ready list's length (a
// blocking consumer waits on this list rather than on the ready list
// itself), a monotonic id counter, and two sorted sets recording which
// tasks are currently enqueued versus dequeued (in flight).
//
// A Monitor never runs task code on its own goroutines. It supervises a
// real OS subprocess per task (ModeForkPerTask) or a long-lived reused
// subprocess (ModePrefork), so that a task that hangs, panics the runtime,
// or is killed by the OS cannot take the monitor down with it. A Sweeper
// runs alongside the monitor fleet, repairing notification/ready-list
// length drift and requeuing tasks whose dequeue lease has expired without
// a Release.
package relayq
