// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

//go:build unix

package relayq

import (
	"os"
	"os/signal"

	"golang.org/x/sys/unix"
)

// waitForSignals blocks until the process receives SIGINT or SIGTERM, then
// asks the monitor to shut down. SIGHUP requests a graceful stop instead:
// the monitor finishes any task already in flight and returns from Run
// without picking up a new one, but waitForSignals keeps listening
// afterward in case a SIGTERM/SIGINT follows to force an immediate,
// waited-for shutdown. SIGTSTP is not handled here since there is no
// supervisor-level analog to asynq's "stop processing new tasks" distinct
// from "shut down": a monitor already commits to at most one task in
// flight at a time.
func (m *Monitor) waitForSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT, unix.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			if sig == unix.SIGHUP {
				m.logger.Info("received SIGHUP, stopping after the current task")
				m.Stop()
				continue
			}
			m.logger.Info("received shutdown signal")
			m.Shutdown()
			return
		case <-m.done:
			return
		}
	}
}

// waitForSignals is the Sweeper analog of Monitor.waitForSignals.
func (s *Sweeper) waitForSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		s.logger.Info("received shutdown signal")
		s.Shutdown()
	case <-s.done:
	}
}
