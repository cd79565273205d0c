// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

//go:build windows

package relayq

import (
	"os"
	"os/signal"
	"syscall"
)

// waitForSignals blocks until the process receives an interrupt, then asks
// the monitor to shut down.
func (m *Monitor) waitForSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		m.logger.Info("received shutdown signal")
		m.Shutdown()
	case <-m.done:
	}
}

// waitForSignals is the Sweeper analog of Monitor.waitForSignals.
func (s *Sweeper) waitForSignals() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		s.logger.Info("received shutdown signal")
		s.Shutdown()
	case <-s.done:
	}
}
