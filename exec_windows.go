//go:build windows

package relayq

import "os/exec"

// Windows has no SIGTERM equivalent that a child can catch cheaply through
// os.Process; both the soft and hard kill collapse to Process.Kill.
func softKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

func hardKill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}
