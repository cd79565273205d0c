package relayq

import (
	"testing"
	"time"
)

func TestConfigFromEnvFallsThroughToEnvThenDefault(t *testing.T) {
	t.Setenv("RELAYQ_DEQUEUE_WAIT", "7s")

	cfg := ConfigFromEnv(Config{})
	if cfg.DequeueWait != 7*time.Second {
		t.Errorf("DequeueWait = %s, want 7s (from RELAYQ_DEQUEUE_WAIT)", cfg.DequeueWait)
	}
	if cfg.KillGrace != 10*time.Second {
		t.Errorf("KillGrace = %s, want the 10s default (no env set)", cfg.KillGrace)
	}
	if cfg.Queue != "default" {
		t.Errorf("Queue = %q, want %q", cfg.Queue, "default")
	}
}

func TestConfigFromEnvLeavesExplicitFieldsAlone(t *testing.T) {
	t.Setenv("RELAYQ_DEQUEUE_WAIT", "7s")

	cfg := ConfigFromEnv(Config{DequeueWait: 2 * time.Second})
	if cfg.DequeueWait != 2*time.Second {
		t.Errorf("DequeueWait = %s, want the explicitly set 2s to win over RELAYQ_DEQUEUE_WAIT", cfg.DequeueWait)
	}
}

func TestSweeperConfigFromEnvFallsThroughToEnvThenDefault(t *testing.T) {
	t.Setenv("RELAYQ_SWEEP_SLACK", "3s")

	cfg := SweeperConfigFromEnv(SweeperConfig{})
	if cfg.Slack != 3*time.Second {
		t.Errorf("Slack = %s, want 3s (from RELAYQ_SWEEP_SLACK)", cfg.Slack)
	}
	if cfg.Interval != 10*time.Second {
		t.Errorf("Interval = %s, want the 10s default (no env set)", cfg.Interval)
	}
}

func TestEnvIntFallsBackOnUnsetOrUnparseable(t *testing.T) {
	if got := EnvInt("RELAYQ_TEST_UNSET_DB", 4); got != 4 {
		t.Errorf("EnvInt with unset var = %d, want fallback 4", got)
	}

	t.Setenv("RELAYQ_TEST_DB", "2")
	if got := EnvInt("RELAYQ_TEST_DB", 4); got != 2 {
		t.Errorf("EnvInt = %d, want 2 (from env)", got)
	}

	t.Setenv("RELAYQ_TEST_DB", "not-a-number")
	if got := EnvInt("RELAYQ_TEST_DB", 4); got != 4 {
		t.Errorf("EnvInt with unparseable var = %d, want fallback 4", got)
	}
}
