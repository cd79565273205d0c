package relayq

import (
	"os"
	"time"

	"github.com/spf13/cast"
)

func lookupEnv(key string) (string, bool) {
	return os.LookupEnv(key)
}

func getEnv(key string) string {
	v, _ := lookupEnv(key)
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	d, err := cast.ToDurationE(v)
	if err != nil {
		return fallback
	}
	return d
}

// EnvInt reads key from the environment and coerces it to an int via cast,
// returning fallback if key is unset, empty, or not parseable as an int.
// Exported so cmd/relayq-monitor and cmd/relayq-sweeper can use it for flags
// (redis-db) that Config and SweeperConfig don't carry themselves.
func EnvInt(key string, fallback int) int {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvString(key, fallback string) string {
	v, ok := lookupEnv(key)
	if !ok || v == "" {
		return fallback
	}
	return v
}

// ConfigFromEnv populates a Config's zero-valued fields from environment
// variables, using cast to coerce string values into the right types.
// cmd/relayq-monitor calls this on the Config it builds from flags, so an
// unset flag falls through to its environment variable and then to the
// same default Config.setDefaults would apply; library callers building a
// Config in code are free to ignore it.
func ConfigFromEnv(cfg Config) Config {
	if cfg.Queue == "" {
		cfg.Queue = getEnvString("RELAYQ_QUEUE", "default")
	}
	if cfg.DequeueWait == 0 {
		cfg.DequeueWait = getEnvDuration("RELAYQ_DEQUEUE_WAIT", 5*time.Second)
	}
	if cfg.KillGrace == 0 {
		cfg.KillGrace = getEnvDuration("RELAYQ_KILL_GRACE", 10*time.Second)
	}
	if cfg.DefaultTimeout == 0 {
		cfg.DefaultTimeout = getEnvDuration("RELAYQ_DEFAULT_TIMEOUT", 30*time.Second)
	}
	return cfg
}

// SweeperConfigFromEnv is the equivalent of ConfigFromEnv for
// SweeperConfig.
func SweeperConfigFromEnv(cfg SweeperConfig) SweeperConfig {
	if cfg.Queue == "" {
		cfg.Queue = getEnvString("RELAYQ_QUEUE", "default")
	}
	if cfg.Interval == 0 {
		cfg.Interval = getEnvDuration("RELAYQ_SWEEP_INTERVAL", 10*time.Second)
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = getEnvDuration("RELAYQ_DEFAULT_TIMEOUT", 30*time.Second)
	}
	if cfg.Slack == 0 {
		cfg.Slack = getEnvDuration("RELAYQ_SWEEP_SLACK", time.Second)
	}
	return cfg
}
