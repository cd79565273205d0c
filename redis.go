package relayq

import (
	"crypto/tls"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisConnOpt is a discriminated set of options describing how to connect
// to Redis. NewClient, NewMonitor, and NewSweeper all accept one.
type RedisConnOpt interface {
	// MakeRedisClient returns a new redis client instance. Callers close
	// the returned client themselves via the owning relayq type's Close.
	MakeRedisClient() interface{}
}

// childEnvOpt is implemented by RedisConnOpt values that know how to
// serialize themselves into environment variables a re-executed child
// process can use to reconnect without inheriting a live client handle.
// Options that don't implement it (RedisFailoverClientOpt) make NewMonitor
// panic with an explanatory message, in either ModeForkPerTask or
// ModePrefork, since there is no single address to forward.
type childEnvOpt interface {
	childEnv() []string
}

const (
	envRedisAddr     = "RELAYQ_REDIS_ADDR"
	envRedisDB       = "RELAYQ_REDIS_DB"
	envRedisPassword = "RELAYQ_REDIS_PASSWORD"
	envRedisTLS      = "RELAYQ_REDIS_TLS"
)

// RedisClientOpt is used to create a redis client that connects to a
// single Redis server directly.
type RedisClientOpt struct {
	// Network type to use, either tcp or unix. Defaults to tcp.
	Network string

	// Redis server address in "host:port" format.
	Addr string

	// Username for authentication, if the server requires it.
	Username string

	// Password for authentication, if the server requires it.
	Password string

	// DB is the redis database to select after connecting.
	DB int

	// TLSConfig, if non-nil, enables a TLS connection using the given
	// configuration.
	TLSConfig *tls.Config
}

// MakeRedisClient implements RedisConnOpt.
func (opt RedisClientOpt) MakeRedisClient() interface{} {
	return redis.NewClient(&redis.Options{
		Network:   opt.Network,
		Addr:      opt.Addr,
		Username:  opt.Username,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: opt.TLSConfig,
	})
}

func (opt RedisClientOpt) childEnv() []string {
	env := []string{
		envRedisAddr + "=" + opt.Addr,
		envRedisDB + "=" + strconv.Itoa(opt.DB),
	}
	if opt.Password != "" {
		env = append(env, envRedisPassword+"="+opt.Password)
	}
	if opt.TLSConfig != nil {
		env = append(env, envRedisTLS+"=1")
	}
	return env
}

// RedisFailoverClientOpt is used to create a redis client that talks to a
// Redis sentinel cluster for high availability.
type RedisFailoverClientOpt struct {
	// MasterName is the name of the redis master monitored by sentinel.
	MasterName string

	// SentinelAddrs is a list of sentinel addresses in "host:port" format.
	SentinelAddrs []string

	// SentinelPassword, if non-empty, authenticates against the
	// sentinels themselves (independent of the master's own password).
	SentinelPassword string

	Username string
	Password string
	DB       int

	TLSConfig *tls.Config
}

// MakeRedisClient implements RedisConnOpt.
func (opt RedisFailoverClientOpt) MakeRedisClient() interface{} {
	return redis.NewFailoverClient(&redis.FailoverOptions{
		MasterName:       opt.MasterName,
		SentinelAddrs:    opt.SentinelAddrs,
		SentinelPassword: opt.SentinelPassword,
		Username:         opt.Username,
		Password:         opt.Password,
		DB:               opt.DB,
		TLSConfig:        opt.TLSConfig,
	})
}

// childOptFromEnv reconstructs a RedisClientOpt from the environment
// variables a Monitor set via childEnv when it spawned this process as a
// child. Used only by MaybeRunChild.
func childOptFromEnv() (RedisClientOpt, bool) {
	addr, ok := lookupEnv(envRedisAddr)
	if !ok {
		return RedisClientOpt{}, false
	}
	db, _ := strconv.Atoi(getEnv(envRedisDB))
	opt := RedisClientOpt{
		Addr:     addr,
		DB:       db,
		Password: getEnv(envRedisPassword),
	}
	if getEnv(envRedisTLS) != "" {
		opt.TLSConfig = &tls.Config{}
	}
	return opt, true
}
