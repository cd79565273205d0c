package relayq

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/relayq/relayq/internal/base"
	relerrors "github.com/relayq/relayq/internal/errors"
	"github.com/relayq/relayq/internal/log"
	"github.com/relayq/relayq/internal/rdb"
)

// Mode selects how a Monitor supervises task execution.
type Mode int

const (
	// ModeForkPerTask spawns a fresh child process for every task.
	ModeForkPerTask Mode = iota

	// ModePrefork keeps one child process alive across many tasks.
	ModePrefork
)

// SuccessHandler is invoked, in the monitor process, after a task
// completes without error.
type SuccessHandler func(task *ResultTask)

// ErrorHandler is invoked, in the monitor process, after a task fails.
// killedBy is non-empty ("SIGTERM" or "SIGKILL") when the failure was the
// monitor's own timeout enforcement rather than the handler itself; err is
// then a TimeoutError-kind error (internal/errors) rather than one reported
// by the child, which never got to report one.
type ErrorHandler func(task *ResultTask, killedBy string, err error)

// Config configures a Monitor.
type Config struct {
	// Queue is the name of the queue this monitor consumes. Defaults to
	// base.DefaultQueueName.
	Queue string

	// Mode selects fork-per-task or prefork supervision.
	Mode Mode

	// DequeueWait bounds how long a single Dequeue call blocks waiting
	// for a notification before the monitor loop checks for shutdown.
	// Defaults to 5s.
	DequeueWait time.Duration

	// DefaultTimeout is the execution deadline applied to a task whose
	// message didn't specify its own. Defaults to 30s.
	DefaultTimeout time.Duration

	// KillGrace is how long a soft-killed (SIGTERM) child is given to
	// exit before the monitor hard-kills it (SIGKILL). Defaults to 10s.
	KillGrace time.Duration

	SuccessHandler SuccessHandler
	ErrorHandler   ErrorHandler

	// Logger overrides the default zerolog-backed logger.
	Logger log.Base
}

func (cfg *Config) setDefaults() {
	if cfg.Queue == "" {
		cfg.Queue = base.DefaultQueueName
	}
	if cfg.DequeueWait <= 0 {
		cfg.DequeueWait = 5 * time.Second
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 30 * time.Second
	}
	if cfg.KillGrace <= 0 {
		cfg.KillGrace = 10 * time.Second
	}
	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(*ResultTask) {}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = func(*ResultTask, string, error) {}
	}
}

// Monitor dequeues tasks from a queue and supervises their execution in a
// separate process, one task at a time, for as long as Run is active. It
// never executes task code on its own goroutines.
type Monitor struct {
	id       string
	cfg      Config
	broker   base.Broker
	registry *Registry
	logger   *log.Logger
	executor executor
	limiter  *rate.Limiter

	mu        sync.Mutex
	stopping  bool
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewMonitor returns a Monitor that dequeues from Redis via r, dispatching
// each task's type through registry, according to cfg.
func NewMonitor(r RedisConnOpt, registry *Registry, cfg Config) *Monitor {
	cfg.setDefaults()

	client, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic("relayq: RedisConnOpt.MakeRedisClient did not return a redis.UniversalClient")
	}

	var redisEnv []string
	if ce, ok := r.(childEnvOpt); ok {
		redisEnv = ce.childEnv()
	} else {
		panic("relayq: this RedisConnOpt cannot be forwarded to a child process; use RedisClientOpt for monitors")
	}

	executable, err := os.Executable()
	if err != nil {
		panic(fmt.Sprintf("relayq: cannot determine own executable path: %v", err))
	}

	logger := log.NewLogger(cfg.Logger)

	var exec executor
	switch cfg.Mode {
	case ModePrefork:
		exec = newPreforkExecutor(executable, redisEnv, logger)
	default:
		exec = newForkExecutor(executable, redisEnv, logger)
	}

	return &Monitor{
		id:       uuid.NewString(),
		cfg:      cfg,
		broker:   rdb.NewRDB(client),
		registry: registry,
		logger:   logger,
		executor: exec,
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
		done:     make(chan struct{}),
	}
}

// ID returns this monitor's unique instance identifier, used only for log
// correlation.
func (m *Monitor) ID() string { return m.id }

// Run blocks, dequeuing and supervising tasks until Shutdown is called or
// the process receives SIGINT/SIGTERM. It returns nil on a clean shutdown.
func (m *Monitor) Run() error {
	m.logger.Infof("monitor %s starting on queue %q", m.id, m.cfg.Queue)
	go m.waitForSignals()

	m.loop()

	m.executor.close()
	m.logger.Infof("monitor %s stopped", m.id)
	return nil
}

// Stop asks the monitor to finish its current task, if any, and then
// return from Run without processing further tasks.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopping = true
}

// Shutdown stops the monitor immediately after its current dequeue-wait
// cycle and waits for Run to return.
func (m *Monitor) Shutdown() {
	m.Stop()
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

func (m *Monitor) isStopping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

func (m *Monitor) loop() {
	m.wg.Add(1)
	defer m.wg.Done()

	ctx := context.Background()
	for {
		select {
		case <-m.done:
			return
		default:
		}
		if m.isStopping() {
			return
		}

		msg, err := m.broker.Dequeue(ctx, m.cfg.Queue, m.cfg.DequeueWait)
		if err != nil {
			m.logger.Errorf("dequeue: %v", relerrors.E(relerrors.TransportError, "dequeue", err))
			_ = m.limiter.Wait(ctx)
			continue
		}
		if msg == nil {
			continue // wait timeout elapsed; loop around to re-check shutdown
		}

		m.runOne(ctx, msg)
	}
}

func (m *Monitor) runOne(ctx context.Context, msg *base.TaskMessage) {
	timeout := m.cfg.DefaultTimeout
	if msg.Timeout > 0 {
		timeout = time.Duration(msg.Timeout) * time.Second
	}
	deadline := time.Now().Add(timeout)

	out := m.executor.execute(msg, deadline, m.cfg.KillGrace)

	task := resultTaskFromMessage(msg)
	switch out.kind {
	case outcomeSuccess:
		m.cfg.SuccessHandler(task)
	case outcomeTaskError:
		m.cfg.ErrorHandler(task, "", relerrors.E(relerrors.TaskError, out.err))
	case outcomeTimeout:
		m.cfg.ErrorHandler(task, out.killedBy, relerrors.E(relerrors.TimeoutError, out.err))
	case outcomeChildDied:
		m.cfg.ErrorHandler(task, out.killedBy, relerrors.E(relerrors.ChildDiedError, out.err))
	}

	// Release unconditionally: the happy path already released in the
	// child, and a Redis set removal of an absent member is a no-op, so
	// this is the safety net for every other path (timeout, crash, pipe
	// break) without needing to distinguish them here.
	if err := m.broker.Release(ctx, msg); err != nil {
		m.logger.Errorf("release task %d: %v", msg.ID, err)
	}
}
