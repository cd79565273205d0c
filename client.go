package relayq

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/rdb"
)

// Client enqueues tasks onto a queue for later processing by a Monitor.
// It is safe for concurrent use by multiple goroutines.
type Client struct {
	broker base.Broker
}

// NewClient returns a new Client connected via the given RedisConnOpt.
func NewClient(r RedisConnOpt) *Client {
	c, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic("relayq: RedisConnOpt.MakeRedisClient did not return a redis.UniversalClient")
	}
	return &Client{broker: rdb.NewRDB(c)}
}

// Close closes the underlying Redis connection.
func (c *Client) Close() error {
	return c.broker.Close()
}

// Ping verifies the client's Redis connection is alive.
func (c *Client) Ping() error {
	return c.broker.Ping()
}

// Enqueue appends task to the queue named by opts (default queue if
// unspecified) and returns the assigned TaskInfo.
func (c *Client) Enqueue(task *Task, opts ...Option) (*TaskInfo, error) {
	opt := composeOptions(opts...)
	if err := base.ValidateQueueName(opt.queue); err != nil {
		return nil, err
	}
	msg := &base.TaskMessage{
		Type:    task.Type(),
		Payload: task.Payload(),
		Queue:   opt.queue,
		Timeout: int64(opt.timeout.Seconds()),
	}
	id, err := c.broker.Enqueue(context.Background(), msg)
	if err != nil {
		return nil, err
	}
	return &TaskInfo{ID: id, Queue: opt.queue, Type: task.Type()}, nil
}
