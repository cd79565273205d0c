package relayq

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/relayq/relayq/internal/base"
)

type flakyBroker struct {
	pingErr error
}

func (b *flakyBroker) Ping() error  { return b.pingErr }
func (b *flakyBroker) Close() error { return nil }
func (b *flakyBroker) Enqueue(ctx context.Context, msg *base.TaskMessage) (int64, error) {
	return 0, nil
}
func (b *flakyBroker) Dequeue(ctx context.Context, qname string, wait time.Duration) (*base.TaskMessage, error) {
	return nil, nil
}
func (b *flakyBroker) Release(ctx context.Context, msg *base.TaskMessage) error { return nil }
func (b *flakyBroker) Requeue(ctx context.Context, msg *base.TaskMessage) error { return nil }
func (b *flakyBroker) Len(ctx context.Context, qname string) (int64, error)     { return 0, nil }
func (b *flakyBroker) NotiLen(ctx context.Context, qname string) (int64, error) { return 0, nil }
func (b *flakyBroker) DequeuedTasks(ctx context.Context, qname string) ([]base.Z, error) {
	return nil, nil
}
func (b *flakyBroker) RefillNotifications(ctx context.Context, qname string) (int64, error) {
	return 0, nil
}

func TestHealthcheckerReportsPingResult(t *testing.T) {
	broker := &flakyBroker{pingErr: errors.New("connection refused")}
	results := make(chan error, 4)
	hc := newHealthchecker(broker, 10*time.Millisecond, func(err error) { results <- err }, nil)

	var wg sync.WaitGroup
	hc.Start(&wg)
	defer func() {
		hc.Shutdown()
		wg.Wait()
	}()

	select {
	case err := <-results:
		if err == nil {
			t.Fatal("expected a non-nil ping error to be reported")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a health check result")
	}
}

func TestHealthcheckerStopsOnShutdown(t *testing.T) {
	broker := &flakyBroker{}
	hc := newHealthchecker(broker, 5*time.Millisecond, func(error) {}, nil)

	var wg sync.WaitGroup
	hc.Start(&wg)
	hc.Shutdown()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected the health check loop to stop promptly after Shutdown")
	}
}
