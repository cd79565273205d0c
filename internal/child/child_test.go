package child

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/relayq/relayq/internal/base"
	"github.com/relayq/relayq/internal/ipc"
)

var errBoom = errors.New("boom")

func newBufReader(buf *bytes.Buffer) *bufio.Reader { return bufio.NewReader(buf) }

type jsonSerializer struct{}

func (jsonSerializer) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonSerializer) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// fakeBroker records Release calls; every other Broker method is unused by
// the child's runOnce path.
type fakeBroker struct {
	released []*base.TaskMessage
}

func (b *fakeBroker) Ping() error { return nil }
func (b *fakeBroker) Close() error { return nil }
func (b *fakeBroker) Enqueue(ctx context.Context, msg *base.TaskMessage) (int64, error) {
	return 0, nil
}
func (b *fakeBroker) Dequeue(ctx context.Context, qname string, wait time.Duration) (*base.TaskMessage, error) {
	return nil, nil
}
func (b *fakeBroker) Release(ctx context.Context, msg *base.TaskMessage) error {
	b.released = append(b.released, msg)
	return nil
}
func (b *fakeBroker) Requeue(ctx context.Context, msg *base.TaskMessage) error { return nil }
func (b *fakeBroker) Len(ctx context.Context, qname string) (int64, error)     { return 0, nil }
func (b *fakeBroker) NotiLen(ctx context.Context, qname string) (int64, error) { return 0, nil }
func (b *fakeBroker) DequeuedTasks(ctx context.Context, qname string) ([]base.Z, error) {
	return nil, nil
}
func (b *fakeBroker) RefillNotifications(ctx context.Context, qname string) (int64, error) {
	return 0, nil
}

func encodeFrame(t *testing.T, msg *base.TaskMessage) []byte {
	t.Helper()
	data, err := base.EncodeMessage(msg)
	if err != nil {
		t.Fatalf("encode message: %v", err)
	}
	var buf bytes.Buffer
	if err := ipc.WriteFrame(&buf, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	return buf.Bytes()
}

func TestRunForkModeSuccessReleasesTask(t *testing.T) {
	msg := &base.TaskMessage{ID: 1, Type: "add", Payload: []byte("1,2"), Queue: "default"}
	in := bytes.NewReader(encodeFrame(t, msg))
	var out bytes.Buffer
	broker := &fakeBroker{}

	lookup := func(typename string) (HandlerFunc, bool) {
		if typename != "add" {
			return nil, false
		}
		return func(ctx context.Context, m *base.TaskMessage) error { return nil }, true
	}

	if err := Run(in, &out, "fork", Deps{Lookup: lookup, Broker: broker, Serializer: jsonSerializer{}}); err != nil {
		t.Fatalf("run: %v", err)
	}

	reply := decodeReply(t, &out)
	if !reply.OK {
		t.Fatalf("expected OK reply, got %+v", reply)
	}
	if len(broker.released) != 1 || broker.released[0].ID != 1 {
		t.Fatalf("expected task 1 released, got %+v", broker.released)
	}
}

func TestRunForkModeHandlerErrorStillReleases(t *testing.T) {
	msg := &base.TaskMessage{ID: 2, Type: "boom", Queue: "default"}
	in := bytes.NewReader(encodeFrame(t, msg))
	var out bytes.Buffer
	broker := &fakeBroker{}

	lookup := func(typename string) (HandlerFunc, bool) {
		return func(ctx context.Context, m *base.TaskMessage) error {
			return errBoom
		}, true
	}

	if err := Run(in, &out, "fork", Deps{Lookup: lookup, Broker: broker, Serializer: jsonSerializer{}}); err != nil {
		t.Fatalf("run: %v", err)
	}

	reply := decodeReply(t, &out)
	if reply.OK {
		t.Fatal("expected a failed reply")
	}
	if reply.Err == "" {
		t.Fatal("expected an error message in the reply")
	}
	if len(broker.released) != 1 {
		t.Fatalf("expected release even on task error, got %+v", broker.released)
	}
}

func TestRunForkModePanicIsConvertedToError(t *testing.T) {
	msg := &base.TaskMessage{ID: 3, Type: "panics", Queue: "default"}
	in := bytes.NewReader(encodeFrame(t, msg))
	var out bytes.Buffer
	broker := &fakeBroker{}

	lookup := func(typename string) (HandlerFunc, bool) {
		return func(ctx context.Context, m *base.TaskMessage) error {
			panic("kaboom")
		}, true
	}

	if err := Run(in, &out, "fork", Deps{Lookup: lookup, Broker: broker, Serializer: jsonSerializer{}}); err != nil {
		t.Fatalf("run: %v", err)
	}

	reply := decodeReply(t, &out)
	if reply.OK {
		t.Fatal("expected a failed reply for a panicking handler")
	}
	if len(broker.released) != 1 {
		t.Fatalf("expected release even after a panic, got %+v", broker.released)
	}
}

func TestRunPreforkModeProcessesMultipleFramesThenStops(t *testing.T) {
	var in bytes.Buffer
	in.Write(encodeFrame(t, &base.TaskMessage{ID: 1, Type: "add", Queue: "default"}))
	in.Write(encodeFrame(t, &base.TaskMessage{ID: 2, Type: "add", Queue: "default"}))
	var out bytes.Buffer
	broker := &fakeBroker{}

	calls := 0
	lookup := func(typename string) (HandlerFunc, bool) {
		return func(ctx context.Context, m *base.TaskMessage) error {
			calls++
			return nil
		}, true
	}

	if err := Run(&in, &out, "prefork", Deps{Lookup: lookup, Broker: broker, Serializer: jsonSerializer{}}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 handler invocations, got %d", calls)
	}
	if len(broker.released) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(broker.released))
	}
}

func decodeReply(t *testing.T, buf *bytes.Buffer) Reply {
	t.Helper()
	r := newBufReader(buf)
	frame, err := ipc.ReadFrame(r)
	if err != nil {
		t.Fatalf("read reply frame: %v", err)
	}
	var reply Reply
	if err := json.Unmarshal(frame, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	return reply
}
