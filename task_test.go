package relayq

import (
	"testing"
	"time"
)

func TestComposeOptionsDefaultsToDefaultQueue(t *testing.T) {
	opt := composeOptions()
	if opt.queue != "default" {
		t.Fatalf("expected default queue, got %q", opt.queue)
	}
	if opt.timeout != 0 {
		t.Fatalf("expected zero timeout, got %s", opt.timeout)
	}
}

func TestComposeOptionsAppliesOverrides(t *testing.T) {
	opt := composeOptions(Queue("critical"), Timeout(45*time.Second))
	if opt.queue != "critical" {
		t.Fatalf("expected queue override, got %q", opt.queue)
	}
	if opt.timeout != 45*time.Second {
		t.Fatalf("expected timeout override, got %s", opt.timeout)
	}
}

func TestJSONSerializerRoundTrip(t *testing.T) {
	type payload struct {
		A int    `json:"a"`
		B string `json:"b"`
	}
	var s JSONSerializer
	data, err := s.Marshal(payload{A: 1, B: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out payload
	if err := s.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.A != 1 || out.B != "x" {
		t.Fatalf("unexpected round trip result: %+v", out)
	}
}
