package relayq

import (
	"context"
	"testing"
)

func TestRegistryHandleFuncAndLookup(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.HandleFunc("greet", func(ctx context.Context, task *ResultTask) error {
		called = true
		return nil
	})

	h, ok := reg.Lookup("greet")
	if !ok {
		t.Fatal("expected handler to be found")
	}
	if err := h.ProcessTask(context.Background(), &ResultTask{Task: NewTask("greet", nil)}); err != nil {
		t.Fatalf("process task: %v", err)
	}
	if !called {
		t.Fatal("expected handler to be invoked")
	}
}

func TestRegistryLookupMissing(t *testing.T) {
	reg := NewRegistry()
	if _, ok := reg.Lookup("missing"); ok {
		t.Fatal("expected no handler for an unregistered type")
	}
}

func TestRegistryHandlePanicsOnDuplicate(t *testing.T) {
	reg := NewRegistry()
	reg.HandleFunc("dup", func(context.Context, *ResultTask) error { return nil })

	defer func() {
		if recover() == nil {
			t.Fatal("expected a panic on duplicate registration")
		}
	}()
	reg.HandleFunc("dup", func(context.Context, *ResultTask) error { return nil })
}
