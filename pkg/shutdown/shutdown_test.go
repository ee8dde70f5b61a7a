package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/simplco/botkeeper/pkg/logging"
)

func testLogger() *logging.Logger {
	return logging.New(logging.ERROR, false)
}

func TestShutdown_RunsHooksInReverseOrder(t *testing.T) {
	m := New(time.Second, testLogger())

	var order []string
	m.Register("first", func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register("second", func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})
	m.Register("third", func(ctx context.Context) error {
		order = append(order, "third")
		return nil
	})

	m.Shutdown()

	want := []string{"third", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("ran %d hooks, want %d", len(order), len(want))
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("hook %d ran as %q, want %q", i, order[i], want[i])
		}
	}
}

func TestShutdown_HookFailureDoesNotStopOthers(t *testing.T) {
	m := New(time.Second, testLogger())

	var ran []string
	m.Register("ok", func(ctx context.Context) error {
		ran = append(ran, "ok")
		return nil
	})
	m.Register("broken", func(ctx context.Context) error {
		return errors.New("boom")
	})

	m.Shutdown()

	if len(ran) != 1 || ran[0] != "ok" {
		t.Errorf("surviving hooks = %v, want [ok]", ran)
	}
}

func TestShutdown_HooksSeeTimeout(t *testing.T) {
	m := New(50*time.Millisecond, testLogger())

	var deadlineSet bool
	m.Register("check", func(ctx context.Context) error {
		_, deadlineSet = ctx.Deadline()
		return nil
	})

	m.Shutdown()

	if !deadlineSet {
		t.Error("hook context has no deadline")
	}
}

func TestContext_CancelPropagates(t *testing.T) {
	m := New(time.Second, testLogger())

	ctx, cancel := m.Context(context.Background())
	cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context not cancelled")
	}
}
