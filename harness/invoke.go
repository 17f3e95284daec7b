package harness

import (
	"context"

	"ssb-rpc/client"
	"ssb-rpc/config"
	"ssb-rpc/message"
)

// TestSync sends a sync call and fails t unless a non-error reply comes back.
func TestSync[R, E any](t TB, cfg *config.Config, d message.Descriptor) R {
	t.Helper()
	var v R
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		v = Verify(t, InvokeSync[R, E](context.Background(), c, d)).Value()
	})
	return v
}

// TestAsync sends an async call and fails t unless a non-error reply comes back.
func TestAsync[R, E any](t TB, cfg *config.Config, d message.Descriptor) R {
	t.Helper()
	var v R
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		v = Verify(t, InvokeAsync[R, E](context.Background(), c, d)).Value()
	})
	return v
}

// TestSource sends a source call and fails t unless the stream ends cleanly.
func TestSource[R, E any](t TB, cfg *config.Config, d message.Descriptor) []R {
	t.Helper()
	var items []R
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		items = Verify(t, InvokeSource[R, E](context.Background(), c, d, nil)).Values
	})
	return items
}

// LogSync sends a sync call and logs the reply or the peer's error.
func LogSync[R, E any](t TB, cfg *config.Config, d message.Descriptor) {
	t.Helper()
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		Inspect(t, InvokeSync[R, E](context.Background(), c, d))
	})
}

// LogAsync sends an async call and logs the reply or the peer's error.
func LogAsync[R, E any](t TB, cfg *config.Config, d message.Descriptor) {
	t.Helper()
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		Inspect(t, InvokeAsync[R, E](context.Background(), c, d))
	})
}

// LogSource sends a source call and logs every item as it arrives, then the
// error that ended the stream, if any.
func LogSource[R, E any](t TB, cfg *config.Config, d message.Descriptor) {
	t.Helper()
	Run(t, cfg, func(c *client.Client) {
		t.Helper()
		o := InvokeSource[R, E](context.Background(), c, d, func(v R) {
			t.Logf("%+v", v)
		})
		if o.State == StateFailed {
			fail(t, o)
		}
		if o.State == StateErrored {
			t.Logf("%v", o.Err)
		}
	})
}

// Verify fails t unless o succeeded, and returns o otherwise.
func Verify[R any](t TB, o *Outcome[R]) *Outcome[R] {
	t.Helper()
	if o.State != StateCompleted {
		fail(t, o)
	}
	return o
}

// Inspect logs the values of o, or the error the peer answered with. Failures
// that are not the peer's answer fail t.
func Inspect[R any](t TB, o *Outcome[R]) {
	t.Helper()
	switch o.State {
	case StateCompleted:
		for _, v := range o.Values {
			t.Logf("%+v", v)
		}
	case StateErrored:
		t.Logf("%v", o.Err)
	default:
		fail(t, o)
	}
}

func fail[R any](t TB, o *Outcome[R]) {
	t.Helper()
	if o.Leg == LegSend {
		t.Fatalf("Failed to send %s request:\n\n%v", o.Type, o.Err)
	}
	t.Fatalf("Got error receiving: %v", o.Err)
}
