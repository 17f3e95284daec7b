package harness

import (
	"context"
	"errors"
	"io"

	"golang.org/x/sync/errgroup"

	"ssb-rpc/client"
	"ssb-rpc/logging"
	"ssb-rpc/message"
)

// State is where an invocation stands.
//
//	Idle → Sent → Completed
//	          ↘ Replying (sources, once per item) → Completed
//	Sent → Errored     the peer answered with an error value
//	any  → Failed      send, transport or decode failure
type State int

const (
	StateIdle State = iota
	StateSent
	StateReplying
	StateCompleted
	StateErrored
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSent:
		return "sent"
	case StateReplying:
		return "replying"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Leg names the half of an invocation that failed.
type Leg string

const (
	LegSend    Leg = "send"
	LegReceive Leg = "receive"
)

// Outcome is the terminal result of one invocation.
type Outcome[R any] struct {
	Type   message.CallType
	Kind   client.Kind
	State  State
	Values []R   // one for sync and async, any number for sources
	Err    error // *client.ProtocolError when Errored
	Leg    Leg   // set when Failed
}

// Value returns the reply of a successful sync or async call.
func (o *Outcome[R]) Value() R {
	var zero R
	if len(o.Values) == 0 {
		return zero
	}
	return o.Values[0]
}

// InvokeSync runs a sync call to completion.
func InvokeSync[R, E any](ctx context.Context, c *client.Client, d message.Descriptor) *Outcome[R] {
	sent, reply := client.Sync[R, E](ctx, c, d)
	return drive[R](ctx, message.CallSync, sent, reply, nil)
}

// InvokeAsync runs an async call to completion.
func InvokeAsync[R, E any](ctx context.Context, c *client.Client, d message.Descriptor) *Outcome[R] {
	sent, reply := client.Async[R, E](ctx, c, d)
	return drive[R](ctx, message.CallAsync, sent, reply, nil)
}

// InvokeSource reads a source call to its end. onItem, if set, sees every
// item as it arrives.
func InvokeSource[R, E any](ctx context.Context, c *client.Client, d message.Descriptor, onItem func(R)) *Outcome[R] {
	sent, replies := client.Source[R, E](ctx, c, d)
	defer replies.Close()
	return drive[R](ctx, message.CallSource, sent, replies, onItem)
}

// drive awaits the send leg and the receive leg together.
func drive[R any](ctx context.Context, typ message.CallType, sent *client.Sent, recv client.Receiver[R], onItem func(R)) *Outcome[R] {
	o := &Outcome[R]{Type: typ, State: StateIdle}

	var (
		g       errgroup.Group
		sendErr error
		recvErr error
	)
	g.Go(func() error {
		if sendErr = sent.Wait(ctx); sendErr == nil {
			logging.Log.Debugf("%s call %s", typ, StateSent)
		}
		return sendErr
	})
	g.Go(func() error {
		for {
			v, err := recv.Next(ctx)
			if err == io.EOF {
				return nil
			}
			if err != nil {
				recvErr = err
				return err
			}
			if typ.IsStream() {
				logging.Log.Debugf("%s item %d: %s", typ, len(o.Values)+1, StateReplying)
			}
			o.Values = append(o.Values, v)
			if onItem != nil {
				onItem(v)
			}
		}
	})
	if err := g.Wait(); err == nil {
		o.State = StateCompleted
		o.Kind = client.KindSuccess
		return o
	}

	// Sent.Wait also returns ctx's error; only a *TransportError is the
	// send leg's own failure
	switch {
	case errors.As(sendErr, new(*client.TransportError)):
		o.State, o.Kind, o.Leg, o.Err = StateFailed, client.KindFailure, LegSend, sendErr
	case client.KindOf(recvErr) == client.KindProtocolError:
		o.State, o.Kind, o.Err = StateErrored, client.KindProtocolError, recvErr
	default:
		err := recvErr
		if err == nil {
			err = sendErr
		}
		o.State, o.Kind, o.Leg, o.Err = StateFailed, client.KindFailure, LegReceive, err
	}
	logging.Log.Debugf("%s call %s: %v", typ, o.State, o.Err)
	return o
}

// IsRemote reports whether the outcome carries an error value sent by the peer.
func (o *Outcome[R]) IsRemote() bool {
	return o.State == StateErrored && client.IsProtocolError(o.Err)
}
