package client

import (
	"context"
	"fmt"
	"io"
	"sync"

	"ssb-rpc/message"
)

// Receiver is the reply side of any call: one value for sync and async,
// any number for source, then io.EOF.
type Receiver[R any] interface {
	Next(ctx context.Context) (R, error)
}

// Sync calls a procedure that answers exactly once.
// R is the response type, E the type of the error object the peer may send instead.
func Sync[R, E any](ctx context.Context, c *Client, d message.Descriptor) (*Sent, *Reply[R, E]) {
	cl := c.start(ctx, d, message.CallSync)
	return cl.sent, &Reply[R, E]{call: cl}
}

// Async is Sync for procedures the peer answers asynchronously. The wire exchange is the same.
func Async[R, E any](ctx context.Context, c *Client, d message.Descriptor) (*Sent, *Reply[R, E]) {
	cl := c.start(ctx, d, message.CallAsync)
	return cl.sent, &Reply[R, E]{call: cl}
}

// Source calls a procedure that answers with a stream of values.
func Source[R, E any](ctx context.Context, c *Client, d message.Descriptor) (*Sent, *Replies[R, E]) {
	cl := c.start(ctx, d, message.CallSource)
	return cl.sent, &Replies[R, E]{call: cl}
}

// Invoke calls d with the protocol its Type names.
func Invoke[R, E any](ctx context.Context, c *Client, d message.Descriptor) (*Sent, Receiver[R], error) {
	switch d.Type() {
	case message.CallSync:
		sent, reply := Sync[R, E](ctx, c, d)
		return sent, reply, nil
	case message.CallAsync:
		sent, reply := Async[R, E](ctx, c, d)
		return sent, reply, nil
	case message.CallSource:
		sent, replies := Source[R, E](ctx, c, d)
		return sent, replies, nil
	}
	return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedType, d.Type())
}

// Reply is the single answer to a sync or async call.
type Reply[R, E any] struct {
	call *call

	once sync.Once
	val  R
	err  error

	mu       sync.Mutex
	consumed bool
}

// Await waits for the answer. It fails with the send error if the request was
// never written, *ProtocolError[E] if the peer answered with an error,
// *DecodeError if the answer matches neither type, and *TransportError
// wrapping ErrPrematureClose if the stream ended without an answer.
// The result is kept: later calls return it again.
func (r *Reply[R, E]) Await(ctx context.Context) (R, error) {
	r.once.Do(func() {
		r.val, r.err = r.receive(ctx)
	})
	return r.val, r.err
}

func (r *Reply[R, E]) receive(ctx context.Context) (R, error) {
	defer r.call.finish()

	var zero R
	pkt, err := r.call.readNext(ctx)
	if err != nil {
		return zero, err
	}
	if pkt.Flag.IsEndErr() {
		if err := decodeEnd[E](pkt); err != nil {
			return zero, err
		}
		return zero, &TransportError{Op: "receive", Err: ErrPrematureClose}
	}

	var v R
	if err := decode(pkt, &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Next returns the answer once, then io.EOF.
func (r *Reply[R, E]) Next(ctx context.Context) (R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.consumed {
		var zero R
		if r.err != nil {
			return zero, r.err
		}
		return zero, io.EOF
	}
	r.consumed = true
	return r.Await(ctx)
}

// Replies is the answer stream of a source call. It is read once, in order.
type Replies[R, E any] struct {
	call *call

	mu  sync.Mutex
	err error // terminal; io.EOF after a clean end
}

// Next returns the next value. It returns io.EOF after the peer ended the
// stream cleanly, and the error that ended it otherwise. Once the stream has
// ended, Next keeps returning the same error.
func (r *Replies[R, E]) Next(ctx context.Context) (R, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero R
	if r.err != nil {
		return zero, r.err
	}

	pkt, err := r.call.readNext(ctx)
	if err != nil {
		return zero, r.stop(err)
	}
	if pkt.Flag.IsEndErr() {
		if err := decodeEnd[E](pkt); err != nil {
			return zero, r.stop(err)
		}
		return zero, r.stop(io.EOF)
	}

	var v R
	if err := decode(pkt, &v); err != nil {
		return zero, r.stop(err)
	}
	return v, nil
}

// Collect reads the stream to its end. On failure it returns the values
// received so far along with the error.
func (r *Replies[R, E]) Collect(ctx context.Context) ([]R, error) {
	var items []R
	for {
		v, err := r.Next(ctx)
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			return items, err
		}
		items = append(items, v)
	}
}

// Close abandons the stream. The peer is told to stop sending.
func (r *Replies[R, E]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err == nil {
		r.stop(ErrAborted)
	}
}

func (r *Replies[R, E]) stop(err error) error {
	r.err = err
	r.call.finish()
	return err
}
