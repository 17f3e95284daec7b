// Package client turns RPC descriptors into muxrpc calls.
//
// Every call opens a fresh stream, writes the request on a background
// goroutine, and hands back two observables: a *Sent that resolves once the
// request is written, and a reply side that decodes what the peer answers.
// Sync and async calls get one reply, source calls a sequence of them.
//
//	Sync(ctx, c, d) ──→ writer goroutine: Open → encode → Write → Sent resolves
//	                └─→ Reply.Await: wait Sent → ReadNext → decode R or E
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"ssb-rpc/codec"
	"ssb-rpc/logging"
	"ssb-rpc/message"
	"ssb-rpc/protocol"
	"ssb-rpc/transport"
)

// DefaultTimeout bounds a call unless WithTimeout says otherwise.
const DefaultTimeout = 30 * time.Second

// endTimeout bounds the end packet a stream call sends when it is finished.
const endTimeout = time.Second

// Multiplexer hands out fresh streams on one connection. *transport.Mux implements it.
type Multiplexer interface {
	Open() (transport.Stream, error)
}

type Client struct {
	mux     Multiplexer
	timeout time.Duration
}

type Option func(*Client)

// WithTimeout sets the budget of each call, from start to last reply.
// Zero means calls are bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func NewClient(mux Multiplexer, opts ...Option) *Client {
	c := &Client{
		mux:     mux,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sent resolves once the request of a call has been written, or failed to be.
type Sent struct {
	done chan struct{}
	err  error
}

func newSent() *Sent {
	return &Sent{done: make(chan struct{})}
}

func (s *Sent) resolve(err error) {
	s.err = err
	close(s.done)
}

// Done is closed when the send leg has finished.
func (s *Sent) Done() <-chan struct{} { return s.done }

// Err returns the send failure once Done is closed, and nil before.
func (s *Sent) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

// Wait blocks until the send leg finishes or ctx is done.
func (s *Sent) Wait(ctx context.Context) error {
	select {
	case <-s.done:
		return s.err
	default:
	}
	select {
	case <-s.done:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call is the state shared by the two legs of one invocation.
type call struct {
	ctx    context.Context
	cancel context.CancelFunc
	desc   message.Descriptor
	typ    message.CallType
	sent   *Sent
	stream transport.Stream // written by the send leg before sent resolves

	finishOnce sync.Once
}

func (c *Client) start(ctx context.Context, d message.Descriptor, typ message.CallType) *call {
	var (
		cctx   context.Context
		cancel context.CancelFunc
	)
	if c.timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, c.timeout)
	} else {
		cctx, cancel = context.WithCancel(ctx)
	}

	cl := &call{
		ctx:    cctx,
		cancel: cancel,
		desc:   d,
		typ:    typ,
		sent:   newSent(),
	}
	go cl.send(c.mux)
	return cl
}

// send is the writer leg.
func (cl *call) send(mux Multiplexer) {
	fail := func(op string, err error) {
		cl.sent.resolve(&TransportError{Op: op, Err: err})
		cl.cancel()
	}

	req, err := message.NewRequest(cl.desc)
	if err != nil {
		fail("encode", err)
		return
	}
	req.Type = cl.typ
	body, err := (&codec.JSONCodec{}).Encode(req)
	if err != nil {
		fail("encode", err)
		return
	}

	if err := cl.ctx.Err(); err != nil {
		fail("send", err)
		return
	}
	s, err := mux.Open()
	if err != nil {
		fail("open", err)
		return
	}

	flag := protocol.FlagJSON
	if cl.typ.IsStream() {
		flag |= protocol.FlagStream
	}
	if err := s.Write(cl.ctx, flag, body); err != nil {
		s.Release()
		fail("send", err)
		return
	}
	logging.Log.Debugf("%s %s sent on req %d", cl.typ, req.Method(), s.ID())

	cl.stream = s
	cl.sent.resolve(nil)
}

// readNext waits for the send leg, then for the next packet of the call.
// Receive-side failures come back as *TransportError unless ctx or the call's
// own deadline ended the wait.
func (cl *call) readNext(ctx context.Context) (*protocol.Packet, error) {
	rctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(cl.ctx, cancel)
	defer stop()

	if err := cl.sent.Wait(rctx); err != nil {
		if cerr := cl.ctxErr(ctx); cerr != nil && !errors.As(err, new(*TransportError)) {
			return nil, cerr
		}
		return nil, err
	}

	pkt, err := cl.stream.ReadNext(rctx)
	if err != nil {
		if cerr := cl.ctxErr(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, &TransportError{Op: "receive", Err: fmt.Errorf("%w: %w", ErrPrematureClose, err)}
	}
	return pkt, nil
}

func (cl *call) ctxErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return cl.ctx.Err()
}

// finish releases the stream once the send leg is done. Stream calls tell the
// peer they are finished with an end packet first.
func (cl *call) finish() {
	cl.finishOnce.Do(func() {
		cl.cancel()
		cleanup := func() {
			if cl.sent.err != nil || cl.stream == nil {
				return
			}
			if cl.typ.IsStream() {
				ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
				err := cl.stream.Write(ctx, protocol.FlagStream|protocol.FlagEndErr|protocol.FlagJSON, protocol.EndBody)
				cancel()
				if err != nil {
					logging.Log.Debugf("end of req %d not sent: %v", cl.stream.ID(), err)
				}
			}
			cl.stream.Release()
		}
		select {
		case <-cl.sent.done:
			cleanup()
		default:
			go func() {
				<-cl.sent.done
				cleanup()
			}()
		}
	})
}

func decode(pkt *protocol.Packet, v any) error {
	if err := codec.ForFlag(pkt.Flag).Decode(pkt.Body, v); err != nil {
		return &DecodeError{Body: pkt.Body, Err: err}
	}
	return nil
}

// decodeEnd returns nil for a clean end, otherwise the error the packet carries.
func decodeEnd[E any](pkt *protocol.Packet) error {
	if pkt.IsEnd() {
		return nil
	}
	var e E
	if err := decode(pkt, &e); err != nil {
		return err
	}
	return &ProtocolError[E]{Value: e}
}
