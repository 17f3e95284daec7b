// Package transport splits one authenticated connection into numbered request streams.
//
// Each call a peer makes gets a fresh positive request number. Every packet of that
// call carries the number, and every packet answering it carries the negated number.
// A single background goroutine (recvLoop) reads packets and routes them by number
// to the inbox of the stream they belong to.
//
//	goroutine-1 ──Open() → req 1──┐
//	goroutine-2 ──Open() → req 2──┼──→ single conn ──→ peer
//	inbound     ←── req 5 (new) ──┘
//
//	recvLoop:  ←── packet(req=-2) → outgoing[2].inbox → goroutine-2 wakes up
//	           ←── packet(req=5)  → incoming[5] created → handler goroutine
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"ssb-rpc/logging"
	"ssb-rpc/protocol"
)

var (
	// ErrClosed is returned once the connection is gone, whatever the cause.
	ErrClosed = errors.New("transport: connection closed")
	// ErrReleased is returned when writing on a stream after Release.
	ErrReleased = errors.New("transport: stream released")
)

// Stream is one request stream on a Mux. It is owned by a single caller.
type Stream interface {
	// ID is the request number this stream writes with.
	ID() int32
	// Write sends one packet on the stream. A write still blocked when ctx
	// is done is aborted, and the connection with it.
	Write(ctx context.Context, flag protocol.Flag, body []byte) error
	// ReadNext blocks until the next packet for this stream arrives, the
	// connection fails, or ctx is done.
	ReadNext(ctx context.Context) (*protocol.Packet, error)
	// Release detaches the stream from the Mux. Packets arriving later are dropped.
	Release()
}

// Handler serves a stream the peer opened. The stream's first packet is its request.
type Handler func(s Stream)

// Option configures a Mux.
type Option func(*Mux)

// WithHandler makes the Mux accept calls from the peer.
// Without a handler, inbound requests are logged and dropped.
func WithHandler(h Handler) Option {
	return func(m *Mux) { m.handler = h }
}

// Mux manages a single multiplexed connection.
type Mux struct {
	conn    io.ReadWriteCloser
	sending chan struct{} // held while a frame is written so packets from different streams never interleave
	handler Handler

	mu       sync.Mutex
	seq      int32             // last request number handed out; never reused
	outgoing map[int32]*stream // streams we opened, keyed by request number
	incoming map[int32]*stream // streams the peer opened, keyed by its request number
	closed   bool
	err      error
	done     chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewMux wraps conn and starts the receive loop.
func NewMux(conn io.ReadWriteCloser, opts ...Option) *Mux {
	m := &Mux{
		conn:     conn,
		outgoing: make(map[int32]*stream),
		incoming: make(map[int32]*stream),
		done:     make(chan struct{}),
		sending:  make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	go m.recvLoop()
	return m
}

// Open allocates the next request number and returns a stream for it.
// Nothing is written until the caller writes the request packet.
func (m *Mux) Open() (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, m.err
	}
	if m.seq == math.MaxInt32 {
		return nil, fmt.Errorf("transport: request numbers exhausted")
	}
	m.seq++
	s := newStream(m, m.seq, m.seq, false)
	m.outgoing[m.seq] = s
	return s, nil
}

// Done is closed when the connection has shut down.
func (m *Mux) Done() <-chan struct{} {
	return m.done
}

// Err returns why the connection shut down, or nil while it is open.
func (m *Mux) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// goodbyeTimeout bounds how long Close waits to say goodbye.
const goodbyeTimeout = 500 * time.Millisecond

// Close says goodbye to the peer and closes the connection.
// Every open stream fails with ErrClosed. A write stuck on a peer that stopped
// reading does not hold Close up: the goodbye is skipped and closing the
// connection releases the writer.
func (m *Mux) Close() error {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if !closed {
		timer := time.NewTimer(goodbyeTimeout)
		select {
		case m.sending <- struct{}{}:
			// never handed back: nothing follows the goodbye
			m.goodbye(timer.C)
		case <-timer.C:
			logging.Log.Debugf("goodbye skipped: a write is stuck")
		case <-m.done:
		}
		timer.Stop()
	}
	m.shutdown(ErrClosed)
	return m.closeConn()
}

func (m *Mux) goodbye(timeout <-chan time.Time) {
	sent := make(chan error, 1)
	go func() { sent <- protocol.EncodeGoodbye(m.conn) }()
	select {
	case err := <-sent:
		if err != nil {
			logging.Log.Debugf("goodbye not sent: %v", err)
		}
	case <-timeout:
		logging.Log.Debugf("goodbye not sent: peer is not reading")
	}
}

func (m *Mux) closeConn() error {
	m.closeOnce.Do(func() {
		m.closeErr = m.conn.Close()
	})
	return m.closeErr
}

func (m *Mux) write(ctx context.Context, flag protocol.Flag, req int32, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case m.sending <- struct{}{}:
	case <-m.done:
		return m.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-m.sending }()

	m.mu.Lock()
	closed, cause := m.closed, m.err
	m.mu.Unlock()
	if closed {
		return cause
	}

	header := protocol.Header{
		Flag:    flag,
		BodyLen: uint32(len(body)),
		Req:     req,
	}

	stop := m.abortOn(ctx)
	err := protocol.Encode(m.conn, &header, body)
	stop()
	if err != nil {
		// a frame may be half written; nothing after it would parse
		err = fmt.Errorf("%w: %w", ErrClosed, err)
		m.shutdown(err)
		m.closeConn()
		if cerr := ctx.Err(); cerr != nil {
			return fmt.Errorf("%w: %w", cerr, err)
		}
		return err
	}
	logging.Log.Debugf("→ req=%d flag=%v len=%d", req, flag, len(body))
	return nil
}

type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// abortOn makes a write blocked on the connection return once ctx is done,
// through a write deadline, or by closing connections that have none.
// The returned stop must be called when the write is over.
func (m *Mux) abortOn(ctx context.Context) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	d, ok := m.conn.(writeDeadliner)
	fired := make(chan struct{})
	after := context.AfterFunc(ctx, func() {
		defer close(fired)
		if ok && d.SetWriteDeadline(time.Now()) == nil {
			return
		}
		m.closeConn()
	})
	return func() {
		if after() {
			return
		}
		<-fired
		if ok {
			d.SetWriteDeadline(time.Time{})
		}
	}
}

// recvLoop is the only reader of the connection. It never blocks on a slow
// stream: inboxes are unbounded.
func (m *Mux) recvLoop() {
	for {
		pkt, err := protocol.ReadPacket(m.conn)
		if err != nil {
			if errors.Is(err, protocol.ErrGoodbye) || errors.Is(err, io.EOF) {
				m.shutdown(ErrClosed)
			} else {
				m.shutdown(fmt.Errorf("%w: %w", ErrClosed, err))
			}
			m.closeConn()
			return
		}
		logging.Log.Debugf("← req=%d flag=%v len=%d", pkt.Req, pkt.Flag, len(pkt.Body))

		if pkt.Req < 0 {
			m.routeReply(pkt)
		} else {
			m.routeRequest(pkt)
		}
	}
}

func (m *Mux) routeReply(pkt *protocol.Packet) {
	m.mu.Lock()
	s, ok := m.outgoing[-pkt.Req]
	m.mu.Unlock()
	if !ok {
		// the caller released the stream already
		logging.Log.Debugf("dropping late packet for req %d", -pkt.Req)
		return
	}
	s.push(pkt)
}

func (m *Mux) routeRequest(pkt *protocol.Packet) {
	m.mu.Lock()
	s, ok := m.incoming[pkt.Req]
	if ok {
		m.mu.Unlock()
		s.push(pkt)
		return
	}
	if pkt.Flag.IsEndErr() {
		m.mu.Unlock()
		// the peer ending a stream we have finished with
		logging.Log.Debugf("dropping end for finished inbound req %d", pkt.Req)
		return
	}
	if m.handler == nil {
		m.mu.Unlock()
		logging.Log.Warningf("no handler for inbound request %d, dropping", pkt.Req)
		return
	}
	s = newStream(m, pkt.Req, -pkt.Req, true)
	m.incoming[pkt.Req] = s
	m.mu.Unlock()

	s.push(pkt)
	go m.handler(s)
}

// shutdown fails every open stream with err. Only the first call has an effect.
func (m *Mux) shutdown(err error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.err = err
	streams := make([]*stream, 0, len(m.outgoing)+len(m.incoming))
	for _, s := range m.outgoing {
		streams = append(streams, s)
	}
	for _, s := range m.incoming {
		streams = append(streams, s)
	}
	m.outgoing = make(map[int32]*stream)
	m.incoming = make(map[int32]*stream)
	m.mu.Unlock()

	for _, s := range streams {
		s.fail(err)
	}
	close(m.done)
	logging.Log.Noticef("connection closed: %v", err)
}

func (m *Mux) release(s *stream) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.incoming {
		if m.incoming[s.key] == s {
			delete(m.incoming, s.key)
		}
		return
	}
	if m.outgoing[s.key] == s {
		delete(m.outgoing, s.key)
	}
}
