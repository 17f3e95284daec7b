// Package server implements a muxrpc peer that answers sync, async and source
// calls, used as the loopback counterpart of the client.
//
// Request processing pipeline:
//
//	Accept conn → handshake → Mux (single goroutine reads packets)
//	  → for each new request number: go handleStream (parallel processing)
//	    → decode Request → Middleware Chain → businessHandler → replies → end packet
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"ssb-rpc/codec"
	"ssb-rpc/config"
	"ssb-rpc/keyfile"
	"ssb-rpc/logging"
	"ssb-rpc/message"
	"ssb-rpc/middleware"
	"ssb-rpc/protocol"
	"ssb-rpc/secretchannel"
	"ssb-rpc/transport"
)

var (
	ErrNoSuchMethod = errors.New("no such method")
	ErrWrongType    = errors.New("wrong call type")
	ErrShuttingDown = errors.New("server is shutting down")

	errAnswered = errors.New("async call already answered")
	errFinished = errors.New("call already finished")
)

// AsyncFunc answers a sync or async call with a single value.
type AsyncFunc func(ctx context.Context, req *message.Request) (any, error)

// SourceFunc answers a source call by emitting values. Returning ends the stream.
// ctx is cancelled when the caller abandons the stream.
type SourceFunc func(ctx context.Context, req *message.Request, emit func(any) error) error

type handler struct {
	async  AsyncFunc
	source SourceFunc
}

// Server answers muxrpc calls from authenticated peers.
type Server struct {
	handlers    map[string]*handler // "blobs.has" → handler
	keys        *keyfile.KeyPair    // our long-term identity
	networkID   []byte              // peers on other networks fail the handshake
	handshaker  secretchannel.Handshaker
	hsTimeout   time.Duration
	wg          sync.WaitGroup          // Tracks in-flight requests for graceful shutdown
	shutdown    atomic.Bool             // Set to true during shutdown to suppress Accept errors
	middlewares []middleware.Middleware // Registered middlewares (applied in order)
	handler     middleware.HandlerFunc  // middleware(middleware(...(businessHandler)))

	mu       sync.Mutex
	listener net.Listener
	conns    map[*transport.Mux]struct{}
}

type Option func(*Server)

func WithHandshaker(h secretchannel.Handshaker) Option {
	return func(s *Server) { s.handshaker = h }
}

func WithNetworkID(id []byte) Option {
	return func(s *Server) { s.networkID = id }
}

func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) { s.hsTimeout = d }
}

// NewServer creates a server presenting keys, on the main network unless
// WithNetworkID says otherwise.
func NewServer(keys *keyfile.KeyPair, opts ...Option) *Server {
	cfg := config.Default()
	network, _ := cfg.Network()

	s := &Server{
		handlers:   make(map[string]*handler),
		keys:       keys,
		networkID:  network,
		handshaker: secretchannel.PlainHandshaker{},
		hsTimeout:  cfg.Timeouts.Handshake,
		conns:      make(map[*transport.Mux]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleAsync registers fn under a dotted name. It serves both sync and async calls.
func (svr *Server) HandleAsync(name string, fn AsyncFunc) {
	svr.handlers[name] = &handler{async: fn}
}

// HandleSource registers fn under a dotted name for source calls.
func (svr *Server) HandleSource(name string, fn SourceFunc) {
	svr.handlers[name] = &handler{source: fn}
}

// Register exposes the methods of rcvr under its lowerCamel type name,
// e.g. (*Blobs).Has as "blobs.has".
func (svr *Server) Register(rcvr any) error {
	t := fmt.Sprintf("%T", rcvr)
	name := t
	for i := len(t) - 1; i >= 0; i-- {
		if t[i] == '.' || t[i] == '*' {
			name = t[i+1:]
			break
		}
	}
	return svr.RegisterName(lowerFirst(name), rcvr)
}

// RegisterName exposes the methods of rcvr under name. An empty name puts
// them at the top level, e.g. "whoami".
func (svr *Server) RegisterName(name string, rcvr any) error {
	svc, err := NewService(name, rcvr)
	if err != nil {
		return err
	}
	for method, h := range svc.handlers() {
		svr.handlers[method] = h
	}
	return nil
}

// Use registers a middleware. Middlewares are applied in the order they are added.
func (svr *Server) Use(mw middleware.Middleware) {
	svr.middlewares = append(svr.middlewares, mw)
}

// Serve listens on address and handles connections until Shutdown.
func (svr *Server) Serve(network, address string) error {
	listener, err := net.Listen(network, address)
	if err != nil {
		return err
	}
	return svr.ServeListener(listener)
}

// ServeListener handles connections accepted from l until Shutdown.
func (svr *Server) ServeListener(l net.Listener) error {
	// Chain(A, B, C)(handler) → A(B(C(handler)))
	svr.handler = middleware.Chain(svr.middlewares...)(svr.businessHandler)

	svr.mu.Lock()
	svr.listener = l
	svr.mu.Unlock()
	logging.Log.Noticef("serving %s on %s", svr.keys.ID(), l.Addr())

	for {
		conn, err := l.Accept()
		if err != nil {
			// listener.Close() during shutdown makes Accept fail
			if svr.shutdown.Load() {
				return nil
			}
			return err
		}
		go svr.handleConn(conn)
	}
}

// handleConn authenticates the peer, then serves its calls until the
// connection closes.
func (svr *Server) handleConn(conn net.Conn) {
	eph, err := secretchannel.GenerateEphemeral()
	if err != nil {
		logging.Log.Error(err)
		conn.Close()
		return
	}
	keys := secretchannel.Keys{NetworkID: svr.networkID, Local: svr.keys, Ephemeral: eph}

	ctx, cancel := context.WithTimeout(context.Background(), svr.hsTimeout)
	secured, peer, err := svr.handshaker.Server(ctx, conn, keys)
	cancel()
	if err != nil {
		logging.Log.Warningf("handshake with %s failed: %v", conn.RemoteAddr(), err)
		conn.Close()
		return
	}
	logging.Log.Noticef("%s connected from %s", keyfile.FormatID(peer), conn.RemoteAddr())

	mux := transport.NewMux(secured, transport.WithHandler(svr.handleStream))
	svr.mu.Lock()
	svr.conns[mux] = struct{}{}
	svr.mu.Unlock()

	<-mux.Done()

	svr.mu.Lock()
	delete(svr.conns, mux)
	svr.mu.Unlock()
}

// handleStream serves one call: decode → middleware → business logic → replies → end.
func (svr *Server) handleStream(s transport.Stream) {
	defer s.Release()

	first, err := s.ReadNext(context.Background())
	if err != nil {
		return
	}
	w := &replyWriter{stream: s, typ: message.CallAsync}
	if first.Flag.IsStream() {
		w.typ = message.CallSource
	}

	if svr.shutdown.Load() {
		w.finish(ErrShuttingDown)
		return
	}
	svr.wg.Add(1)
	defer svr.wg.Done()

	var req message.Request
	if err := json.Unmarshal(first.Body, &req); err != nil {
		w.finish(fmt.Errorf("malformed request: %w", err))
		return
	}
	w.typ = req.Type

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.ctx = ctx
	if req.Type.IsStream() {
		// the caller ending its side abandons the stream
		go func() {
			pkt, err := s.ReadNext(ctx)
			if err == nil && pkt.Flag.IsEndErr() {
				cancel()
			}
		}()
	}

	var herr error
	if perr := logging.RecoverToLog(func() {
		herr = svr.handler(ctx, &req, w)
	}); perr != nil {
		herr = perr
	}
	w.finish(herr)
}

// businessHandler dispatches a request to the handler registered for its name.
func (svr *Server) businessHandler(ctx context.Context, req *message.Request, w middleware.ReplyWriter) error {
	h, ok := svr.handlers[req.Method()]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSuchMethod, req.Method())
	}

	if h.source != nil {
		if req.Type != message.CallSource {
			return fmt.Errorf("%w: %s is a source, called as %s", ErrWrongType, req.Method(), req.Type)
		}
		return h.source(ctx, req, w.Send)
	}

	if req.Type != message.CallSync && req.Type != message.CallAsync {
		return fmt.Errorf("%w: %s is async, called as %s", ErrWrongType, req.Method(), req.Type)
	}
	v, err := h.async(ctx, req)
	if err != nil {
		return err
	}
	return w.Send(v)
}

// Shutdown performs graceful shutdown:
//  1. Set shutdown flag (so Accept error is recognized as intentional)
//  2. Close the listener (stop accepting new connections)
//  3. Wait for in-flight requests to finish (with timeout)
//  4. Say goodbye on every open connection
func (svr *Server) Shutdown(timeout time.Duration) error {
	svr.shutdown.Store(true)
	svr.mu.Lock()
	if svr.listener != nil {
		svr.listener.Close()
	}
	svr.mu.Unlock()

	done := make(chan struct{})
	go func() {
		svr.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-time.After(timeout):
		err = fmt.Errorf("timeout waiting for ongoing requests to finish")
	}

	svr.mu.Lock()
	muxes := make([]*transport.Mux, 0, len(svr.conns))
	for m := range svr.conns {
		muxes = append(muxes, m)
	}
	svr.mu.Unlock()
	for _, m := range muxes {
		m.Close()
	}
	return err
}

// endTimeout bounds the final packet of a call. A peer that takes longer to
// read it loses the connection.
const endTimeout = 5 * time.Second

// replyWriter writes the packets of one call. After finish it refuses
// further writes, so a handler that outlives its timeout cannot corrupt the call.
type replyWriter struct {
	stream transport.Stream
	typ    message.CallType
	ctx    context.Context // ends when the caller abandons the call

	mu   sync.Mutex
	sent int
	done bool
}

func (w *replyWriter) Send(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return errFinished
	}
	if !w.typ.IsStream() && w.sent > 0 {
		return errAnswered
	}

	c := codec.For(v)
	body, err := c.Encode(v)
	if err != nil {
		return err
	}
	flag := codec.Flag(c)
	if w.typ.IsStream() {
		flag |= protocol.FlagStream
	}
	if w.ctx != nil {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}
	w.sent++
	// a blocked reply is released by the connection closing, not by ctx,
	// so one abandoned call cannot take the connection down
	return w.stream.Write(context.Background(), flag, body)
}

func (w *replyWriter) finish(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.done {
		return
	}
	w.done = true

	end := protocol.FlagEndErr | protocol.FlagJSON
	if w.typ.IsStream() {
		end |= protocol.FlagStream
	}

	ctx, cancel := context.WithTimeout(context.Background(), endTimeout)
	defer cancel()

	var werr error
	switch {
	case err != nil:
		body, merr := json.Marshal(message.NewError(err))
		if merr != nil {
			body = []byte(`{"name":"Error","message":"unencodable error"}`)
		}
		werr = w.stream.Write(ctx, end, body)
	case w.typ.IsStream():
		werr = w.stream.Write(ctx, end, protocol.EndBody)
	case w.sent == 0:
		werr = w.stream.Write(ctx, protocol.FlagJSON, []byte("null"))
	}
	if werr != nil {
		logging.Log.Debugf("reply on req %d not sent: %v", w.stream.ID(), werr)
	}
}
