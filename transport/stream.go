package transport

import (
	"context"
	"sync"

	"ssb-rpc/protocol"
)

type stream struct {
	mux      *Mux
	key      int32 // map key on the Mux
	req      int32 // request number written on outgoing packets
	incoming bool

	mu       sync.Mutex
	inbox    []*protocol.Packet
	signal   chan struct{} // buffered(1); poked whenever inbox or err changes
	err      error
	released bool
}

func newStream(m *Mux, key, req int32, incoming bool) *stream {
	return &stream{
		mux:      m,
		key:      key,
		req:      req,
		incoming: incoming,
		signal:   make(chan struct{}, 1),
	}
}

func (s *stream) ID() int32 { return s.req }

func (s *stream) Write(ctx context.Context, flag protocol.Flag, body []byte) error {
	s.mu.Lock()
	released := s.released
	s.mu.Unlock()
	if released {
		return ErrReleased
	}
	return s.mux.write(ctx, flag, s.req, body)
}

func (s *stream) ReadNext(ctx context.Context) (*protocol.Packet, error) {
	for {
		s.mu.Lock()
		if len(s.inbox) > 0 {
			pkt := s.inbox[0]
			s.inbox[0] = nil
			s.inbox = s.inbox[1:]
			s.mu.Unlock()
			return pkt, nil
		}
		if s.err != nil {
			err := s.err
			s.mu.Unlock()
			return nil, err
		}
		if s.released {
			s.mu.Unlock()
			return nil, ErrReleased
		}
		s.mu.Unlock()

		select {
		case <-s.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (s *stream) Release() {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.released = true
	s.inbox = nil
	s.mu.Unlock()

	s.mux.release(s)
	s.poke()
}

func (s *stream) push(pkt *protocol.Packet) {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return
	}
	s.inbox = append(s.inbox, pkt)
	s.mu.Unlock()
	s.poke()
}

// fail ends the stream with err once queued packets are consumed.
func (s *stream) fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
	s.poke()
}

func (s *stream) poke() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}
