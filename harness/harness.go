// Package harness drives single RPC invocations against a live peer and
// classifies each as success, protocol error, or failure.
//
// The Test* functions are for verification: anything but success fails the
// test. The Log* functions are for inspection: they log whatever the peer
// answered and only fail the test when the call itself could not be carried
// out.
package harness

import (
	"context"
	"errors"
	"fmt"

	"ssb-rpc/client"
	"ssb-rpc/config"
	"ssb-rpc/keyfile"
	"ssb-rpc/logging"
	"ssb-rpc/secretchannel"
	"ssb-rpc/transport"
)

// TB is the part of testing.TB the harness needs. Fatalf must not return.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
}

// Session is an authenticated, multiplexed connection ready for calls.
type Session struct {
	Client *client.Client
	Mux    *transport.Mux
	Keys   *keyfile.KeyPair
}

func (s *Session) Close() error {
	return s.Mux.Close()
}

// Connect loads (or creates) our identity, dials cfg's endpoint and
// authenticates with hs. The remote key defaults to our own. Dial and
// handshake failures come back as *secretchannel.HandshakeError.
func Connect(ctx context.Context, cfg *config.Config, hs secretchannel.Handshaker) (*Session, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := secretchannel.Init(); err != nil {
		return nil, err
	}

	kp, err := keyfile.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load keys: %w", err)
	}
	eph, err := secretchannel.GenerateEphemeral()
	if err != nil {
		return nil, err
	}
	network, err := cfg.Network()
	if err != nil {
		return nil, err
	}
	remote, err := cfg.Remote(kp)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.Timeouts.Handshake)
	defer cancel()
	conn, err := secretchannel.Dial(hctx, cfg.Addr(), hs, secretchannel.Keys{
		NetworkID: network,
		Local:     kp,
		Ephemeral: eph,
		Remote:    remote,
	})
	if err != nil {
		return nil, err
	}
	logging.Log.Infof("connected to %s as %s", cfg.Addr(), kp.ID())

	mux := transport.NewMux(conn)
	return &Session{
		Client: client.NewClient(mux, client.WithTimeout(cfg.Timeouts.Call)),
		Mux:    mux,
		Keys:   kp,
	}, nil
}

// Run connects to cfg's endpoint and hands the client to fn. Failing to
// connect is fatal. The connection is closed when fn returns.
func Run(t TB, cfg *config.Config, fn func(c *client.Client)) {
	t.Helper()
	sess, err := Connect(context.Background(), cfg, secretchannel.PlainHandshaker{})
	if err != nil {
		var hsErr *secretchannel.HandshakeError
		if errors.As(err, &hsErr) {
			t.Logf("tests only work with an ssb server accepting connections on the default port over localhost")
		}
		t.Fatalf("%v\n\nabort test", err)
	}
	defer sess.Close()
	fn(sess.Client)
}
