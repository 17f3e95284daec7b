// Package secretchannel establishes the authenticated connection a Mux runs on.
//
// The handshake itself sits behind the Handshaker interface. Dial turns every
// failure on the way to an authenticated connection, including a refused TCP
// dial, into a *HandshakeError.
package secretchannel

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"sync"

	"golang.org/x/crypto/nacl/box"

	"ssb-rpc/keyfile"
)

// EphemeralKeyPair is the curve25519 key pair used for a single connection.
type EphemeralKeyPair struct {
	Public *[32]byte
	Secret *[32]byte
}

// GenerateEphemeral creates a fresh ephemeral key pair.
func GenerateEphemeral() (*EphemeralKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral keys: %w", err)
	}
	return &EphemeralKeyPair{Public: pub, Secret: priv}, nil
}

// Keys is everything one side brings to a handshake.
type Keys struct {
	NetworkID []byte
	Local     *keyfile.KeyPair
	Ephemeral *EphemeralKeyPair
	Remote    ed25519.PublicKey // expected peer identity; unused on the serving side
}

func (k Keys) validate() error {
	if len(k.NetworkID) != 32 {
		return errors.New("network identifier must be 32 bytes")
	}
	if k.Local == nil || k.Ephemeral == nil {
		return errors.New("missing local keys")
	}
	return nil
}

// Handshaker authenticates a raw connection.
type Handshaker interface {
	// Client authenticates towards the peer identified by keys.Remote.
	Client(ctx context.Context, conn net.Conn, keys Keys) (net.Conn, error)
	// Server accepts any peer on the same network and returns its identity.
	Server(ctx context.Context, conn net.Conn, keys Keys) (net.Conn, ed25519.PublicKey, error)
}

// HandshakeError reports that no authenticated connection could be established.
type HandshakeError struct {
	Addr string
	Err  error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("handshake with %s failed: %v", e.Addr, e.Err)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// Dial connects to addr over TCP and runs the client side of hs.
func Dial(ctx context.Context, addr string, hs Handshaker, keys Keys) (net.Conn, error) {
	if err := keys.validate(); err != nil {
		return nil, &HandshakeError{Addr: addr, Err: err}
	}
	if len(keys.Remote) != ed25519.PublicKeySize {
		return nil, &HandshakeError{Addr: addr, Err: errors.New("missing remote key")}
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &HandshakeError{Addr: addr, Err: err}
	}

	secured, err := hs.Client(ctx, conn, keys)
	if err != nil {
		conn.Close()
		return nil, &HandshakeError{Addr: addr, Err: err}
	}
	return secured, nil
}

var (
	initOnce sync.Once
	initErr  error
)

// Init checks once per process that the crypto primitives work, by sealing
// and opening a box between two fresh key pairs. Later calls return the
// first result.
func Init() error {
	initOnce.Do(func() {
		initErr = selfTest()
	})
	return initErr
}

func selfTest() error {
	a, err := GenerateEphemeral()
	if err != nil {
		return err
	}
	b, err := GenerateEphemeral()
	if err != nil {
		return err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("crypto init: %w", err)
	}
	msg := []byte("secretchannel")
	sealed := box.Seal(nil, msg, &nonce, b.Public, a.Secret)
	opened, ok := box.Open(nil, sealed, &nonce, a.Public, b.Secret)
	if !ok || string(opened) != string(msg) {
		return errors.New("crypto init: box self test failed")
	}
	return nil
}
