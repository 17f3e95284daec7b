package secretchannel

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/nacl/box"
)

// hello layout: network id | long-term key | ephemeral key | signature
const helloSize = 32 + ed25519.PublicKeySize + 32 + ed25519.SignatureSize

var (
	ErrWrongNetwork   = errors.New("peer is on a different network")
	ErrBadSignature   = errors.New("peer hello signature is invalid")
	ErrUnexpectedPeer = errors.New("peer identity does not match the expected key")
	ErrBadProof       = errors.New("peer could not prove its ephemeral key")
)

// PlainHandshaker authenticates both sides for loopback use.
//
// Each side sends a hello signed with its long-term key, then proves it holds
// the ephemeral secret by boxing the other side's long-term key with the
// shared key. The connection is returned unencrypted.
type PlainHandshaker struct{}

func (PlainHandshaker) Client(ctx context.Context, conn net.Conn, keys Keys) (net.Conn, error) {
	if err := keys.validate(); err != nil {
		return nil, err
	}
	defer withDeadline(ctx, conn)()

	if _, err := conn.Write(hello(keys)); err != nil {
		return nil, fmt.Errorf("send hello: %w", err)
	}
	peer, peerEph, err := readHello(conn, keys.NetworkID)
	if err != nil {
		return nil, err
	}
	if !peer.Equal(keys.Remote) {
		return nil, ErrUnexpectedPeer
	}
	if err := exchangeProofs(conn, keys, peer, peerEph, true); err != nil {
		return nil, err
	}
	return conn, nil
}

func (PlainHandshaker) Server(ctx context.Context, conn net.Conn, keys Keys) (net.Conn, ed25519.PublicKey, error) {
	if err := keys.validate(); err != nil {
		return nil, nil, err
	}
	defer withDeadline(ctx, conn)()

	peer, peerEph, err := readHello(conn, keys.NetworkID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := conn.Write(hello(keys)); err != nil {
		return nil, nil, fmt.Errorf("send hello: %w", err)
	}
	if err := exchangeProofs(conn, keys, peer, peerEph, false); err != nil {
		return nil, nil, err
	}
	return conn, peer, nil
}

var (
	clientNonce = [24]byte{0: 1}
	serverNonce = [24]byte{0: 2}
)

func hello(keys Keys) []byte {
	buf := make([]byte, 0, helloSize)
	buf = append(buf, keys.NetworkID...)
	buf = append(buf, keys.Local.Public...)
	buf = append(buf, keys.Ephemeral.Public[:]...)
	sig := ed25519.Sign(keys.Local.Private, signed(keys.NetworkID, keys.Ephemeral.Public))
	return append(buf, sig...)
}

func signed(networkID []byte, eph *[32]byte) []byte {
	msg := make([]byte, 0, 64)
	msg = append(msg, networkID...)
	return append(msg, eph[:]...)
}

func readHello(r io.Reader, networkID []byte) (ed25519.PublicKey, *[32]byte, error) {
	buf := make([]byte, helloSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, nil, fmt.Errorf("read hello: %w", err)
	}
	if !bytes.Equal(buf[:32], networkID) {
		return nil, nil, ErrWrongNetwork
	}
	peer := ed25519.PublicKey(append([]byte(nil), buf[32:64]...))
	var eph [32]byte
	copy(eph[:], buf[64:96])
	if !ed25519.Verify(peer, signed(networkID, &eph), buf[96:]) {
		return nil, nil, ErrBadSignature
	}
	return peer, &eph, nil
}

// exchangeProofs sends our proof and checks the peer's, the client speaking
// first. The proof is the peer's long-term key sealed with the shared
// ephemeral key.
func exchangeProofs(conn net.Conn, keys Keys, peer ed25519.PublicKey, peerEph *[32]byte, client bool) error {
	var shared [32]byte
	box.Precompute(&shared, peerEph, keys.Ephemeral.Secret)

	ours, theirs := clientNonce, serverNonce
	if !client {
		ours, theirs = serverNonce, clientNonce
	}

	send := func() error {
		proof := box.SealAfterPrecomputation(nil, peer, &ours, &shared)
		if _, err := conn.Write(proof); err != nil {
			return fmt.Errorf("send proof: %w", err)
		}
		return nil
	}
	check := func() error {
		buf := make([]byte, ed25519.PublicKeySize+box.Overhead)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return fmt.Errorf("read proof: %w", err)
		}
		opened, ok := box.OpenAfterPrecomputation(nil, buf, &theirs, &shared)
		if !ok || !bytes.Equal(opened, keys.Local.Public) {
			return ErrBadProof
		}
		return nil
	}

	steps := []func() error{send, check}
	if !client {
		steps = []func() error{check, send}
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

// withDeadline bounds conn I/O by ctx's deadline and returns the reset func.
func withDeadline(ctx context.Context, conn net.Conn) func() {
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	return func() {
		stop()
		conn.SetDeadline(time.Time{})
	}
}
