package client

import (
	"errors"
	"fmt"
)

var (
	// ErrPrematureClose means the stream or connection ended before the
	// expected reply or end-of-stream arrived.
	ErrPrematureClose = errors.New("stream closed before the reply arrived")
	// ErrAborted is returned by Next after the caller closed a source.
	ErrAborted = errors.New("source aborted by caller")
	// ErrUnsupportedType is returned by Invoke for sink and duplex calls.
	ErrUnsupportedType = errors.New("unsupported call type")
)

// TransportError is a failure below the RPC layer. Op names the step:
// "encode", "open" and "send" on the way out, "receive" on the way back.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error on %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError means a reply matched neither the response nor the error type.
type DecodeError struct {
	Body []byte
	Err  error
}

func (e *DecodeError) Error() string {
	body := e.Body
	if len(body) > 64 {
		body = body[:64]
	}
	return fmt.Sprintf("cannot decode reply %q: %v", body, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProtocolError carries the error value the peer replied with.
type ProtocolError[E any] struct {
	Value E
}

func (e *ProtocolError[E]) Error() string {
	if err, ok := any(&e.Value).(error); ok {
		return "remote error: " + err.Error()
	}
	if err, ok := any(e.Value).(error); ok {
		return "remote error: " + err.Error()
	}
	return fmt.Sprintf("remote error: %+v", e.Value)
}

func (e *ProtocolError[E]) RemoteValue() any { return e.Value }

type remoteError interface {
	error
	RemoteValue() any
}

// IsProtocolError reports whether err carries a peer's error reply, whatever its type.
func IsProtocolError(err error) bool {
	var re remoteError
	return errors.As(err, &re)
}

// Kind classifies the result of a call.
type Kind int

const (
	KindSuccess Kind = iota
	KindProtocolError
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindProtocolError:
		return "protocol error"
	}
	return "failure"
}

// KindOf classifies err: nil is success, a peer error reply is a protocol
// error, anything else is a failure.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindSuccess
	case IsProtocolError(err):
		return KindProtocolError
	}
	return KindFailure
}
