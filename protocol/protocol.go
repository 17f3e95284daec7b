// Package protocol implements the packet-stream frame format that muxrpc runs on.
//
// Every packet is a fixed-size 9-byte header followed by a variable-length body.
// The receiver reads the header first to learn the body length, then reads exactly
// that many bytes.
//
// Frame format:
//
//	0     1               5               9
//	┌─────┬───────────────┬───────────────┬───────────────┐
//	│flags│    bodyLen    │      req      │    body ...   │
//	│     │    uint32     │     int32     │ bodyLen bytes │
//	└─────┴───────────────┴───────────────┴───────────────┘
//
// A header made entirely of zero bytes is the goodbye packet: the sender will
// not write anything else on this connection.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	HeaderSize = 9 // 1 (flags) + 4 (bodyLen) + 4 (req)

	// MaxBodyLen bounds the allocation made for a single packet body.
	MaxBodyLen uint32 = 8 << 20
)

// Flag is the first header byte. The two low bits carry the body type,
// the next two say whether the packet is part of a stream and whether it ends one.
type Flag byte

const (
	FlagString Flag = 1 << 0 // body is a UTF-8 string
	FlagJSON   Flag = 1 << 1 // body is JSON
	FlagEndErr Flag = 1 << 2 // last packet of the exchange; the body is `true` or an error
	FlagStream Flag = 1 << 3 // packet belongs to a stream (source, sink, duplex)
)

// BodyType tells the receiver how to interpret a body.
// Mirrored by codec.CodecType to avoid an import cycle.
type BodyType byte

const (
	BodyTypeBinary BodyType = 0
	BodyTypeString BodyType = 1
	BodyTypeJSON   BodyType = 2
)

func (f Flag) BodyType() BodyType { return BodyType(f & 0x03) }
func (f Flag) IsEndErr() bool     { return f&FlagEndErr != 0 }
func (f Flag) IsStream() bool     { return f&FlagStream != 0 }

func (f Flag) String() string {
	s := [...]string{"binary", "string", "json", "invalid"}[f&0x03]
	if f.IsStream() {
		s += "|stream"
	}
	if f.IsEndErr() {
		s += "|end"
	}
	return s
}

// FlagFor returns the flag bits announcing a body of the given type.
func FlagFor(t BodyType) Flag {
	return Flag(t) & 0x03
}

// EndBody is the body of a packet that ends a stream without an error.
var EndBody = []byte("true")

// ErrGoodbye is returned by Decode when the peer sent the goodbye packet.
var ErrGoodbye = errors.New("protocol: goodbye")

// Header is the fixed 9-byte packet header.
type Header struct {
	Flag    Flag
	BodyLen uint32
	Req     int32 // request number; the reply direction uses the negated number
}

// Packet is a decoded header together with its body.
type Packet struct {
	Flag Flag
	Req  int32
	Body []byte
}

// IsEnd reports whether p ends its exchange with `true` instead of an error.
func (p *Packet) IsEnd() bool {
	return p.Flag.IsEndErr() && p.Flag.BodyType() == BodyTypeJSON && string(p.Body) == string(EndBody)
}

// Encode writes a complete packet (header + body) to w in a single Write.
// The caller must hold a write lock if multiple goroutines share the same writer.
func Encode(w io.Writer, h *Header, body []byte) error {
	if h.Req == 0 {
		return fmt.Errorf("invalid request number: 0")
	}
	if uint32(len(body)) != h.BodyLen {
		return fmt.Errorf("body length mismatch: header says %d, body has %d", h.BodyLen, len(body))
	}
	buf := make([]byte, HeaderSize+len(body))
	buf[0] = byte(h.Flag)
	// Body length and request number: big-endian (network byte order)
	binary.BigEndian.PutUint32(buf[1:5], h.BodyLen)
	binary.BigEndian.PutUint32(buf[5:9], uint32(h.Req))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// EncodeGoodbye writes the all-zero goodbye header.
func EncodeGoodbye(w io.Writer) error {
	_, err := w.Write(make([]byte, HeaderSize))
	return err
}

// Decode reads a complete packet from r.
// It returns ErrGoodbye for the goodbye header and validates the body type,
// request number and body length of everything else.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if isZero(headerBuf) {
		return nil, nil, ErrGoodbye
	}

	flag := Flag(headerBuf[0])
	if flag.BodyType() > BodyTypeJSON {
		return nil, nil, fmt.Errorf("unsupported body type: %d", flag.BodyType())
	}
	if flag&^(FlagString|FlagJSON|FlagEndErr|FlagStream) != 0 {
		return nil, nil, fmt.Errorf("unknown flag bits: %08b", byte(flag))
	}

	bodyLen := binary.BigEndian.Uint32(headerBuf[1:5])
	req := int32(binary.BigEndian.Uint32(headerBuf[5:9]))
	if req == 0 {
		return nil, nil, fmt.Errorf("invalid request number: 0")
	}
	if bodyLen > MaxBodyLen {
		return nil, nil, fmt.Errorf("body too large: %d bytes", bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}

	return &Header{
		Flag:    flag,
		BodyLen: bodyLen,
		Req:     req,
	}, body, nil
}

// ReadPacket is Decode returning a Packet.
func ReadPacket(r io.Reader) (*Packet, error) {
	h, body, err := Decode(r)
	if err != nil {
		return nil, err
	}
	return &Packet{Flag: h.Flag, Req: h.Req, Body: body}, nil
}

// WritePacket is Encode for a Packet.
func WritePacket(w io.Writer, p *Packet) error {
	return Encode(w, &Header{Flag: p.Flag, BodyLen: uint32(len(p.Body)), Req: p.Req}, p.Body)
}

func isZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}
