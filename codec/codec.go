package codec

import (
	"fmt"

	"ssb-rpc/protocol"
)

// CodecType matches the body type bits of a packet flag.
type CodecType byte

const (
	CodecTypeBinary CodecType = CodecType(protocol.BodyTypeBinary)
	CodecTypeString CodecType = CodecType(protocol.BodyTypeString)
	CodecTypeJSON   CodecType = CodecType(protocol.BodyTypeJSON)
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
	Type() CodecType // 0=Binary, 1=String, 2=JSON
}

func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeBinary:
		return &BinaryCodec{}
	case CodecTypeString:
		return &StringCodec{}
	}
	return &JSONCodec{}
}

// ForFlag picks the codec announced by a packet flag.
func ForFlag(f protocol.Flag) Codec {
	return GetCodec(CodecType(f.BodyType()))
}

// For picks the codec an outgoing value is sent with: raw bytes go out as
// binary, plain strings as string bodies, everything else as JSON.
func For(v any) Codec {
	switch v.(type) {
	case []byte:
		return &BinaryCodec{}
	case string:
		return &StringCodec{}
	}
	return &JSONCodec{}
}

// Flag returns the packet flag bits for bodies produced by c.
func Flag(c Codec) protocol.Flag {
	return protocol.FlagFor(protocol.BodyType(c.Type()))
}

func mismatch(name string, v any) error {
	return fmt.Errorf("%s: cannot decode into %T", name, v)
}
