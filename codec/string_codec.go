package codec

import (
	"errors"
	"unicode/utf8"
)

// StringCodec carries UTF-8 text bodies.
type StringCodec struct{}

func (c *StringCodec) Encode(v any) ([]byte, error) {
	switch s := v.(type) {
	case string:
		return []byte(s), nil
	case *string:
		return []byte(*s), nil
	}
	return nil, errors.New("StringCodec: v must be a string")
}

func (c *StringCodec) Decode(data []byte, v any) error {
	if !utf8.Valid(data) {
		return errors.New("StringCodec: body is not valid UTF-8")
	}
	switch dst := v.(type) {
	case *string:
		*dst = string(data)
	case *any:
		*dst = string(data)
	default:
		return mismatch("StringCodec", v)
	}
	return nil
}

func (c *StringCodec) Type() CodecType {
	return CodecTypeString
}
