package codec

import (
	"errors"
)

// BinaryCodec passes bodies through untouched. Blob contents travel this way.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	}
	return nil, errors.New("BinaryCodec: v must be []byte")
}

func (c *BinaryCodec) Decode(data []byte, v any) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	switch dst := v.(type) {
	case *[]byte:
		*dst = buf
	case *any:
		*dst = buf
	default:
		return mismatch("BinaryCodec", v)
	}
	return nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}
