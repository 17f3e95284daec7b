package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
// Request bodies and most replies are JSON.
//
// Decoding is strict: an object field the target has no place for is an
// error, as is anything after the first value. Types that need required
// fields check them in their own UnmarshalJSON, see RequireFields.
type JSONCodec struct{}

func (c *JSONCodec) Encode(v any) ([]byte, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}

func (c *JSONCodec) Decode(data []byte, v any) error {
	return Strict(data, v)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

var errTrailingData = errors.New("trailing data after JSON value")

// Strict decodes exactly one JSON value into v and rejects unknown object fields.
func Strict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		return errTrailingData
	}
	return nil
}

// RequireFields checks that data is a JSON object carrying every name.
func RequireFields(data []byte, names ...string) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	if fields == nil {
		return fmt.Errorf("expect an object with %q, got %s", names, data)
	}
	for _, name := range names {
		if _, ok := fields[name]; !ok {
			return fmt.Errorf("missing field %q", name)
		}
	}
	return nil
}
