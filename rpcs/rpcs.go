// Package rpcs describes the ssb procedures this module knows by name.
package rpcs

import (
	"encoding/json"

	"ssb-rpc/codec"
	"ssb-rpc/message"
)

// Whoami asks the peer for its feed id.
type Whoami struct{}

func (Whoami) Method() []string       { return []string{"whoami"} }
func (Whoami) Type() message.CallType { return message.CallSync }
func (Whoami) Args() []any            { return nil }

type WhoamiResponse struct {
	ID string `json:"id"`
}

func (r *WhoamiResponse) UnmarshalJSON(data []byte) error {
	if err := codec.RequireFields(data, "id"); err != nil {
		return err
	}
	type plain WhoamiResponse
	return codec.Strict(data, (*plain)(r))
}

// LatestSequence asks for the newest sequence number of a feed.
type LatestSequence struct {
	ID string
}

func (LatestSequence) Method() []string       { return []string{"latestSequence"} }
func (LatestSequence) Type() message.CallType { return message.CallAsync }
func (d LatestSequence) Args() []any          { return []any{d.ID} }

// BlobsHas asks whether the peer stores a blob.
type BlobsHas struct {
	ID string
}

func (BlobsHas) Method() []string       { return []string{"blobs", "has"} }
func (BlobsHas) Type() message.CallType { return message.CallAsync }
func (d BlobsHas) Args() []any          { return []any{d.ID} }

// CreateHistoryStream streams the messages of one feed in sequence order.
type CreateHistoryStream struct {
	ID    string `json:"id"`
	Seq   int64  `json:"seq,omitempty"`
	Limit int64  `json:"limit,omitempty"`
	Live  bool   `json:"live,omitempty"`
	Keys  bool   `json:"keys"`
}

func (CreateHistoryStream) Method() []string       { return []string{"createHistoryStream"} }
func (CreateHistoryStream) Type() message.CallType { return message.CallSource }
func (d CreateHistoryStream) Args() []any          { return []any{d} }

// CreateLogStream streams every message the peer stores, in receive order.
type CreateLogStream struct {
	Keys   bool  `json:"keys"`
	Values bool  `json:"values"`
	Limit  int64 `json:"limit,omitempty"`
	Live   bool  `json:"live,omitempty"`
	Old    *bool `json:"old,omitempty"`
}

func (CreateLogStream) Method() []string       { return []string{"createLogStream"} }
func (CreateLogStream) Type() message.CallType { return message.CallSource }
func (d CreateLogStream) Args() []any          { return []any{d} }

// Message is a signed feed message.
type Message struct {
	Previous  *string         `json:"previous"`
	Author    string          `json:"author"`
	Sequence  int64           `json:"sequence"`
	Timestamp float64         `json:"timestamp"`
	Hash      string          `json:"hash"`
	Content   json.RawMessage `json:"content"`
	Signature string          `json:"signature"`
}

// UnmarshalJSON requires the fields every feed message has. Fields newer
// peers add are ignored.
func (m *Message) UnmarshalJSON(data []byte) error {
	if err := codec.RequireFields(data, "author", "sequence", "content"); err != nil {
		return err
	}
	type plain Message
	return json.Unmarshal(data, (*plain)(m))
}

// KeyValue is a stored message with its key, as sent when keys are requested.
type KeyValue struct {
	Key       string  `json:"key"`
	Value     Message `json:"value"`
	Timestamp float64 `json:"timestamp"`
}

func (kv *KeyValue) UnmarshalJSON(data []byte) error {
	if err := codec.RequireFields(data, "key", "value"); err != nil {
		return err
	}
	type plain KeyValue
	return json.Unmarshal(data, (*plain)(kv))
}

// Error is the error object ssb peers reply with.
type Error = message.Error

var (
	_ message.Descriptor = Whoami{}
	_ message.Descriptor = LatestSequence{}
	_ message.Descriptor = BlobsHas{}
	_ message.Descriptor = CreateHistoryStream{}
	_ message.Descriptor = CreateLogStream{}
)
