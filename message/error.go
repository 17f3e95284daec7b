package message

import (
	"encoding/json"
	"errors"

	"ssb-rpc/codec"
)

// Error is the body a peer sends with the end flag when a call fails.
type Error struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

// UnmarshalJSON accepts any object with a message. Peers add their own
// fields, which are dropped.
func (e *Error) UnmarshalJSON(data []byte) error {
	if err := codec.RequireFields(data, "message"); err != nil {
		return err
	}
	type plain Error
	return json.Unmarshal(data, (*plain)(e))
}

func (e *Error) Error() string {
	if e.Name == "" || e.Name == "Error" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// NewError converts err into the wire error object, keeping an *Error as is.
func NewError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Name: "Error", Message: err.Error()}
}
