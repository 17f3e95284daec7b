// Package message defines what travels inside packet bodies: the request
// envelope a caller writes when it opens a stream, and the error object a
// peer answers with when a call fails.
//
// A request body looks like:
//
//	{"name":["blobs","has"],"type":"async","args":["&abc.sha256"]}
package message

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CallType selects the request/response protocol of a call.
type CallType string

const (
	CallSync   CallType = "sync"   // exactly one reply
	CallAsync  CallType = "async"  // exactly one reply
	CallSource CallType = "source" // zero or more replies, then end
	CallSink   CallType = "sink"
	CallDuplex CallType = "duplex"
)

// IsStream reports whether requests of this type carry the stream flag.
func (t CallType) IsStream() bool {
	return t == CallSource || t == CallSink || t == CallDuplex
}

func (t CallType) Valid() bool {
	switch t {
	case CallSync, CallAsync, CallSource, CallSink, CallDuplex:
		return true
	}
	return false
}

// Descriptor identifies a remote procedure together with its arguments.
// Implementations are immutable once constructed.
type Descriptor interface {
	Method() []string // dotted name split into parts, e.g. ["blobs", "has"]
	Type() CallType
	Args() []any
}

// Request is the JSON body of the first packet of every call.
//
//   - Name: the method path
//   - Type: how the callee should reply
//   - Args: positional arguments, kept raw until the callee knows their types
type Request struct {
	Name []string          `json:"name"`
	Type CallType          `json:"type"`
	Args []json.RawMessage `json:"args"`
}

// NewRequest encodes the arguments of d into a Request.
func NewRequest(d Descriptor) (*Request, error) {
	if len(d.Method()) == 0 {
		return nil, fmt.Errorf("empty method name")
	}
	if !d.Type().Valid() {
		return nil, fmt.Errorf("invalid call type %q", d.Type())
	}
	req := &Request{
		Name: d.Method(),
		Type: d.Type(),
		Args: make([]json.RawMessage, 0, len(d.Args())),
	}
	for i, arg := range d.Args() {
		raw, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("encode argument %d of %s: %w", i, req.Method(), err)
		}
		req.Args = append(req.Args, raw)
	}
	return req, nil
}

// Method returns the dotted method name, e.g. "blobs.has".
func (r *Request) Method() string {
	return strings.Join(r.Name, ".")
}

// Arg decodes the i-th argument into v. A missing argument leaves v untouched.
func (r *Request) Arg(i int, v any) error {
	if i >= len(r.Args) {
		return nil
	}
	if err := json.Unmarshal(r.Args[i], v); err != nil {
		return fmt.Errorf("argument %d of %s: %w", i, r.Method(), err)
	}
	return nil
}

// Call is a Descriptor built at runtime, for procedures without a dedicated type.
type Call struct {
	name []string
	typ  CallType
	args []any
}

// NewCall builds a descriptor for method, a dotted name such as "blobs.has".
func NewCall(typ CallType, method string, args ...any) Call {
	return Call{
		name: strings.Split(method, "."),
		typ:  typ,
		args: append([]any(nil), args...),
	}
}

func (c Call) Method() []string { return append([]string(nil), c.name...) }
func (c Call) Type() CallType   { return c.typ }
func (c Call) Args() []any      { return append([]any(nil), c.args...) }

func (c Call) String() string {
	return fmt.Sprintf("%s(%s)", strings.Join(c.name, "."), c.typ)
}
