package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type historyArgs struct {
	ID  string `json:"id"`
	Seq int64  `json:"seq"`
}

func TestRequestEncoding(t *testing.T) {
	call := NewCall(CallSource, "createHistoryStream", historyArgs{ID: "@a.ed25519", Seq: 1})

	req, err := NewRequest(call)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("Failed to marshal request: %v", err)
	}
	want := `{"name":["createHistoryStream"],"type":"source","args":[{"id":"@a.ed25519","seq":1}]}`
	if string(data) != want {
		t.Fatalf("got %s\nwant %s", data, want)
	}

	var req2 Request
	if err := json.Unmarshal(data, &req2); err != nil {
		t.Fatalf("Failed to unmarshal with error: %v", err)
	}
	var args historyArgs
	if err := req2.Arg(0, &args); err != nil {
		t.Fatal(err)
	}
	if args.ID != "@a.ed25519" || args.Seq != 1 {
		t.Fatalf("unexpected args %+v", args)
	}
}

func TestNoArgsEncodesEmptyArray(t *testing.T) {
	req, err := NewRequest(NewCall(CallSync, "whoami"))
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(req)
	if string(data) != `{"name":["whoami"],"type":"sync","args":[]}` {
		t.Fatalf("got %s", data)
	}
}

func TestDottedMethod(t *testing.T) {
	call := NewCall(CallAsync, "blobs.has", "&x.sha256")
	if m := call.Method(); len(m) != 2 || m[0] != "blobs" || m[1] != "has" {
		t.Fatalf("got %v", m)
	}
	req, _ := NewRequest(call)
	if req.Method() != "blobs.has" {
		t.Fatalf("got %s", req.Method())
	}
}

func TestInvalidDescriptor(t *testing.T) {
	if _, err := NewRequest(NewCall(CallType("bogus"), "whoami")); err == nil {
		t.Fatal("expect error for unknown call type")
	}
	if _, err := NewRequest(NewCall(CallAsync, "x", make(chan int))); err == nil {
		t.Fatal("expect error for unencodable argument")
	}
}

func TestCallIsImmutable(t *testing.T) {
	call := NewCall(CallAsync, "blobs.has", "a")
	call.Args()[0] = "b"
	call.Method()[0] = "x"
	if call.Args()[0] != "a" || call.Method()[0] != "blobs" {
		t.Fatal("descriptor changed through its accessors")
	}
}

func TestError(t *testing.T) {
	e := NewError(fmt.Errorf("wrapped: %w", &Error{Name: "NotFound", Message: "no such feed"}))
	if e.Name != "NotFound" {
		t.Fatalf("expect the wrapped *Error, got %+v", e)
	}
	if e.Error() != "NotFound: no such feed" {
		t.Fatalf("got %q", e.Error())
	}

	plain := NewError(errors.New("boom"))
	data, _ := json.Marshal(plain)
	if string(data) != `{"name":"Error","message":"boom"}` {
		t.Fatalf("got %s", data)
	}
}

func TestErrorRequiresMessage(t *testing.T) {
	var e Error
	if err := json.Unmarshal([]byte(`{"name":"Error","message":"no such feed","code":"ENOENT"}`), &e); err != nil {
		t.Fatal(err)
	}
	if e.Message != "no such feed" {
		t.Fatalf("got %+v", e)
	}
	for _, data := range []string{`{"totally":"unrelated"}`, `{"name":"Error"}`, `[1,2]`, `true`} {
		if err := json.Unmarshal([]byte(data), &Error{}); err == nil {
			t.Errorf("expect %s to be rejected", data)
		}
	}
}
