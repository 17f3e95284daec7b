package main

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"ssb-rpc/keyfile"
	"ssb-rpc/rpcs"
)

func testFeed(t *testing.T) *demoFeed {
	t.Helper()
	kp, err := keyfile.Generate()
	if err != nil {
		t.Fatal(err)
	}
	f, err := newDemoFeed(kp, "one", "two", "three")
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestDemoFeedChain(t *testing.T) {
	f := testFeed(t)
	if f.log[0].Value.Previous != nil {
		t.Fatal("first message must not have a previous")
	}
	for i := 1; i < len(f.log); i++ {
		prev := f.log[i].Value.Previous
		if prev == nil || *prev != f.log[i-1].Key {
			t.Fatalf("message %d does not link to %s", i+1, f.log[i-1].Key)
		}
	}

	msg := f.log[1].Value
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(msg.Signature, ".sig.ed25519"))
	if err != nil {
		t.Fatal(err)
	}
	msg.Signature = ""
	unsigned, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	if !ed25519.Verify(f.kp.Public, unsigned, sig) {
		t.Fatal("signature does not verify")
	}
}

func TestDemoFeedHistory(t *testing.T) {
	f := testFeed(t)

	tests := []struct {
		name string
		args rpcs.CreateHistoryStream
		want []int64
	}{
		{"all", rpcs.CreateHistoryStream{ID: f.kp.ID()}, []int64{1, 2, 3}},
		{"from seq", rpcs.CreateHistoryStream{ID: f.kp.ID(), Seq: 2}, []int64{2, 3}},
		{"limit", rpcs.CreateHistoryStream{ID: f.kp.ID(), Limit: 1}, []int64{1}},
		{"other feed", rpcs.CreateHistoryStream{ID: "@other.ed25519"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			err := f.CreateHistoryStream(&tt.args, func(v any) error {
				got = append(got, v.(rpcs.Message).Sequence)
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expect %v, get %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("Expect %v, get %v", tt.want, got)
				}
			}
		})
	}
}

func TestDemoFeedLatestSequence(t *testing.T) {
	f := testFeed(t)
	id := f.kp.ID()
	var seq int64
	if err := f.LatestSequence(&id, &seq); err != nil {
		t.Fatal(err)
	}
	if seq != 3 {
		t.Fatalf("Expect 3, get %d", seq)
	}
	other := "@other.ed25519"
	if err := f.LatestSequence(&other, &seq); err == nil {
		t.Fatal("Expect an error for an unknown feed")
	}
}
