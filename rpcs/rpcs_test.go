package rpcs

import (
	"encoding/json"
	"testing"

	"ssb-rpc/message"
)

func requestJSON(t *testing.T, d message.Descriptor) string {
	t.Helper()
	req, err := message.NewRequest(d)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestRequestShapes(t *testing.T) {
	cases := []struct {
		d    message.Descriptor
		want string
	}{
		{Whoami{}, `{"name":["whoami"],"type":"sync","args":[]}`},
		{BlobsHas{ID: "&a.sha256"}, `{"name":["blobs","has"],"type":"async","args":["&a.sha256"]}`},
		{LatestSequence{ID: "@a.ed25519"}, `{"name":["latestSequence"],"type":"async","args":["@a.ed25519"]}`},
		{CreateHistoryStream{ID: "@a.ed25519", Seq: 1}, `{"name":["createHistoryStream"],"type":"source","args":[{"id":"@a.ed25519","seq":1,"keys":false}]}`},
		{CreateLogStream{Keys: true, Values: true, Limit: 10}, `{"name":["createLogStream"],"type":"source","args":[{"keys":true,"values":true,"limit":10}]}`},
	}
	for _, tc := range cases {
		if got := requestJSON(t, tc.d); got != tc.want {
			t.Errorf("got  %s\nwant %s", got, tc.want)
		}
	}
}

func TestKeyValueDecode(t *testing.T) {
	raw := `{"key":"%abc.sha256","value":{"previous":null,"author":"@a.ed25519","sequence":1,"timestamp":1500000000000,"hash":"sha256","content":{"type":"post","text":"hi"},"signature":"sig.sig.ed25519"},"timestamp":1500000000001}`
	var kv KeyValue
	if err := json.Unmarshal([]byte(raw), &kv); err != nil {
		t.Fatal(err)
	}
	if kv.Value.Previous != nil || kv.Value.Sequence != 1 || kv.Value.Author != "@a.ed25519" {
		t.Fatalf("unexpected message %+v", kv.Value)
	}
	var content struct{ Type string }
	if err := json.Unmarshal(kv.Value.Content, &content); err != nil || content.Type != "post" {
		t.Fatalf("content: %+v, %v", content, err)
	}
}

func TestReplyRequiredFields(t *testing.T) {
	tests := []struct {
		name string
		into any
		data string
	}{
		{"whoami without id", &WhoamiResponse{}, `{"totally":"unrelated"}`},
		{"whoami with extra field", &WhoamiResponse{}, `{"id":"@a.ed25519","name":"a"}`},
		{"message without author", &Message{}, `{"sequence":1,"content":null}`},
		{"message without content", &Message{}, `{"author":"@a.ed25519","sequence":1}`},
		{"key value without value", &KeyValue{}, `{"key":"%abc.sha256","timestamp":1}`},
		{"key value with a broken message", &KeyValue{}, `{"key":"%abc.sha256","value":{"text":"hi"}}`},
		{"null", &Message{}, `null`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := json.Unmarshal([]byte(tt.data), tt.into); err == nil {
				t.Fatalf("expect %s to be rejected, got %+v", tt.data, tt.into)
			}
		})
	}

	var msg Message
	if err := json.Unmarshal([]byte(`{"author":"@a.ed25519","sequence":2,"content":"box","rts":5}`), &msg); err != nil {
		t.Fatalf("extra fields on a message: %v", err)
	}
	var me WhoamiResponse
	if err := json.Unmarshal([]byte(`{"id":"@a.ed25519"}`), &me); err != nil || me.ID != "@a.ed25519" {
		t.Fatalf("whoami: %+v, %v", me, err)
	}
}
