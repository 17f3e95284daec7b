package server

import (
	"context"
	"testing"

	"ssb-rpc/client"
	"ssb-rpc/message"
	"ssb-rpc/rpcs"
)

func benchPeer(b *testing.B) *client.Client {
	svr, kp := newServer(b)
	if err := svr.Register(&Blobs{stored: map[string]bool{"&abc.sha256": true}}); err != nil {
		b.Fatal(err)
	}
	feed := &Feed{}
	for seq := int64(1); seq <= 100; seq++ {
		feed.messages = append(feed.messages, rpcs.Message{Author: "@bench", Sequence: seq})
	}
	if err := svr.RegisterName("", feed); err != nil {
		b.Fatal(err)
	}
	return start(b, svr, kp)
}

// 场景1: 单 goroutine 串行调用
func BenchmarkSerialCall(b *testing.B) {
	c := benchPeer(b)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, reply := client.Async[bool, rpcs.Error](ctx, c, rpcs.BlobsHas{ID: "&abc.sha256"})
		if _, err := reply.Await(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// 场景2: 多 goroutine 并发调用（同一连接上多路复用）
func BenchmarkConcurrentCall(b *testing.B) {
	c := benchPeer(b)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, reply := client.Async[bool, rpcs.Error](ctx, c, rpcs.BlobsHas{ID: "&abc.sha256"})
			if _, err := reply.Await(ctx); err != nil {
				b.Error(err)
				return
			}
		}
	})
}

// 场景3: source 调用，每次读完 100 条
func BenchmarkSource(b *testing.B) {
	c := benchPeer(b)
	ctx := context.Background()
	var d message.Descriptor = rpcs.CreateHistoryStream{ID: "@bench"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, replies := client.Source[rpcs.Message, rpcs.Error](ctx, c, d)
		if _, err := replies.Collect(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
