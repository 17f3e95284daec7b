package main

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"ssb-rpc/keyfile"
	"ssb-rpc/logging"
	"ssb-rpc/message"
	"ssb-rpc/middleware"
	"ssb-rpc/rpcs"
	"ssb-rpc/server"
)

// demoFeed is an append-only log of messages signed by one identity.
type demoFeed struct {
	kp  *keyfile.KeyPair
	log []rpcs.KeyValue
}

func newDemoFeed(kp *keyfile.KeyPair, posts ...string) (*demoFeed, error) {
	f := &demoFeed{kp: kp}
	for _, text := range posts {
		if err := f.append(map[string]string{"type": "post", "text": text}); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func (f *demoFeed) append(content any) error {
	raw, err := json.Marshal(content)
	if err != nil {
		return err
	}
	msg := rpcs.Message{
		Author:    f.kp.ID(),
		Sequence:  int64(len(f.log) + 1),
		Timestamp: float64(time.Now().UnixMilli()),
		Hash:      "sha256",
		Content:   raw,
	}
	if n := len(f.log); n > 0 {
		prev := f.log[n-1].Key
		msg.Previous = &prev
	}

	unsigned, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	msg.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(f.kp.Private, unsigned)) + ".sig.ed25519"

	signed, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(signed)
	f.log = append(f.log, rpcs.KeyValue{
		Key:       "%" + base64.StdEncoding.EncodeToString(sum[:]) + ".sha256",
		Value:     msg,
		Timestamp: msg.Timestamp,
	})
	return nil
}

func (f *demoFeed) Whoami(_ *struct{}, reply *rpcs.WhoamiResponse) error {
	reply.ID = f.kp.ID()
	return nil
}

func (f *demoFeed) LatestSequence(id *string, seq *int64) error {
	if *id != f.kp.ID() {
		return fmt.Errorf("feed %s not found", *id)
	}
	*seq = int64(len(f.log))
	return nil
}

func (f *demoFeed) CreateHistoryStream(args *rpcs.CreateHistoryStream, emit func(any) error) error {
	if args.ID != f.kp.ID() {
		return nil
	}
	var sent int64
	for _, kv := range f.log {
		if kv.Value.Sequence < args.Seq {
			continue
		}
		if args.Limit > 0 && sent == args.Limit {
			break
		}
		var err error
		if args.Keys {
			err = emit(kv)
		} else {
			err = emit(kv.Value)
		}
		if err != nil {
			return err
		}
		sent++
	}
	return nil
}

func (f *demoFeed) CreateLogStream(args *rpcs.CreateLogStream, emit func(any) error) error {
	if args.Old != nil && !*args.Old {
		return nil
	}
	for i, kv := range f.log {
		if args.Limit > 0 && int64(i) == args.Limit {
			break
		}
		var item any = kv
		switch {
		case args.Keys && !args.Values:
			item = kv.Key
		case !args.Keys && args.Values:
			item = kv.Value
		}
		if err := emit(item); err != nil {
			return err
		}
	}
	return nil
}

func serveCommand(c *cli.Context) (err error) {
	cfg := configFromFlags(c)
	kp, err := keyfile.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		PrintFatal(err.Error())
	}
	network, err := cfg.Network()
	if err != nil {
		PrintFatal(err.Error())
	}

	feed, err := newDemoFeed(kp, "hello", "muxrpc over loopback", "third post")
	if err != nil {
		PrintFatal(err.Error())
	}

	svr := server.NewServer(kp, server.WithNetworkID(network), server.WithHandshakeTimeout(cfg.Timeouts.Handshake))
	svr.Use(middleware.LoggingMiddleware())
	svr.Use(middleware.RateLimitMiddleware(100, 20))
	svr.Use(middleware.TimeOutMiddleware(cfg.Timeouts.Call))
	if err := svr.RegisterName("", feed); err != nil {
		PrintFatal(err.Error())
	}
	svr.HandleAsync("blobs.has", func(ctx context.Context, req *message.Request) (any, error) {
		var id string
		if err := req.Arg(0, &id); err != nil {
			return nil, err
		}
		return false, nil
	})

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logging.Log.Notice("shutting down")
		if err := svr.Shutdown(cfg.Timeouts.Shutdown); err != nil {
			logging.Log.Warning(err)
		}
	}()

	fmt.Printf("serving %s on %s\n", kp.ID(), cfg.Addr())
	if err := svr.Serve("tcp", cfg.Addr()); err != nil {
		PrintFatal(err.Error())
	}
	return
}
