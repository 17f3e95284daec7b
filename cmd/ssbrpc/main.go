package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	gologging "github.com/op/go-logging"
	"github.com/urfave/cli"

	"ssb-rpc/client"
	"ssb-rpc/config"
	"ssb-rpc/harness"
	"ssb-rpc/keyfile"
	"ssb-rpc/logging"
	"ssb-rpc/message"
	"ssb-rpc/rpcs"
	"ssb-rpc/secretchannel"
)

func PrintFatal(msg string, args ...interface{}) {
	os.Stderr.WriteString(fmt.Sprintf(msg, args...) + "\n")
	os.Exit(1)
}

// cliTB reports harness results on the terminal.
type cliTB struct{}

func (cliTB) Helper() {}

func (cliTB) Logf(format string, args ...any) {
	fmt.Printf(format+"\n", args...)
}

func (cliTB) Fatalf(format string, args ...any) {
	PrintFatal(format, args...)
}

func configFromFlags(c *cli.Context) *config.Config {
	cfg := config.Default()
	cfg.Host = c.GlobalString("host")
	cfg.Port = c.GlobalInt("port")
	if key := c.GlobalString("key"); key != "" {
		cfg.KeyPath = key
	}
	cfg.NetworkID = c.GlobalString("network")
	cfg.RemoteKey = c.GlobalString("remote")
	if d := c.GlobalDuration("timeout"); d > 0 {
		cfg.Timeouts.Call = d
	}
	if err := cfg.Validate(); err != nil {
		PrintFatal(err.Error())
	}
	return cfg
}

func checkCommand(c *cli.Context) (err error) {
	cfg := configFromFlags(c)
	t := cliTB{}
	harness.Run(t, cfg, func(cl *client.Client) {
		me := harness.Verify(t, harness.InvokeSync[rpcs.WhoamiResponse, rpcs.Error](context.Background(), cl, rpcs.Whoami{})).Value()
		fmt.Printf("whoami: %s\n", me.ID)

		history := harness.Verify(t, harness.InvokeSource[json.RawMessage, rpcs.Error](
			context.Background(), cl, rpcs.CreateHistoryStream{ID: me.ID, Limit: 10}, nil,
		))
		fmt.Printf("createHistoryStream: %d messages\n", len(history.Values))
	})
	fmt.Println("ok")
	return
}

func callCommand(c *cli.Context) (err error) {
	if c.NArg() < 1 {
		PrintFatal("usage: ssbrpc call [--type sync|async|source] method [json args...]")
	}
	typ := message.CallType(c.String("type"))
	if !typ.Valid() {
		PrintFatal("unknown call type %q", typ)
	}
	args := make([]any, 0, c.NArg()-1)
	for _, arg := range c.Args().Tail() {
		if !json.Valid([]byte(arg)) {
			PrintFatal("argument %s is not valid JSON", arg)
		}
		args = append(args, json.RawMessage(arg))
	}
	d := message.NewCall(typ, c.Args().First(), args...)

	cfg := configFromFlags(c)
	t := cliTB{}
	harness.Run(t, cfg, func(cl *client.Client) {
		ctx := context.Background()
		switch typ {
		case message.CallSync:
			harness.Inspect(t, harness.InvokeSync[json.RawMessage, rpcs.Error](ctx, cl, d))
		case message.CallAsync:
			harness.Inspect(t, harness.InvokeAsync[json.RawMessage, rpcs.Error](ctx, cl, d))
		case message.CallSource:
			o := harness.InvokeSource[json.RawMessage, rpcs.Error](ctx, cl, d, func(v json.RawMessage) {
				fmt.Println(string(v))
			})
			if o.State == harness.StateErrored {
				fmt.Println(o.Err)
			} else if o.State != harness.StateCompleted {
				harness.Verify(t, o)
			}
		default:
			PrintFatal("%s calls are not supported", typ)
		}
	})
	return
}

func keysCommand(c *cli.Context) (err error) {
	cfg := configFromFlags(c)
	kp, err := keyfile.LoadOrCreate(cfg.KeyPath)
	if err != nil {
		PrintFatal(err.Error())
	}
	fmt.Println(kp.ID())
	return
}

func main() {
	if err := secretchannel.Init(); err != nil {
		PrintFatal(err.Error())
	}

	app := cli.NewApp()
	app.Name = "ssbrpc"
	app.Usage = "make muxrpc calls against a local ssb server"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "host", Value: config.DefaultHost, Usage: "loopback address of the server", EnvVar: "SSB_HOST"},
		cli.IntFlag{Name: "port", Value: config.DefaultTCPPort, Usage: "tcp port of the server", EnvVar: "SSB_PORT"},
		cli.StringFlag{Name: "key", Usage: "secret file (default $ssb_path/secret or ~/.ssb/secret)", EnvVar: "SSB_SECRET"},
		cli.StringFlag{Name: "network", Value: config.MainnetIdentifier, Usage: "network identifier, base64"},
		cli.StringFlag{Name: "remote", Usage: "feed id of the server (default: our own)"},
		cli.DurationFlag{Name: "timeout", Value: 30 * time.Second, Usage: "budget of each call"},
		cli.BoolFlag{Name: "verbose, v"},
	}
	app.Before = func(c *cli.Context) error {
		if c.GlobalBool("verbose") {
			logging.SetupLogging("", gologging.DEBUG)
		}
		return nil
	}
	app.Commands = []cli.Command{
		cli.Command{
			Name:   "check",
			Usage:  "verify whoami and createHistoryStream",
			Action: checkCommand,
		},
		cli.Command{
			Name:      "call",
			Usage:     "call a procedure and print what comes back",
			ArgsUsage: "method [json args...]",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "type, t", Value: string(message.CallAsync), Usage: strings.Join([]string{"sync", "async", "source"}, "|")},
			},
			Action: callCommand,
		},
		cli.Command{
			Name:   "serve",
			Usage:  "answer calls with a small in-memory feed",
			Action: serveCommand,
		},
		cli.Command{
			Name:   "keys",
			Usage:  "print our feed id, creating the secret file if needed",
			Action: keysCommand,
		},
	}
	if err := app.Run(os.Args); err != nil {
		PrintFatal(err.Error())
	}
}
