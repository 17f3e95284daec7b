// Package logging configures the op/go-logging backend shared by every package.
package logging

import (
	"fmt"
	"os"
	"runtime/debug"

	gologging "github.com/op/go-logging"
)

// LevelEnv overrides the level chosen by SetupLogging.
const LevelEnv = "SSB_RPC_LOG_LEVEL"

const module = "ssb-rpc"

var Log = gologging.MustGetLogger(module)

var stderrFormat = gologging.MustStringFormatter(
	`%{color}%{time:15:04:05.000} %{level:.6s} ▶ %{message}%{color:reset}`,
)

func init() {
	SetupLogging("", gologging.WARNING)
}

// SetupLogging sends log output to stderr at defaultLogLevel unless
// SSB_RPC_LOG_LEVEL names another level.
func SetupLogging(prefix string, defaultLogLevel gologging.Level) *gologging.Logger {
	backend := gologging.NewLogBackend(os.Stderr, prefix, 0)
	formatted := gologging.NewBackendFormatter(backend, stderrFormat)
	leveled := gologging.AddModuleLevel(formatted)

	switch os.Getenv(LevelEnv) {
	case "CRITICAL":
		leveled.SetLevel(gologging.CRITICAL, module)
	case "ERROR":
		leveled.SetLevel(gologging.ERROR, module)
	case "WARNING":
		leveled.SetLevel(gologging.WARNING, module)
	case "NOTICE":
		leveled.SetLevel(gologging.NOTICE, module)
	case "INFO":
		leveled.SetLevel(gologging.INFO, module)
	case "DEBUG":
		leveled.SetLevel(gologging.DEBUG, module)
	default:
		leveled.SetLevel(defaultLogLevel, module)
	}

	gologging.SetBackend(leveled)
	return Log
}

// RecoverToLog runs f and logs a panic instead of crashing the process.
// It returns the recovered value as an error, or nil.
func RecoverToLog(f func()) (err error) {
	defer func() {
		if x := recover(); x != nil {
			Log.Error(fmt.Sprintf("run time panic: %v", x))
			Log.Error(string(debug.Stack()))
			err = fmt.Errorf("panic: %v", x)
		}
	}()
	f()
	return nil
}
