// Package config holds the settings needed to reach a peer: where it listens,
// which identity to present, and how long to wait.
package config

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ssb-rpc/keyfile"
)

const (
	DefaultHost    = "::1"
	DefaultTCPPort = 8008

	// MainnetIdentifier is the network key of the main ssb network.
	MainnetIdentifier = "1KHLiKZvAvjbY1ziZEHMXawbCEIM6qwjCDm3VYRan/s="
)

type Timeouts struct {
	Handshake time.Duration // dial plus handshake
	Call      time.Duration // default budget of one invocation
	Shutdown  time.Duration // draining in-flight requests on the serving side
}

func DefaultTimeouts() Timeouts {
	return Timeouts{
		Handshake: 10 * time.Second,
		Call:      30 * time.Second,
		Shutdown:  5 * time.Second,
	}
}

type Config struct {
	Host      string
	Port      int
	KeyPath   string
	NetworkID string // base64, 32 bytes
	RemoteKey string // feed id of the expected peer; empty means our own
	Timeouts  Timeouts
}

func Default() *Config {
	return &Config{
		Host:      DefaultHost,
		Port:      DefaultTCPPort,
		KeyPath:   DefaultKeyPath(),
		NetworkID: MainnetIdentifier,
		Timeouts:  DefaultTimeouts(),
	}
}

// DefaultKeyPath is $ssb_path/secret, falling back to ~/.ssb/secret.
func DefaultKeyPath() string {
	if dir := os.Getenv("ssb_path"); dir != "" {
		return filepath.Join(dir, "secret")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".ssb", "secret")
	}
	return filepath.Join(home, ".ssb", "secret")
}

// Addr returns host:port, bracketing IPv6 literals.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Network decodes the network identifier.
func (c *Config) Network() ([]byte, error) {
	id, err := base64.StdEncoding.DecodeString(c.NetworkID)
	if err != nil {
		return nil, fmt.Errorf("network identifier: %w", err)
	}
	if len(id) != 32 {
		return nil, fmt.Errorf("network identifier: want 32 bytes, got %d", len(id))
	}
	return id, nil
}

// Remote returns the expected peer key, or local's own key when none is set.
func (c *Config) Remote(local *keyfile.KeyPair) (ed25519.PublicKey, error) {
	if c.RemoteKey == "" {
		return local.Public, nil
	}
	return keyfile.ParseID(c.RemoteKey)
}

// Validate rejects settings that cannot work. Only loopback peers are allowed.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if !isLoopback(c.Host) {
		return fmt.Errorf("host %q is not a loopback address", c.Host)
	}
	if c.KeyPath == "" {
		return fmt.Errorf("no key path")
	}
	if _, err := c.Network(); err != nil {
		return err
	}
	if c.RemoteKey != "" {
		if _, err := keyfile.ParseID(c.RemoteKey); err != nil {
			return err
		}
	}
	if c.Timeouts.Handshake <= 0 || c.Timeouts.Call <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	return nil
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
