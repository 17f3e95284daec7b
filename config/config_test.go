package config

import (
	"path/filepath"
	"testing"

	"ssb-rpc/keyfile"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.Addr() != "[::1]:8008" {
		t.Fatalf("got %s", c.Addr())
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	id, err := c.Network()
	if err != nil {
		t.Fatal(err)
	}
	if id[0] != 0xd4 || id[31] != 0xfb {
		t.Fatalf("unexpected mainnet identifier %x", id)
	}
}

func TestDefaultKeyPath(t *testing.T) {
	t.Setenv("ssb_path", "/tmp/ssb-test")
	if p := DefaultKeyPath(); p != filepath.Join("/tmp/ssb-test", "secret") {
		t.Fatalf("got %s", p)
	}
	t.Setenv("ssb_path", "")
	t.Setenv("HOME", "/home/alice")
	if p := DefaultKeyPath(); p != "/home/alice/.ssb/secret" {
		t.Fatalf("got %s", p)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"remote host", func(c *Config) { c.Host = "10.0.0.1" }},
		{"hostname", func(c *Config) { c.Host = "example.com" }},
		{"port", func(c *Config) { c.Port = 0 }},
		{"network", func(c *Config) { c.NetworkID = "AAAA" }},
		{"remote key", func(c *Config) { c.RemoteKey = "@nope" }},
		{"timeout", func(c *Config) { c.Timeouts.Call = 0 }},
	}
	for _, tc := range cases {
		c := Default()
		tc.mutate(c)
		if err := c.Validate(); err == nil {
			t.Errorf("%s: expect validation error", tc.name)
		}
	}

	for _, host := range []string{"127.0.0.1", "localhost", "::1"} {
		c := Default()
		c.Host = host
		if err := c.Validate(); err != nil {
			t.Errorf("%s: %v", host, err)
		}
	}
}

func TestRemoteDefaultsToOwnKey(t *testing.T) {
	kp, err := keyfile.Generate()
	if err != nil {
		t.Fatal(err)
	}
	c := Default()
	remote, err := c.Remote(kp)
	if err != nil {
		t.Fatal(err)
	}
	if !remote.Equal(kp.Public) {
		t.Fatal("expect own key")
	}

	other, _ := keyfile.Generate()
	c.RemoteKey = other.ID()
	remote, err = c.Remote(kp)
	if err != nil || !remote.Equal(other.Public) {
		t.Fatalf("expect configured key, got %v", err)
	}
}
