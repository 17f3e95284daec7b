package keyfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadOrCreate(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".ssb", "secret")

	created, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expect mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.Public.Equal(created.Public) || !loaded.Private.Equal(created.Private) {
		t.Fatal("second call must load the saved identity")
	}
}

func TestFormatHasComments(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatal(err)
	}
	out := string(Format(kp))
	if !strings.HasPrefix(out, "# this is your SECRET name.") {
		t.Fatalf("missing header comment:\n%s", out)
	}
	if !strings.Contains(out, `"id": "`+kp.ID()+`"`) {
		t.Fatalf("missing id:\n%s", out)
	}

	parsed, err := Parse([]byte(out))
	if err != nil {
		t.Fatal(err)
	}
	if parsed.ID() != kp.ID() {
		t.Fatalf("got %s, want %s", parsed.ID(), kp.ID())
	}
}

func TestParseRejectsMismatchedPublic(t *testing.T) {
	a, _ := Generate()
	b, _ := Generate()
	out := strings.Replace(string(Format(a)), FormatID(a.Public)[1:], FormatID(b.Public)[1:], 1)
	if _, err := Parse([]byte(out)); err == nil {
		t.Fatal("expect error for mismatched public key")
	}
}

func TestParseErrors(t *testing.T) {
	cases := []string{
		`not json`,
		`{"curve":"k256","private":"x"}`,
		`{"curve":"ed25519","private":"AAAA.ed25519"}`,
	}
	for _, c := range cases {
		if _, err := Parse([]byte(c)); err == nil {
			t.Errorf("expect error for %q", c)
		}
	}
}

func TestLoadOrCreateUnreadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("# only a comment\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrCreate(path); err == nil {
		t.Fatal("a corrupt key file must not be replaced silently")
	}
}

func TestParseID(t *testing.T) {
	kp, _ := Generate()
	pub, err := ParseID(kp.ID())
	if err != nil {
		t.Fatal(err)
	}
	if !pub.Equal(kp.Public) {
		t.Fatal("round trip changed the key")
	}
	if _, err := ParseID("@abc.sha256"); err == nil {
		t.Fatal("expect error for wrong suffix")
	}
	if _, err := ParseID("@AAAA.ed25519"); err == nil {
		t.Fatal("expect error for short key")
	}
}
