// Package keyfile stores the long-term ed25519 identity of a peer in the
// ssb "secret" file format: a JSON object wrapped in #-comment lines.
package keyfile

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	curveEd25519 = "ed25519"
	suffix       = ".ed25519"
)

// KeyPair is a long-term identity.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

type secretFile struct {
	Curve   string `json:"curve"`
	Public  string `json:"public"`
	Private string `json:"private"`
	ID      string `json:"id"`
}

// Generate creates a new random identity.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// ID returns the feed id of the key pair, e.g. "@<base64>.ed25519".
func (kp *KeyPair) ID() string {
	return FormatID(kp.Public)
}

// FormatID renders a public key as a feed id.
func FormatID(pub ed25519.PublicKey) string {
	return "@" + base64.StdEncoding.EncodeToString(pub) + suffix
}

// ParseID parses a feed id, with or without the leading "@".
func ParseID(id string) (ed25519.PublicKey, error) {
	s := strings.TrimPrefix(id, "@")
	if !strings.HasSuffix(s, suffix) {
		return nil, fmt.Errorf("feed id %q: unsupported curve", id)
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(s, suffix))
	if err != nil {
		return nil, fmt.Errorf("feed id %q: %w", id, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("feed id %q: want %d bytes, got %d", id, ed25519.PublicKeySize, len(raw))
	}
	return ed25519.PublicKey(raw), nil
}

// Load reads a secret file.
func Load(path string) (kp *KeyPair, err error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return
	}
	return Parse(contents)
}

// Parse decodes the contents of a secret file, skipping comment lines.
func Parse(contents []byte) (*KeyPair, error) {
	var stripped bytes.Buffer
	scanner := bufio.NewScanner(bytes.NewReader(contents))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		stripped.WriteString(line)
		stripped.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var sf secretFile
	if err := json.Unmarshal(stripped.Bytes(), &sf); err != nil {
		return nil, fmt.Errorf("malformed secret file: %w", err)
	}
	if sf.Curve != curveEd25519 {
		return nil, fmt.Errorf("unsupported curve %q", sf.Curve)
	}

	priv, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(sf.Private, suffix))
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	if len(priv) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("private key: want %d bytes, got %d", ed25519.PrivateKeySize, len(priv))
	}
	kp := &KeyPair{Private: ed25519.PrivateKey(priv)}
	kp.Public = kp.Private.Public().(ed25519.PublicKey)

	if sf.Public != "" {
		pub, err := ParseID(sf.Public)
		if err != nil {
			return nil, fmt.Errorf("public key: %w", err)
		}
		if !pub.Equal(kp.Public) {
			return nil, errors.New("public key does not match private key")
		}
	}
	return kp, nil
}

// Save writes kp to path, creating the parent directory if needed.
func Save(path string, kp *KeyPair) (err error) {
	if err = os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return
	}
	return os.WriteFile(path, Format(kp), 0600)
}

// Format renders kp in the secret file format.
func Format(kp *KeyPair) []byte {
	sf := secretFile{
		Curve:   curveEd25519,
		Public:  base64.StdEncoding.EncodeToString(kp.Public) + suffix,
		Private: base64.StdEncoding.EncodeToString(kp.Private) + suffix,
		ID:      kp.ID(),
	}
	body, _ := json.MarshalIndent(sf, "", "  ")

	var buf bytes.Buffer
	buf.WriteString("# this is your SECRET name.\n")
	buf.WriteString("# this name gives you magical powers.\n")
	buf.WriteString("# with it you can mark your messages so that your friends can verify\n")
	buf.WriteString("# that they really did come from you.\n")
	buf.WriteString("#\n")
	buf.WriteString("# if any one learns this name, they can use it to destroy your identity\n")
	buf.WriteString("# NEVER show this to anyone!!!\n\n")
	buf.Write(body)
	buf.WriteString("\n\n# WARNING! It's vital that you DO NOT edit OR share your secret name\n")
	buf.WriteString("# instead, share your public name\n")
	buf.WriteString("# your public name: " + kp.ID() + "\n")
	return buf.Bytes()
}

// LoadOrCreate loads the identity at path, generating and saving a new one
// if the file does not exist yet.
func LoadOrCreate(path string) (*KeyPair, error) {
	kp, err := Load(path)
	if err == nil {
		return kp, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load keys from %s: %w", path, err)
	}

	kp, err = Generate()
	if err != nil {
		return nil, err
	}
	if err := Save(path, kp); err != nil {
		return nil, fmt.Errorf("save keys to %s: %w", path, err)
	}
	return kp, nil
}
