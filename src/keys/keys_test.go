package keys

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDumpParsePrivateKey(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	dump := DumpPrivateKey(key)

	parsed, err := ParsePrivateKey(dump)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.D.Cmp(key.D) != 0 {
		t.Fatal("parsed key does not match original")
	}

	if PublicKeyHex(&parsed.PublicKey) != PublicKeyHex(&key.PublicKey) {
		t.Fatal("parsed public key does not match original")
	}
}

func TestPublicKeyRoundTrip(t *testing.T) {
	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	raw := FromPublicKey(&key.PublicKey)

	pub := ToPublicKey(raw)

	if pub.X.Cmp(key.PublicKey.X) != 0 || pub.Y.Cmp(key.PublicKey.Y) != 0 {
		t.Fatal("public key round trip failed")
	}

	if !strings.HasPrefix(PublicKeyHex(pub), "0X") {
		t.Fatalf("peer id = %s, expected 0X prefix", PublicKeyHex(pub))
	}
}

func TestSimpleKeyfile(t *testing.T) {
	dir, err := ioutil.TempDir("", "keyfile_test")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)

	file := filepath.Join(dir, "priv_key")

	keyfile := NewSimpleKeyfile(file)

	key, err := GenerateECDSAKey()
	if err != nil {
		t.Fatal(err)
	}

	if err := keyfile.WriteKey(key); err != nil {
		t.Fatal(err)
	}

	read, err := keyfile.ReadKey()
	if err != nil {
		t.Fatal(err)
	}

	if read.D.Cmp(key.D) != 0 {
		t.Fatal("read key does not match written key")
	}

	// Keys readable by group or others are refused.
	if err := os.Chmod(file, 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := keyfile.ReadKey(); err == nil {
		t.Fatal("expected an error reading a world-readable key file")
	}
}
