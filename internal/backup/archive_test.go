package backup

import (
	"bytes"
	"strings"
	"testing"
)

func TestCompressRoundTrip(t *testing.T) {
	plain := []byte(strings.Repeat("INSERT INTO \"patients\" VALUES (1);\n", 200))

	packed, err := Compress(plain)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if len(packed) >= len(plain) {
		t.Errorf("compressed size %d not smaller than input %d", len(packed), len(plain))
	}

	out, err := Decompress(packed)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Error("round trip did not preserve data")
	}
}

func TestEncryptRoundTrip(t *testing.T) {
	plain := []byte("-- hilot sql_dump v1\nDELETE FROM \"patients\";\n")
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("generate salt: %v", err)
	}

	sealed, err := Encrypt(plain, "correct horse battery", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Contains(sealed, []byte("patients")) {
		t.Error("ciphertext leaks plaintext")
	}

	out, err := Decrypt(sealed, "correct horse battery")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Error("round trip did not preserve data")
	}
}

func TestDecryptWrongPassphrase(t *testing.T) {
	salt, _ := GenerateSalt()
	sealed, err := Encrypt([]byte("secret"), "right", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := Decrypt(sealed, "wrong"); err == nil {
		t.Fatal("decrypt with wrong passphrase should fail")
	}
}

func TestDecryptTampered(t *testing.T) {
	salt, _ := GenerateSalt()
	sealed, err := Encrypt([]byte("secret"), "pass", salt)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	sealed[len(sealed)-1] ^= 0xff
	if _, err := Decrypt(sealed, "pass"); err == nil {
		t.Fatal("decrypt of tampered ciphertext should fail")
	}
}

func TestDecryptTruncated(t *testing.T) {
	if _, err := Decrypt([]byte("short"), "pass"); err == nil {
		t.Fatal("decrypt of truncated input should fail")
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("hello"))
	b := Checksum([]byte("hello"))
	c := Checksum([]byte("hello!"))

	if len(a) != 64 {
		t.Errorf("checksum length = %d, want 64 hex chars", len(a))
	}
	if a != b {
		t.Error("checksum not deterministic")
	}
	if a == c {
		t.Error("different inputs produced the same checksum")
	}
}
