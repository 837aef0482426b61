package secrets

import (
	"bytes"
	"strings"
	"testing"
)

const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestSealOpenRoundtrip(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box failed: %v", err)
	}
	plaintext := []byte(`{"bot_token":"secret-token"}`)
	sealed, err := box.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Contains(sealed, []byte("secret-token")) {
		t.Fatalf("sealed payload leaks plaintext")
	}
	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("roundtrip mismatch: %q", opened)
	}
}

func TestSealProducesUniqueNonces(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box failed: %v", err)
	}
	a, err := box.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	b, err := box.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two seals of the same plaintext must differ")
	}
}

func TestOpenRejectsTamperedPayload(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box failed: %v", err)
	}
	sealed, err := box.Seal([]byte("payload"))
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}
	sealed[len(sealed)-1] ^= 0x01
	if _, err := box.Open(sealed); err == nil {
		t.Fatalf("expected authentication failure")
	}
}

func TestOpenRejectsShortPayload(t *testing.T) {
	t.Parallel()

	box, err := NewBox(testKey)
	if err != nil {
		t.Fatalf("new box failed: %v", err)
	}
	if _, err := box.Open([]byte("short")); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestNewBoxKeyValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewBox("not-hex"); err == nil {
		t.Fatalf("expected error for non-hex key")
	}
	if _, err := NewBox(strings.Repeat("ab", 16)); err == nil {
		t.Fatalf("expected error for 16-byte key")
	}
	if _, err := NewBox(strings.Repeat("ab", 32)); err != nil {
		t.Fatalf("32-byte key should be accepted: %v", err)
	}
}
