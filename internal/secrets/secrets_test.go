package secrets

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestRoundTrip(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	for _, plain := range []string{"", "app-password", "tlpb vngj xjpq nrex"} {
		enc, err := c.Encrypt(plain)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		if plain != "" && strings.Contains(enc, plain) {
			t.Fatalf("ciphertext contains plaintext: %q", enc)
		}
		got, err := c.Decrypt(enc)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plain {
			t.Fatalf("round trip: got %q, want %q", got, plain)
		}
	}
}

func TestNewCipher_BadKeyLength(t *testing.T) {
	if _, err := NewCipher("short"); err == nil {
		t.Fatal("expected error for short key")
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	c, err := NewCipher(testKey)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}
	if _, err := c.Decrypt("not-hex"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
	if _, err := c.Decrypt("abcd"); err == nil {
		t.Fatal("expected error for truncated input")
	}
}
