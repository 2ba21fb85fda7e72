package crypto

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

func testKey(t *testing.T) string {
	t.Helper()
	return hex.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
}

func TestRoundtrip(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	original := "AIzaSy-user-provider-key"
	encrypted, err := c.Encrypt(original, "user-1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == original || strings.Contains(encrypted, original) {
		t.Fatal("encrypted text should not contain the plaintext")
	}

	decrypted, err := c.Decrypt(encrypted, "user-1")
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != original {
		t.Errorf("roundtrip failed: got %q, want %q", decrypted, original)
	}
}

func TestAssociatedDataMustMatch(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	encrypted, err := c.Encrypt("secret", "user-1")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c.Decrypt(encrypted, "user-2"); err == nil {
		t.Fatal("expected error when opening another user's value")
	}
}

func TestDifferentCiphertexts(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	enc1, err := c.Encrypt("same input", "u")
	if err != nil {
		t.Fatalf("Encrypt 1: %v", err)
	}
	enc2, err := c.Encrypt("same input", "u")
	if err != nil {
		t.Fatalf("Encrypt 2: %v", err)
	}
	if enc1 == enc2 {
		t.Error("two encryptions of the same plaintext should differ (random nonce)")
	}
}

func TestNilCipherPassthrough(t *testing.T) {
	var c *Cipher
	if c.Enabled() {
		t.Fatal("nil cipher should report disabled")
	}

	enc, err := c.Encrypt("plain", "u")
	if err != nil || enc != "plain" {
		t.Errorf("Encrypt passthrough = %q, %v", enc, err)
	}
	dec, err := c.Decrypt("plain", "u")
	if err != nil || dec != "plain" {
		t.Errorf("Decrypt passthrough = %q, %v", dec, err)
	}
}

func TestNewCipher(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantNil bool
		wantErr bool
	}{
		{name: "empty disables", key: "", wantNil: true},
		{name: "valid", key: hex.EncodeToString(make([]byte, 32))},
		{name: "bad hex", key: "zz", wantErr: true},
		{name: "short key", key: hex.EncodeToString(make([]byte, 16)), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewCipher(tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if (c == nil) != tt.wantNil {
				t.Errorf("cipher nil = %v, want %v", c == nil, tt.wantNil)
			}
		})
	}
}

func TestDecryptErrors(t *testing.T) {
	c, err := NewCipher(testKey(t))
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	if _, err := c.Decrypt("not base64!!", "u"); err == nil {
		t.Error("expected base64 error")
	}
	if _, err := c.Decrypt("AAAA", "u"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("expected ErrCiphertextTooShort, got %v", err)
	}
}
