package crypto

import (
	"strings"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := "sk-ant-secret-key"
	encrypted, err := c.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if encrypted == plaintext {
		t.Fatal("ciphertext equals plaintext")
	}

	decrypted, err := c.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptNonDeterministic(t *testing.T) {
	c, err := New(testKey)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, _ := c.Encrypt("same input")
	b, _ := c.Encrypt("same input")
	if a == b {
		t.Error("two encryptions of the same plaintext produced identical ciphertext")
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	c1, _ := New(testKey)
	c2, _ := New(strings.Repeat("ff", 32))

	encrypted, err := c1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := c2.Decrypt(encrypted); err == nil {
		t.Error("expected decryption failure with a different key")
	}
}

func TestNewRejectsBadKeys(t *testing.T) {
	for _, key := range []string{"", "abcd", "zz" + testKey[2:], testKey + "00"} {
		if _, err := New(key); err == nil {
			t.Errorf("New(%q): expected error", key)
		}
	}
}

func TestDecryptRejectsGarbage(t *testing.T) {
	c, _ := New(testKey)

	for _, input := range []string{"", "not base64!!!", "YWJj"} {
		if _, err := c.Decrypt(input); err == nil {
			t.Errorf("Decrypt(%q): expected error", input)
		}
	}
}
