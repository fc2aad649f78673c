package crypto

import (
	"errors"
	"strings"
	"testing"
)

func TestCipher_EncryptDecrypt(t *testing.T) {
	cipher, err := NewCipher("test-shared-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"empty string", ""},
		{"simple string", "hello world"},
		{"special chars", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"unicode", "こんにちは世界 🔐"},
		{"long string", strings.Repeat("a", 10000)},
		{"api key", "sk-proj-4f8a2b9c1d"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encrypted, err := cipher.EncryptString(tt.plaintext)
			if err != nil {
				t.Fatalf("failed to encrypt: %v", err)
			}

			parts := strings.Split(encrypted, ":")
			if len(parts) != 3 {
				t.Fatalf("expected iv:payload:tag format, got %d segments", len(parts))
			}

			if len(tt.plaintext) > 0 && strings.Contains(encrypted, tt.plaintext) {
				t.Fatal("ciphertext contains plaintext")
			}

			decrypted, err := cipher.DecryptString(encrypted)
			if err != nil {
				t.Fatalf("failed to decrypt: %v", err)
			}

			if decrypted != tt.plaintext {
				t.Fatalf("decrypted text doesn't match: got %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestCipher_DifferentCiphertextEachTime(t *testing.T) {
	cipher, err := NewCipher("test-shared-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	encrypted1, _ := cipher.EncryptString("same plaintext")
	encrypted2, _ := cipher.EncryptString("same plaintext")

	if encrypted1 == encrypted2 {
		t.Fatal("encrypting same plaintext twice should produce different ciphertext (random iv)")
	}
}

func TestCipher_TamperedTagFails(t *testing.T) {
	cipher, err := NewCipher("test-shared-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	encrypted, err := cipher.EncryptString("sensitive value")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	parts := strings.Split(encrypted, ":")
	tag := []byte(parts[2])

	// Flip one hex character of the auth tag.
	if tag[0] == 'a' {
		tag[0] = 'b'
	} else {
		tag[0] = 'a'
	}
	tampered := parts[0] + ":" + parts[1] + ":" + string(tag)

	if _, err := cipher.DecryptString(tampered); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed for tampered tag, got %v", err)
	}
}

func TestCipher_MalformedCiphertext(t *testing.T) {
	cipher, err := NewCipher("test-shared-secret")
	if err != nil {
		t.Fatalf("failed to create cipher: %v", err)
	}

	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"no segments", "deadbeef"},
		{"two segments", "deadbeef:cafe"},
		{"four segments", "de:ad:be:ef"},
		{"non-hex iv", "zzzz:cafe:" + strings.Repeat("ab", 16)},
		{"short tag", "deadbeefdeadbeefdeadbeef:cafe:abcd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := cipher.DecryptString(tt.encoded); !errors.Is(err, ErrInvalidCiphertext) {
				t.Fatalf("expected ErrInvalidCiphertext, got %v", err)
			}
		})
	}
}

func TestCipher_WrongSecretFails(t *testing.T) {
	c1, _ := NewCipher("secret-one")
	c2, _ := NewCipher("secret-two")

	encrypted, err := c1.EncryptString("value")
	if err != nil {
		t.Fatalf("failed to encrypt: %v", err)
	}

	if _, err := c2.DecryptString(encrypted); !errors.Is(err, ErrDecryptionFailed) {
		t.Fatalf("expected ErrDecryptionFailed with wrong secret, got %v", err)
	}
}

func TestNewCipher_EmptySecret(t *testing.T) {
	if _, err := NewCipher(""); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected ErrMissingSecret, got %v", err)
	}
}
