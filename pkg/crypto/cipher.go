// Package crypto provides encryption utilities for environment-variable
// values and other sensitive data at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Encryptor provides encryption and decryption capabilities.
type Encryptor interface {
	// EncryptString encrypts plaintext and returns the encoded ciphertext.
	EncryptString(plaintext string) (string, error)
	// DecryptString decrypts encoded ciphertext and returns plaintext.
	DecryptString(encoded string) (string, error)
}

var (
	// ErrMissingSecret is returned when the encryption secret is empty.
	ErrMissingSecret = errors.New("crypto: encryption secret is not configured")
	// ErrInvalidCiphertext is returned when the ciphertext is malformed.
	ErrInvalidCiphertext = errors.New("crypto: invalid ciphertext")
	// ErrDecryptionFailed is returned when authentication-tag verification fails.
	ErrDecryptionFailed = errors.New("crypto: decryption failed")
)

// gcmTagSize is the length of the GCM authentication tag in bytes.
const gcmTagSize = 16

// Cipher provides AES-256-GCM encryption and decryption of string values.
//
// The wire format is three colon-delimited hex segments: iv:payload:tag.
// The 256-bit key is derived from the shared secret with SHA-256 on every
// call; the raw secret is never held in key form between calls.
type Cipher struct {
	secret []byte
}

// Ensure Cipher implements Encryptor interface.
var _ Encryptor = (*Cipher)(nil)

// NewCipher creates a new Cipher with the given shared secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	return &Cipher{secret: []byte(secret)}, nil
}

// aead derives the key from the shared secret and builds the GCM instance.
func (c *Cipher) aead() (cipher.AEAD, error) {
	key := sha256.Sum256(c.secret)

	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}

	return cipher.NewGCM(block)
}

// EncryptString encrypts a string and returns iv:payload:tag hex segments.
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	aead, err := c.aead()
	if err != nil {
		return "", err
	}

	iv := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("crypto: failed to generate iv: %w", err)
	}

	// Seal appends the auth tag to the payload; split it back out so the
	// stored format keeps the tag as its own segment.
	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	payload := sealed[:len(sealed)-gcmTagSize]
	tag := sealed[len(sealed)-gcmTagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(payload) + ":" + hex.EncodeToString(tag), nil
}

// DecryptString decrypts an iv:payload:tag encoded value.
// Fails with ErrInvalidCiphertext when the value does not contain exactly
// three hex segments, and ErrDecryptionFailed when tag verification fails.
func (c *Cipher) DecryptString(encoded string) (string, error) {
	parts := strings.Split(encoded, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected iv:payload:tag format", ErrInvalidCiphertext)
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: invalid iv segment", ErrInvalidCiphertext)
	}
	payload, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: invalid payload segment", ErrInvalidCiphertext)
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: invalid tag segment", ErrInvalidCiphertext)
	}
	if len(tag) != gcmTagSize {
		return "", fmt.Errorf("%w: invalid tag length %d", ErrInvalidCiphertext, len(tag))
	}

	aead, err := c.aead()
	if err != nil {
		return "", err
	}
	if len(iv) != aead.NonceSize() {
		return "", fmt.Errorf("%w: invalid iv length %d", ErrInvalidCiphertext, len(iv))
	}

	sealed := make([]byte, 0, len(payload)+len(tag))
	sealed = append(sealed, payload...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// NoOpEncryptor is an Encryptor that does not encrypt (for development/testing).
type NoOpEncryptor struct{}

// EncryptString returns the plaintext as-is (no encryption).
func (n *NoOpEncryptor) EncryptString(plaintext string) (string, error) {
	return plaintext, nil
}

// DecryptString returns the encoded string as-is (no decryption).
func (n *NoOpEncryptor) DecryptString(encoded string) (string, error) {
	return encoded, nil
}

// NewNoOpEncryptor creates a no-op encryptor for development/testing.
func NewNoOpEncryptor() Encryptor {
	return &NoOpEncryptor{}
}
