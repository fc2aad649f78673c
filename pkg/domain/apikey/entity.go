// Package apikey provides API key issuance and verification for
// programmatic workflow execution.
package apikey

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

const (
	// RawKeyPrefix marks Flowdeck API keys so they are recognizable in
	// config files and secret scanners.
	RawKeyPrefix = "fd_"

	// keyLength is the number of random bytes in a key. 31 bytes keeps
	// the full raw key within bcrypt's 72-byte input limit.
	keyLength = 31

	// lookupPrefixLen is how many characters of the raw key are stored
	// in clear for indexed lookup. The rest is only ever bcrypt-hashed.
	lookupPrefixLen = 12

	bcryptCost = 10
)

// Key is an issued API key. The raw key is returned exactly once at
// creation time; only the bcrypt hash and a short lookup prefix are
// stored.
type Key struct {
	ID         shared.ID
	UserID     shared.ID
	Name       string
	Prefix     string
	Hash       string `json:"-"`
	LastUsedAt *time.Time
	CreatedAt  time.Time
}

// New issues a new API key for the user. It returns the entity and the
// raw key to hand to the caller.
func New(userID shared.ID, name string) (*Key, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, "", shared.NewDomainError("VALIDATION", "api key name is required", shared.ErrValidation)
	}
	if userID.IsZero() {
		return nil, "", shared.NewDomainError("VALIDATION", "user id is required", shared.ErrValidation)
	}

	raw, err := generateRawKey()
	if err != nil {
		return nil, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash api key: %w", err)
	}

	return &Key{
		ID:        shared.NewID(),
		UserID:    userID,
		Name:      name,
		Prefix:    raw[:lookupPrefixLen],
		Hash:      string(hash),
		CreatedAt: time.Now(),
	}, raw, nil
}

// Verify reports whether the raw key matches this key's hash.
func (k *Key) Verify(raw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(raw)) == nil
}

// Touch marks the key as used now.
func (k *Key) Touch() {
	now := time.Now()
	k.LastUsedAt = &now
}

// LookupPrefix returns the clear-text prefix of a raw key, used to
// narrow the candidate set before bcrypt comparison. Returns an empty
// string for keys too short to be valid.
func LookupPrefix(raw string) string {
	if len(raw) < lookupPrefixLen {
		return ""
	}
	return raw[:lookupPrefixLen]
}

func generateRawKey() (string, error) {
	buf := make([]byte, keyLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate api key: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	return RawKeyPrefix + encoded, nil
}
