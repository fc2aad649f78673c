// Package envvar defines per-user environment-variable sets and the
// {{NAME}} placeholder resolution applied to block configuration before
// execution. Values are stored encrypted and decrypted lazily, only for
// the names actually referenced.
package envvar

import (
	"time"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// Set is a user's environment-variable set: variable name to ciphertext.
type Set struct {
	UserID    shared.ID
	Values    map[string]string
	UpdatedAt time.Time
}

// NewSet creates an empty set for a user.
func NewSet(userID shared.ID) *Set {
	return &Set{
		UserID:    userID,
		Values:    make(map[string]string),
		UpdatedAt: time.Now(),
	}
}

// Ciphertext returns the stored ciphertext for a variable name.
func (s *Set) Ciphertext(name string) (string, bool) {
	if s == nil || s.Values == nil {
		return "", false
	}
	v, ok := s.Values[name]
	return v, ok
}

// Put stores a ciphertext value for a variable name.
func (s *Set) Put(name, ciphertext string) {
	if s.Values == nil {
		s.Values = make(map[string]string)
	}
	s.Values[name] = ciphertext
	s.UpdatedAt = time.Now()
}

// Remove deletes a variable from the set.
func (s *Set) Remove(name string) {
	delete(s.Values, name)
	s.UpdatedAt = time.Now()
}

// Names returns the variable names present in the set.
func (s *Set) Names() []string {
	names := make([]string, 0, len(s.Values))
	for name := range s.Values {
		names = append(names, name)
	}
	return names
}
