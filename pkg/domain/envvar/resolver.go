package envvar

import (
	"fmt"
	"regexp"
)

// placeholderRegex matches {{NAME}} references in block configuration values.
var placeholderRegex = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Decrypter decrypts a stored ciphertext value.
type Decrypter interface {
	DecryptString(encoded string) (string, error)
}

// UndefinedVariableError is returned when a referenced variable name has
// no entry in the user's environment-variable set.
type UndefinedVariableError struct {
	Name string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("variable %q not found", e.Name)
}

// Resolver substitutes {{NAME}} placeholders with decrypted values.
type Resolver struct {
	decrypter Decrypter
}

// NewResolver creates a resolver backed by the given decrypter.
func NewResolver(decrypter Decrypter) *Resolver {
	return &Resolver{decrypter: decrypter}
}

// ResolveString replaces every {{NAME}} occurrence in value, left to
// right, decrypting each referenced name once per occurrence. It fails
// on the first reference to a name missing from the set; earlier
// occurrences may already have been substituted at that point, which is
// fine because callers discard the whole result on error.
func (r *Resolver) ResolveString(value string, set *Set) (string, error) {
	matches := placeholderRegex.FindAllStringSubmatchIndex(value, -1)
	if len(matches) == 0 {
		return value, nil
	}

	var out []byte
	last := 0
	for _, m := range matches {
		name := value[m[2]:m[3]]

		ciphertext, ok := set.Ciphertext(name)
		if !ok {
			return "", &UndefinedVariableError{Name: name}
		}

		plaintext, err := r.decrypter.DecryptString(ciphertext)
		if err != nil {
			return "", fmt.Errorf("failed to decrypt variable %q: %w", name, err)
		}

		out = append(out, value[last:m[0]]...)
		out = append(out, plaintext...)
		last = m[1]
	}
	out = append(out, value[last:]...)

	return string(out), nil
}

// ResolveFields resolves placeholders in every string-typed field of a
// block state map. Non-string and token-free values pass through
// unchanged. The input map is not mutated.
func (r *Resolver) ResolveFields(fields map[string]any, set *Set) (map[string]any, error) {
	resolved := make(map[string]any, len(fields))
	for key, value := range fields {
		s, ok := value.(string)
		if !ok {
			resolved[key] = value
			continue
		}

		replaced, err := r.ResolveString(s, set)
		if err != nil {
			return nil, err
		}
		resolved[key] = replaced
	}
	return resolved, nil
}

// Decrypt returns the plaintext of a single stored variable.
func (r *Resolver) Decrypt(name string, set *Set) (string, error) {
	ciphertext, ok := set.Ciphertext(name)
	if !ok {
		return "", &UndefinedVariableError{Name: name}
	}
	return r.decrypter.DecryptString(ciphertext)
}

// References returns the variable names referenced by a value, in order
// of appearance.
func References(value string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(value, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}
