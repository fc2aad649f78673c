package envvar

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

// reverseDecrypter "decrypts" by stripping an enc: prefix. Lets tests
// tell ciphertext and plaintext apart without real crypto.
type reverseDecrypter struct {
	calls int
}

func (d *reverseDecrypter) DecryptString(encoded string) (string, error) {
	d.calls++
	return strings.TrimPrefix(encoded, "enc:"), nil
}

func newTestSet(values map[string]string) *Set {
	set := NewSet(shared.NewID())
	for name, plaintext := range values {
		set.Put(name, "enc:"+plaintext)
	}
	return set
}

func TestResolver_ResolveString(t *testing.T) {
	set := newTestSet(map[string]string{
		"API_KEY":  "sk-123",
		"BASE_URL": "https://api.example.com",
	})

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"no tokens", "plain value", "plain value"},
		{"single token", "{{API_KEY}}", "sk-123"},
		{"token in text", "Bearer {{API_KEY}}", "Bearer sk-123"},
		{"multiple tokens", "{{BASE_URL}}/v1?key={{API_KEY}}", "https://api.example.com/v1?key=sk-123"},
		{"repeated token", "{{API_KEY}}:{{API_KEY}}", "sk-123:sk-123"},
		{"whitespace inside braces", "{{ API_KEY }}", "sk-123"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(&reverseDecrypter{})
			got, err := r.ResolveString(tt.input, set)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "{{")
			assert.NotContains(t, got, "}}")
		})
	}
}

func TestResolver_ResolveString_UndefinedVariable(t *testing.T) {
	set := newTestSet(map[string]string{"PRESENT": "here"})
	r := NewResolver(&reverseDecrypter{})

	_, err := r.ResolveString("{{PRESENT}} and {{MISSING}}", set)
	require.Error(t, err)

	var undefErr *UndefinedVariableError
	require.True(t, errors.As(err, &undefErr))
	assert.Equal(t, "MISSING", undefErr.Name)
	assert.Equal(t, `variable "MISSING" not found`, err.Error())
}

func TestResolver_DecryptsPerOccurrence(t *testing.T) {
	set := newTestSet(map[string]string{"KEY": "v"})
	dec := &reverseDecrypter{}
	r := NewResolver(dec)

	_, err := r.ResolveString("{{KEY}} {{KEY}} {{KEY}}", set)
	require.NoError(t, err)
	assert.Equal(t, 3, dec.calls)
}

func TestResolver_ResolveFields(t *testing.T) {
	set := newTestSet(map[string]string{"TOKEN": "t0k3n"})
	r := NewResolver(&reverseDecrypter{})

	fields := map[string]any{
		"apiKey":  "{{TOKEN}}",
		"count":   float64(3),
		"enabled": true,
		"plain":   "untouched",
	}

	resolved, err := r.ResolveFields(fields, set)
	require.NoError(t, err)

	assert.Equal(t, "t0k3n", resolved["apiKey"])
	assert.Equal(t, float64(3), resolved["count"])
	assert.Equal(t, true, resolved["enabled"])
	assert.Equal(t, "untouched", resolved["plain"])

	// Input map is not mutated.
	assert.Equal(t, "{{TOKEN}}", fields["apiKey"])
}

func TestResolver_ResolveFields_FailFast(t *testing.T) {
	set := newTestSet(nil)
	r := NewResolver(&reverseDecrypter{})

	_, err := r.ResolveFields(map[string]any{"f": "{{NOPE}}"}, set)

	var undefErr *UndefinedVariableError
	require.True(t, errors.As(err, &undefErr))
	assert.Equal(t, "NOPE", undefErr.Name)
}

func TestReferences(t *testing.T) {
	refs := References("{{A}} then {{B}} then {{A}}")
	assert.Equal(t, []string{"A", "B", "A"}, refs)

	assert.Empty(t, References("no tokens here"))
}
