package apikey

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowdeckio/api/pkg/domain/shared"
)

func TestNew(t *testing.T) {
	userID := shared.NewID()

	key, raw, err := New(userID, "ci deploy")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(raw, RawKeyPrefix))
	assert.Equal(t, raw[:lookupPrefixLen], key.Prefix)
	assert.Equal(t, "ci deploy", key.Name)
	assert.NotContains(t, key.Hash, raw, "hash must not embed the raw key")

	assert.True(t, key.Verify(raw))
	assert.False(t, key.Verify(raw+"x"))
	assert.False(t, key.Verify("fd_other"))
}

func TestNew_Validation(t *testing.T) {
	_, _, err := New(shared.NewID(), "   ")
	assert.Error(t, err)

	_, _, err = New(shared.ID{}, "name")
	assert.Error(t, err)
}

func TestNew_UniqueKeys(t *testing.T) {
	userID := shared.NewID()

	_, raw1, err := New(userID, "a")
	require.NoError(t, err)
	_, raw2, err := New(userID, "b")
	require.NoError(t, err)

	assert.NotEqual(t, raw1, raw2)
}

func TestLookupPrefix(t *testing.T) {
	_, raw, err := New(shared.NewID(), "key")
	require.NoError(t, err)

	assert.Equal(t, raw[:lookupPrefixLen], LookupPrefix(raw))
	assert.Empty(t, LookupPrefix("short"))
}
