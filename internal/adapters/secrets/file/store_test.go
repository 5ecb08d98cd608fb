package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/meetlink/internal/domain"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "meetlink/tokens", `{"access_token":"a"}`))

	value, err := store.Get(ctx, "meetlink/tokens")
	require.NoError(t, err)
	assert.Equal(t, `{"access_token":"a"}`, value)
}

func TestGetMissingKey(t *testing.T) {
	store := NewStore(t.TempDir())

	_, err := store.Get(context.Background(), "meetlink/tokens")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "meetlink/tokens", "value"))
	require.NoError(t, store.Delete(ctx, "meetlink/tokens"))
	require.NoError(t, store.Delete(ctx, "meetlink/tokens"))

	_, err := store.Get(ctx, "meetlink/tokens")
	require.ErrorIs(t, err, domain.ErrSecretNotFound)
}

func TestSecretFilePermissions(t *testing.T) {
	root := t.TempDir()
	store := NewStore(root)

	require.NoError(t, store.Put(context.Background(), "meetlink/tokens", "value"))

	info, err := os.Stat(filepath.Join(root, "meetlink", "tokens"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(secretFileMod), info.Mode().Perm())
}

func TestRejectsPathEscapingKeys(t *testing.T) {
	store := NewStore(t.TempDir())
	ctx := context.Background()

	for _, key := range []string{"", "  ", "../outside", "/etc/passwd", "."} {
		assert.Error(t, store.Put(ctx, key, "value"), "key %q", key)
	}
}
