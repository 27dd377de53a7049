package artifact

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	appErr "github.com/carelink/clinassist/internal/pkg/errors"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	store, err := New("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Open(ctx, "chunks.json")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, store.Save(ctx, "chunks.json", []byte(`{"chunks":[]}`)))
	data, err := store.Open(ctx, "chunks.json")
	require.NoError(t, err)
	require.Equal(t, []byte(`{"chunks":[]}`), data)
}

func TestLocalStore_NilConfigUsesDefaultDir(t *testing.T) {
	store, err := New("local", nil)
	require.NoError(t, err)
	local, ok := store.(*localStore)
	require.True(t, ok)
	require.Equal(t, defaultLocalDir, local.dir)
}

func TestLocalStore_RejectsPathKeys(t *testing.T) {
	store, err := New("local", map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)

	require.Error(t, store.Save(context.Background(), "../escape.json", nil))
	_, err = store.Open(context.Background(), "nested/key.json")
	require.Error(t, err)
}
