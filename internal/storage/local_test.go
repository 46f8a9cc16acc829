package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "segment.jsonl.sz")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLocalStorageUploadDownload(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := writeTempFile(t, "archived events")
	require.NoError(t, store.Upload(ctx, src, "segments/github/seg-1"))

	exists, err := store.Exists(ctx, "segments/github/seg-1")
	require.NoError(t, err)
	assert.True(t, exists)

	dest := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, store.Download(ctx, "segments/github/seg-1", dest))

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archived events", string(got))
}

func TestLocalStorageDownloadMissing(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	err = store.Download(ctx, "segments/missing", filepath.Join(t.TempDir(), "out"))
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestLocalStorageDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := writeTempFile(t, "x")
	require.NoError(t, store.Upload(ctx, src, "segments/a"))
	require.NoError(t, store.Delete(ctx, "segments/a"))

	exists, err := store.Exists(ctx, "segments/a")
	require.NoError(t, err)
	assert.False(t, exists)

	// Second delete of the same key is a no-op.
	assert.NoError(t, store.Delete(ctx, "segments/a"))
}

func TestLocalStorageListObjects(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	src := writeTempFile(t, "x")
	require.NoError(t, store.Upload(ctx, src, "segments/github/seg-1"))
	require.NoError(t, store.Upload(ctx, src, "segments/github/seg-2"))
	require.NoError(t, store.Upload(ctx, src, "segments/slack/seg-1"))

	github, err := store.ListObjects(ctx, "segments/github")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"segments/github/seg-1", "segments/github/seg-2"}, github)

	all, err := store.ListObjects(ctx, "segments")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	none, err := store.ListObjects(ctx, "nonexistent")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestLocalStorageCancelledContext(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := writeTempFile(t, "x")
	assert.Error(t, store.Upload(ctx, src, "segments/a"))
}
