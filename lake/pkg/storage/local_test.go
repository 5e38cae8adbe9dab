package storage

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestLake_Storage_Local_PrepareClearsPreviousOutput(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(ctx, testLogger(), "file://"+dir, nil)
	require.NoError(t, err)
	require.Equal(t, "file://"+dir, store.Root())

	stale := filepath.Join(dir, "songs.parquet", "year=2000", "artist_id=AR1", "data_0.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0644))
	sibling := filepath.Join(dir, "artists.parquet", "data_0.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(sibling), 0755))
	require.NoError(t, os.WriteFile(sibling, []byte("keep"), 0644))

	require.NoError(t, store.Prepare(ctx, "songs.parquet"))

	_, err = os.Stat(stale)
	require.True(t, os.IsNotExist(err))
	info, err := os.Stat(filepath.Join(dir, "songs.parquet"))
	require.NoError(t, err)
	require.True(t, info.IsDir())

	_, err = os.Stat(sibling)
	require.NoError(t, err)
}

func TestLake_Storage_Local_PutGet(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := New(ctx, testLogger(), "file://"+dir+"/nested/out", nil)
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, "_run.json", []byte(`{"ok":true}`), "application/json"))
	got, err := store.Get(ctx, "_run.json")
	require.NoError(t, err)
	require.Equal(t, `{"ok":true}`, string(got))

	_, err = os.Stat(filepath.Join(dir, "nested", "out", "_run.json"))
	require.NoError(t, err)
}

func TestLake_Storage_Local_RejectsEscapingKeys(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, testLogger(), "file://"+t.TempDir(), nil)
	require.NoError(t, err)

	require.Error(t, store.Prepare(ctx, "../elsewhere"))
	require.Error(t, store.Prepare(ctx, "/"))
	require.Error(t, store.Put(ctx, "a/../../b", nil, ""))
}

func TestLake_Storage_New_S3ConfigRequired(t *testing.T) {
	_, err := New(context.Background(), testLogger(), "s3://test-bucket/out", nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "S3 configuration is required")
}

func TestLake_Storage_IsLocalEndpoint(t *testing.T) {
	require.True(t, isLocalEndpoint("http://localhost:9000"))
	require.True(t, isLocalEndpoint("127.0.0.1:9000"))
	require.True(t, isLocalEndpoint("http://host.docker.internal:9000"))
	require.False(t, isLocalEndpoint(""))
	require.False(t, isLocalEndpoint("https://s3.us-west-2.amazonaws.com"))
}
