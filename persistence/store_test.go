package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshify/agentbus-go/contracts"
)

func TestFileStoreSaveLoad(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	env := contracts.NewEnvelope("alice", "bob", contracts.Custom("task"), []byte("work"),
		contracts.WithRequiresAck(),
		contracts.WithCorrelationID("corr-7"),
	)
	require.NoError(t, store.Save(ctx, env))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, env.ID, loaded[0].ID)
	assert.Equal(t, "corr-7", loaded[0].CorrelationID)
	assert.Equal(t, []byte("work"), loaded[0].Payload)
	assert.True(t, loaded[0].RequiresAck)
}

func TestFileStoreSaveOverwrites(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	env := contracts.NewEnvelope("alice", "bob", contracts.Custom("task"), nil, contracts.WithRequiresAck())
	require.NoError(t, store.Save(ctx, env))
	env.RetryCount = 2
	require.NoError(t, store.Save(ctx, env))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 2, loaded[0].RetryCount)
}

func TestFileStoreDelete(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	env := contracts.NewEnvelope("alice", "bob", contracts.Custom("task"), nil)
	require.NoError(t, store.Save(ctx, env))
	require.NoError(t, store.Delete(ctx, env.ID))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded)

	t.Run("deleting absent record is a no-op", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never-existed"))
	})
}

func TestFileStoreLoadSkipsCorruptRecords(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	ctx := context.Background()

	good := contracts.NewEnvelope("alice", "bob", contracts.Custom("task"), nil)
	require.NoError(t, store.Save(ctx, good))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{not json"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	loaded, err := store.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, good.ID, loaded[0].ID)
}

func TestStoreInterfaceCompliance(t *testing.T) {
	var _ Store = (*FileStore)(nil)
	var _ Store = (*RedisStore)(nil)
}
