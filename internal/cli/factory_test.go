package cli

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/cftbridge"
	"github.com/aretw0/cftbridge/internal/logging"
	"github.com/aretw0/cftbridge/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()

	t.Run("file store lives under the workspace", func(t *testing.T) {
		dir := t.TempDir()
		store, locker, closeFn, err := NewStore(Options{Dir: dir})
		require.NoError(t, err)
		defer closeFn()
		assert.Nil(t, locker)

		require.NoError(t, store.Save(ctx, domain.NewSettings("proj", "/data")))
		assert.FileExists(t, filepath.Join(dir, cftbridge.SettingsDir, "proj.yaml"))
	})

	t.Run("memory store", func(t *testing.T) {
		store, _, closeFn, err := NewStore(Options{Store: StoreMemory})
		require.NoError(t, err)
		defer closeFn()

		_, err = store.Load(ctx, "missing")
		assert.ErrorIs(t, err, domain.ErrSettingsNotFound)
	})

	t.Run("redis store with lock", func(t *testing.T) {
		mr := miniredis.RunT(t)
		store, locker, closeFn, err := NewStore(Options{Store: StoreRedis, RedisAddr: mr.Addr(), Lock: true})
		require.NoError(t, err)
		defer closeFn()
		require.NotNil(t, locker)

		require.NoError(t, store.Save(ctx, domain.NewSettings("proj", "/data")))
		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"proj"}, ids)

		unlock, err := locker.Lock(ctx, "proj", time.Second)
		require.NoError(t, err)
		require.NoError(t, unlock(ctx))
	})

	t.Run("redis store requires an address", func(t *testing.T) {
		_, _, closeFn, err := NewStore(Options{Store: StoreRedis})
		assert.Error(t, err)
		assert.NotNil(t, closeFn)
	})

	t.Run("unknown store", func(t *testing.T) {
		_, _, _, err := NewStore(Options{Store: "etcd"})
		assert.ErrorContains(t, err, "unknown store")
	})
}

func TestNewBridge(t *testing.T) {
	dir := t.TempDir()
	bridge, closeFn, err := NewBridge(Options{Dir: dir, Store: StoreMemory}, logging.NewNop())
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, dir, bridge.Dir())
	snapshot, err := bridge.Model().Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snapshot.Elements)
}
