package dependencies

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/docstore/sqlitestore"
	"github.com/looplj/dochooks/internal/notifier"
	"github.com/looplj/dochooks/internal/pkg/watcher"
	"github.com/looplj/dochooks/internal/pkg/xredis"
)

func TestNewRedisClient(t *testing.T) {
	t.Run("memory mode needs no client", func(t *testing.T) {
		client, err := NewRedisClient(watcher.Config{Mode: watcher.ModeMemory})
		require.NoError(t, err)
		assert.Nil(t, client)
	})

	t.Run("redis mode without address", func(t *testing.T) {
		_, err := NewRedisClient(watcher.Config{Mode: watcher.ModeRedis})
		require.Error(t, err)
	})

	t.Run("redis mode", func(t *testing.T) {
		mr := miniredis.RunT(t)

		client, err := NewRedisClient(watcher.Config{Mode: watcher.ModeRedis, Redis: xredis.Config{Addr: mr.Addr()}})
		require.NoError(t, err)
		require.NotNil(t, client)
		t.Cleanup(func() { _ = client.Close() })
	})
}

func TestNewDatabase(t *testing.T) {
	feed, err := NewChangeFeed(watcher.Config{Mode: watcher.ModeMemory}, nil)
	require.NoError(t, err)

	t.Run("memory", func(t *testing.T) {
		db, err := NewDatabase(conf.StoreConfig{Type: conf.StoreMemory}, feed)
		require.NoError(t, err)
		assert.IsType(t, &docstore.MemoryDatabase{}, db)
		require.NoError(t, db.Close())
	})

	t.Run("sqlite", func(t *testing.T) {
		dsn := "file:" + filepath.Join(t.TempDir(), "hooks.db")

		db, err := NewDatabase(conf.StoreConfig{Type: conf.StoreSQLite, SQLite: sqlitestore.Config{DSN: dsn}}, feed)
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		store, err := db.Collection("posts")
		require.NoError(t, err)
		assert.Equal(t, "posts", store.Name())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := NewDatabase(conf.StoreConfig{Type: "cassandra"}, feed)
		require.Error(t, err)
	})
}

func TestNewFactory(t *testing.T) {
	feed, err := NewChangeFeed(watcher.Config{}, nil)
	require.NoError(t, err)

	db := docstore.NewMemoryDatabase(feed)
	registry := collection.NewRegistry()

	factory, err := NewFactory(db, registry, collection.Config{
		InstanceID: "instance-a",
		Notifier:   notifier.Config{Mode: string(notifier.ModeSync)},
	})
	require.NoError(t, err)
	assert.Equal(t, "instance-a", factory.Options().InstanceID)

	c, err := factory.Collection(context.Background(), "posts")
	require.NoError(t, err)
	assert.Equal(t, []string{"posts"}, registry.Names())
	require.NoError(t, registry.Close(context.Background()))
	assert.Equal(t, "posts", c.Name())

	_, err = NewFactory(db, collection.NewRegistry(), collection.Config{BeforeHookErrors: "explode"})
	require.Error(t, err)
}
