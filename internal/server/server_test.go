package server

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/audit"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/notifier"
	"github.com/looplj/dochooks/internal/pkg/watcher"
)

func newTestServer(t *testing.T, auditCfg audit.Config, names ...string) *Server {
	t.Helper()

	feed := watcher.NewMemoryWatcher[docstore.ChangeEvent](watcher.MemoryWatcherOptions{})
	registry := collection.NewRegistry()
	factory := collection.NewFactory(docstore.NewMemoryDatabase(feed), registry, collection.Options{
		InstanceID: "instance-a",
		Notifier:   notifier.Config{Mode: string(notifier.ModeSync)},
	})

	srv, err := New(Params{
		Store:    conf.StoreConfig{Type: conf.StoreMemory, Collections: names},
		Audit:    auditCfg,
		Factory:  factory,
		Registry: registry,
	})
	require.NoError(t, err)

	return srv
}

func TestServer_StartOpensConfiguredCollections(t *testing.T) {
	ctx := context.Background()
	srv := newTestServer(t, audit.Config{}, "posts", "users")

	require.NoError(t, srv.Start(ctx))
	assert.Equal(t, []string{"posts", "users"}, srv.Registry.Names())

	for _, name := range srv.Registry.Names() {
		c, ok := srv.Registry.Lookup(name)
		require.True(t, ok)
		assert.Equal(t, srv.InstanceID(), c.InstanceID())
	}

	assert.Equal(t, "instance-a", srv.InstanceID())

	again, err := srv.Open(ctx, "posts")
	require.NoError(t, err)

	first, ok := srv.Registry.Lookup("posts")
	require.True(t, ok)
	assert.Same(t, first, again)

	require.NoError(t, srv.Shutdown(ctx))
}

func TestServer_AuditTrail(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "audit.log")
	srv := newTestServer(t, audit.Config{Enabled: true, Path: path, MaxSize: 1}, "posts")

	require.NoError(t, srv.Start(ctx))

	posts, ok := srv.Registry.Lookup("posts")
	require.True(t, ok)

	id, err := posts.Insert(ctx, docstore.Document{"title": "hello"})
	require.NoError(t, err)
	require.NoError(t, srv.Shutdown(ctx))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var record audit.Record
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
	assert.Equal(t, "posts", record.Collection)
	assert.Equal(t, "insert", record.Operation)
	assert.Equal(t, id, record.DocumentID)
	assert.Equal(t, "instance-a", record.InstanceID)
	assert.WithinDuration(t, time.Now(), record.ChangedAt, time.Minute)
}
