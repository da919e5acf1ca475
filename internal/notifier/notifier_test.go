package notifier

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/provenance"
)

const instance = "inst-1"

type recorder struct {
	mu       sync.Mutex
	inserted []hooks.InsertedEvent
	updated  []hooks.UpdatedEvent
	upserted []hooks.UpsertedEvent
	removed  []hooks.RemovedEvent
}

func newRecorder(r *hooks.Registry) *recorder {
	rec := &recorder{}
	r.AfterInsert.Add(func(_ context.Context, e hooks.InsertedEvent) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.inserted = append(rec.inserted, e)

		return nil
	})
	r.AfterUpdate.Add(func(_ context.Context, e hooks.UpdatedEvent) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.updated = append(rec.updated, e)

		return nil
	})
	r.AfterUpsert.Add(func(_ context.Context, e hooks.UpsertedEvent) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.upserted = append(rec.upserted, e)

		return nil
	})
	r.AfterRemove.Add(func(_ context.Context, e hooks.RemovedEvent) error {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.removed = append(rec.removed, e)

		return nil
	})

	return rec
}

func (r *recorder) counts() (int, int, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.inserted), len(r.updated), len(r.upserted), len(r.removed)
}

func newDispatcher(t *testing.T) (*Dispatcher, *recorder) {
	t.Helper()

	registry := hooks.NewRegistry()

	return NewDispatcher("posts", registry, provenance.NewValidator(instance), 16), newRecorder(registry)
}

func tagged(id string, m provenance.Meta) docstore.Document {
	return provenance.Attach(docstore.Document{"_id": id, "title": "hello"}, m)
}

func TestDispatcher_Change(t *testing.T) {
	ctx := context.Background()
	tagger := provenance.NewTagger(instance, nil)

	t.Run("added insert", func(t *testing.T) {
		d, rec := newDispatcher(t)
		d.Change(ctx, docstore.ChangeEvent{Collection: "posts", Kind: docstore.ChangeAdded, Document: tagged("a", tagger.Tag(ctx, provenance.OpInsert, false))})

		ins, _, _, _ := rec.counts()
		assert.Equal(t, 1, ins)
		assert.Equal(t, "a", rec.inserted[0].Document.ID())
	})

	t.Run("added upsert routes to upsert hooks", func(t *testing.T) {
		d, rec := newDispatcher(t)
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: tagged("a", tagger.Tag(ctx, provenance.OpUpsert, false))})

		ins, _, ups, _ := rec.counts()
		assert.Equal(t, 0, ins)
		assert.Equal(t, 1, ups)
		assert.True(t, rec.upserted[0].Inserted)
	})

	t.Run("changed carries previous", func(t *testing.T) {
		d, rec := newDispatcher(t)
		prev := docstore.Document{"_id": "a", "title": "old"}
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeChanged, Document: tagged("a", tagger.Tag(ctx, provenance.OpUpdate, false)), Previous: prev})

		_, upd, _, _ := rec.counts()
		require.Equal(t, 1, upd)
		assert.Equal(t, "old", rec.updated[0].Previous["title"])
	})

	t.Run("removal phase one change is not an update", func(t *testing.T) {
		d, rec := newDispatcher(t)
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeChanged, Document: tagged("a", tagger.TagRemoval(ctx))})

		_, upd, _, rem := rec.counts()
		assert.Zero(t, upd)
		assert.Zero(t, rem)
	})

	t.Run("removed requires removal tag", func(t *testing.T) {
		d, rec := newDispatcher(t)
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeRemoved, Document: tagged("a", tagger.Tag(ctx, provenance.OpUpdate, false))})
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeRemoved, Document: tagged("b", tagger.TagRemoval(ctx))})

		_, _, _, rem := rec.counts()
		require.Equal(t, 1, rem)
		assert.Equal(t, "b", rec.removed[0].Document.ID())
	})

	t.Run("foreign and direct changes rejected", func(t *testing.T) {
		d, rec := newDispatcher(t)
		foreign := provenance.NewTagger("other", nil)

		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: tagged("a", foreign.Tag(ctx, provenance.OpInsert, false))})
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: tagged("b", tagger.Tag(ctx, provenance.OpInsert, true))})
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: docstore.Document{"_id": "c"}})

		ins, _, _, _ := rec.counts()
		assert.Zero(t, ins)
	})

	t.Run("same tagged state dispatched once", func(t *testing.T) {
		d, rec := newDispatcher(t)
		doc := tagged("a", tagger.Tag(ctx, provenance.OpInsert, false))

		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: doc})
		d.Change(ctx, docstore.ChangeEvent{Kind: docstore.ChangeAdded, Document: doc})
		d.Polled(ctx, provenance.OpInsert, doc)

		ins, _, _, _ := rec.counts()
		assert.Equal(t, 1, ins)
	})
}

func TestNew(t *testing.T) {
	db := docstore.NewMemoryDatabase(nil)
	store := db.MemoryCollection("posts")
	d, _ := newDispatcher(t)

	n, err := New(Config{}, store, d, instance)
	require.NoError(t, err)
	assert.Equal(t, ModeReactive, n.Mode())

	n, err = New(Config{Mode: "polling"}, store, d, instance)
	require.NoError(t, err)
	assert.Equal(t, ModePolling, n.Mode())

	n, err = New(Config{Mode: "sync"}, store, d, instance)
	require.NoError(t, err)
	assert.Equal(t, ModeSync, n.Mode())

	_, err = New(Config{Mode: "telepathy"}, store, d, instance)
	assert.Error(t, err)

	_, err = New(Config{}, plainStore{store}, d, instance)
	assert.Error(t, err)
}

// plainStore hides the Observable side of a store.
type plainStore struct{ docstore.Store }

func TestReactive_EndToEnd(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemoryDatabase(nil)
	store := db.MemoryCollection("posts")
	tagger := provenance.NewTagger(instance, nil)

	d, rec := newDispatcher(t)
	n := NewReactive(store, d, OwnFilter(instance))
	require.NoError(t, n.Start(ctx))

	_, err := store.Insert(ctx, tagged("a", tagger.Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	_, err = store.Update(ctx, docstore.Selector{"_id": "a"}, docstore.Modifier{"$set": map[string]any{
		"title":          "edited",
		provenance.Field: tagger.Tag(ctx, provenance.OpUpdate, false).ToMap(),
	}})
	require.NoError(t, err)

	_, err = store.Insert(ctx, tagged("foreign", provenance.NewTagger("other", nil).Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		ins, upd, _, _ := rec.counts()
		return ins == 1 && upd == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, "edited", rec.updated[0].Document["title"])
	assert.Equal(t, "hello", rec.updated[0].Previous["title"])

	n.Stop()

	_, err = store.Insert(ctx, tagged("late", tagger.Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	ins, _, _, _ := rec.counts()
	assert.Equal(t, 1, ins)
}

func TestPolling_DispatchesOncePerChange(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemoryDatabase(nil)
	store := db.MemoryCollection("posts")
	tagger := provenance.NewTagger(instance, nil)

	registry := hooks.NewRegistry()
	d := NewDispatcher("posts", registry, provenance.NewValidator(instance), 16)

	var calls atomic.Int32

	registry.AfterInsert.Add(func(context.Context, hooks.InsertedEvent) error {
		calls.Add(1)
		return nil
	})

	p := NewPolling(store, d, instance, 100*time.Millisecond, 0)
	require.NoError(t, p.Start(ctx))

	defer p.Stop()

	_, err := store.Insert(ctx, tagged("a", tagger.Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	_, err = store.Insert(ctx, tagged("direct", tagger.Tag(ctx, provenance.OpInsert, true)))
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	assert.Equal(t, int32(1), calls.Load())
}

func TestPolling_IgnoresChangesBeforeStart(t *testing.T) {
	ctx := context.Background()
	db := docstore.NewMemoryDatabase(nil)
	store := db.MemoryCollection("posts")
	tagger := provenance.NewTagger(instance, nil)

	_, err := store.Insert(ctx, tagged("old", tagger.Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	d, rec := newDispatcher(t)
	p := NewPolling(store, d, instance, 20*time.Millisecond, 0)
	require.NoError(t, p.Start(ctx))

	time.Sleep(80 * time.Millisecond)
	p.Stop()

	ins, _, _, _ := rec.counts()
	assert.Zero(t, ins)
}

// lateCommitStore commits inserts after a delay, so a document's tag timestamp
// precedes the moment it becomes visible to queries.
type lateCommitStore struct {
	*docstore.MemoryCollection

	delay time.Duration
}

func (s lateCommitStore) Insert(ctx context.Context, doc docstore.Document) (string, error) {
	time.Sleep(s.delay)
	return s.MemoryCollection.Insert(ctx, doc)
}

func TestPolling_SeesWritesCommittedAfterTheirTick(t *testing.T) {
	ctx := context.Background()
	store := lateCommitStore{MemoryCollection: docstore.NewMemoryDatabase(nil).MemoryCollection("posts"), delay: 150 * time.Millisecond}
	tagger := provenance.NewTagger(instance, nil)

	d, rec := newDispatcher(t)
	p := NewPolling(store, d, instance, 100*time.Millisecond, 0)
	require.NoError(t, p.Start(ctx))

	defer p.Stop()

	_, err := store.Insert(ctx, tagged("late", tagger.Tag(ctx, provenance.OpInsert, false)))
	require.NoError(t, err)

	time.Sleep(250 * time.Millisecond)

	ins, _, _, _ := rec.counts()
	assert.Equal(t, 1, ins)
}

func TestPolling_WindowStopsAtStart(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	p := NewPolling(docstore.NewMemoryDatabase(nil).MemoryCollection("posts"), nil, instance, time.Second, 0)
	p.started = started
	p.since = started

	window := p.window(provenance.OpInsert, started.Add(time.Second))
	assert.Equal(t, started, window[provenance.PathTimestamp].(map[string]any)["$gt"])

	p.since = started.Add(3 * time.Second)
	window = p.window(provenance.OpInsert, started.Add(4*time.Second))
	assert.Equal(t, started.Add(2*time.Second), window[provenance.PathTimestamp].(map[string]any)["$gt"])
}

func TestDispatcher_PolledUpsert(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryDatabase(nil).MemoryCollection("posts")
	d, rec := newDispatcher(t)

	first := provenance.Meta{Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), InstanceID: instance, Operation: provenance.OpUpsert}
	second := first
	second.Timestamp = first.Timestamp.Add(time.Second)

	poll := func(m provenance.Meta, v int) {
		_, err := store.Upsert(ctx, docstore.Selector{"_id": "a"}, provenance.TagUpsert(docstore.Modifier{"$set": map[string]any{"v": v}}, m))
		require.NoError(t, err)

		doc, err := store.FindOne(ctx, docstore.Selector{"_id": "a"})
		require.NoError(t, err)
		d.Polled(ctx, provenance.OpUpsert, doc)
	}

	poll(first, 1)
	poll(second, 2)

	_, _, ups, _ := rec.counts()
	require.Equal(t, 2, ups)
	assert.True(t, rec.upserted[0].Inserted)
	assert.False(t, rec.upserted[1].Inserted)
}
