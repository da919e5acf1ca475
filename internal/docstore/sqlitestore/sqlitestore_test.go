package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/pkg/xtest"
)

func openTest(t *testing.T) *Database {
	t.Helper()

	db, err := Open(Config{DSN: "file:" + filepath.Join(t.TempDir(), "test.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func TestCollection_RoundTrip(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	c, err := db.SQLiteCollection(ctx, "posts")
	require.NoError(t, err)

	id, err := c.Insert(ctx, docstore.Document{"title": "a", "views": 1, "meta": map[string]any{"tag": "x"}})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, err = c.Insert(ctx, docstore.Document{"_id": id})
	require.ErrorIs(t, err, docstore.ErrDuplicateID)

	doc, err := c.FindOne(ctx, docstore.Selector{"meta.tag": "x"})
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.Equal(t, id, doc.ID())
	assert.InDelta(t, 1, doc["views"], 0)

	n, err := c.Update(ctx, docstore.Selector{"_id": id}, docstore.Modifier{"$inc": map[string]any{"views": 2}, "$set": map[string]any{"title": "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc, err = c.FindOne(ctx, docstore.Selector{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "b", doc["title"])
	assert.InDelta(t, 3, doc["views"], 0)

	res, err := c.Upsert(ctx, docstore.Selector{"slug": "hello"}, docstore.Modifier{
		"$set":         map[string]any{"title": "c"},
		"$setOnInsert": map[string]any{"_id": "fixed"},
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, "fixed", res.InsertedID)

	docs, err := c.Find(ctx, docstore.Selector{}, docstore.WithSort("title", true))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c", docs[0]["title"])

	n, err = c.Remove(ctx, docstore.Selector{"slug": "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	missing, err := c.FindOne(ctx, docstore.Selector{"slug": "hello"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestCollection_TimeWindow(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	c, err := db.SQLiteCollection(ctx, "events")
	require.NoError(t, err)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		_, err := c.Insert(ctx, docstore.Document{"at": base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	docs, err := c.Find(ctx, docstore.Selector{"at": map[string]any{"$gt": base, "$lte": base.Add(2 * time.Minute)}})
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestCollection_Watch(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	c, err := db.SQLiteCollection(ctx, "posts")
	require.NoError(t, err)

	events, stop, err := c.Watch(ctx, docstore.Selector{"kind": "watched"})
	require.NoError(t, err)

	defer stop()

	_, err = c.Insert(ctx, docstore.Document{"_id": "ignored", "kind": "other"})
	require.NoError(t, err)
	_, err = c.Insert(ctx, docstore.Document{"_id": "a", "kind": "watched"})
	require.NoError(t, err)
	_, err = c.Update(ctx, docstore.Selector{"_id": "a"}, docstore.Modifier{"$set": map[string]any{"n": 1}})
	require.NoError(t, err)
	_, err = c.Remove(ctx, docstore.Selector{"_id": "a"})
	require.NoError(t, err)

	var kinds []docstore.ChangeKind

	for range 3 {
		select {
		case ev := <-events:
			assert.Equal(t, "a", ev.Document.ID())
			kinds = append(kinds, ev.Kind)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for change event")
		}
	}

	assert.Equal(t, []docstore.ChangeKind{docstore.ChangeAdded, docstore.ChangeChanged, docstore.ChangeRemoved}, kinds)
}

func TestDatabase_RejectsBadNames(t *testing.T) {
	db := openTest(t)

	_, err := db.Collection(`posts"; DROP TABLE x; --`)
	assert.Error(t, err)
}

func TestCollection_PreservesDocumentShape(t *testing.T) {
	ctx := context.Background()
	db := openTest(t)

	c, err := db.SQLiteCollection(ctx, "shapes")
	require.NoError(t, err)

	at := time.Now().UTC()
	in := docstore.Document{
		"_id":   "s1",
		"views": 3,
		"at":    at,
		"meta":  map[string]any{"score": int64(7), "tags": []any{"a", "b"}},
	}

	_, err = c.Insert(ctx, in)
	require.NoError(t, err)

	out, err := c.FindOne(ctx, docstore.Selector{"_id": "s1"})
	require.NoError(t, err)

	if diff := xtest.DocumentDiff(in, out); diff != "" {
		t.Fatalf("document changed through sqlite (-want +got):\n%s", diff)
	}
}
