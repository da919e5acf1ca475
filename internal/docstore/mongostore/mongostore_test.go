package mongostore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/looplj/dochooks/internal/docstore"
)

func TestNormalize(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	oid := bson.NewObjectID()

	doc := Normalize(bson.M{
		"_id":   "a",
		"count": int32(3),
		"at":    bson.NewDateTimeFromTime(at),
		"ref":   oid,
		"hookMeta": bson.M{
			"uuid":      "inst",
			"timestamp": bson.NewDateTimeFromTime(at),
		},
		"tags":  bson.A{"x", bson.M{"y": int32(1)}},
		"order": bson.D{{Key: "k", Value: "v"}},
	})

	assert.Equal(t, "a", doc.ID())
	assert.Equal(t, int64(3), doc["count"])
	assert.True(t, at.Equal(doc["at"].(time.Time)))
	assert.Equal(t, oid.Hex(), doc["ref"])
	assert.Equal(t, []any{"x", map[string]any{"y": int64(1)}}, doc["tags"])
	assert.Equal(t, map[string]any{"k": "v"}, doc["order"])

	v, ok := doc.Lookup("hookMeta.uuid")
	require.True(t, ok)
	assert.Equal(t, "inst", v)

	assert.Nil(t, Normalize(nil))
}

func TestToChangeEvent(t *testing.T) {
	tests := []struct {
		name string
		raw  changeEvent
		kind docstore.ChangeKind
		id   string
		ok   bool
	}{
		{name: "insert", raw: changeEvent{OperationType: "insert", FullDocument: bson.M{"_id": "a"}}, kind: docstore.ChangeAdded, id: "a", ok: true},
		{name: "update", raw: changeEvent{OperationType: "update", FullDocument: bson.M{"_id": "a"}}, kind: docstore.ChangeChanged, id: "a", ok: true},
		{name: "update of deleted", raw: changeEvent{OperationType: "update"}},
		{name: "delete with pre-image", raw: changeEvent{OperationType: "delete", FullDocumentBeforeChange: bson.M{"_id": "a", "x": 1}, DocumentKey: bson.M{"_id": "a"}}, kind: docstore.ChangeRemoved, id: "a", ok: true},
		{name: "delete without pre-image", raw: changeEvent{OperationType: "delete", DocumentKey: bson.M{"_id": "b"}}, kind: docstore.ChangeRemoved, id: "b", ok: true},
		{name: "drop", raw: changeEvent{OperationType: "drop"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, ok := toChangeEventFor("posts", tt.raw)
			assert.Equal(t, tt.ok, ok)

			if tt.ok {
				assert.Equal(t, tt.kind, ev.Kind)
				assert.Equal(t, tt.id, ev.Document.ID())
			}
		})
	}
}

// TestCollection_Integration runs against a real server when DOCHOOKS_MONGO_URI is
// set, e.g. mongodb://localhost:27017/?replicaSet=rs0.
func TestCollection_Integration(t *testing.T) {
	uri := os.Getenv("DOCHOOKS_MONGO_URI")
	if uri == "" {
		t.Skip("DOCHOOKS_MONGO_URI not set")
	}

	ctx := context.Background()

	db, err := Open(ctx, Config{URI: uri, Database: "dochooks_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.db.Drop(context.Background())
		_ = db.Close()
	})

	store, err := db.Collection("posts")
	require.NoError(t, err)

	id, err := store.Insert(ctx, docstore.Document{"title": "a", "at": time.Now().UTC()})
	require.NoError(t, err)

	n, err := store.Update(ctx, docstore.Selector{"_id": id}, docstore.Modifier{"$set": map[string]any{"title": "b"}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := store.Upsert(ctx, docstore.Selector{"slug": "x"}, docstore.Modifier{
		"$set":         map[string]any{"title": "c"},
		"$setOnInsert": map[string]any{"_id": "fixed"},
	})
	require.NoError(t, err)
	assert.True(t, res.Inserted)
	assert.Equal(t, "fixed", res.InsertedID)

	doc, err := store.FindOne(ctx, docstore.Selector{"_id": id})
	require.NoError(t, err)
	assert.Equal(t, "b", doc["title"])
	assert.IsType(t, time.Time{}, doc["at"])

	n, err = store.Remove(ctx, docstore.Selector{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
