package docstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorMatches(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{
		"_id":  "a",
		"name": "ok",
		"qty":  int64(3),
		"hookMeta": map[string]any{
			"uuid":      "inst-1",
			"timestamp": ts,
			"removed":   true,
		},
		"tags": []any{"x", "y"},
	}

	cases := []struct {
		name string
		sel  Selector
		want bool
	}{
		{"empty", Selector{}, true},
		{"equality", Selector{"name": "ok"}, true},
		{"equality mismatch", Selector{"name": "blocked"}, false},
		{"numeric kinds", Selector{"qty": 3}, true},
		{"dotted path", Selector{"hookMeta.uuid": "inst-1"}, true},
		{"array index", Selector{"tags.1": "y"}, true},
		{"nil matches missing", Selector{"missing": nil}, true},
		{"nil does not match present", Selector{"name": nil}, false},
		{"gt time", Selector{"hookMeta.timestamp": map[string]any{"$gt": ts.Add(-time.Second)}}, true},
		{"gt time equal", Selector{"hookMeta.timestamp": map[string]any{"$gt": ts}}, false},
		{"lte time", Selector{"hookMeta.timestamp": map[string]any{"$lte": ts}}, true},
		{"range", Selector{"qty": map[string]any{"$gte": 1, "$lt": 3.5}}, true},
		{"ne", Selector{"name": map[string]any{"$ne": "blocked"}}, true},
		{"in", Selector{"name": map[string]any{"$in": []string{"a", "ok"}}}, true},
		{"nin", Selector{"name": map[string]any{"$nin": []any{"ok"}}}, false},
		{"exists", Selector{"hookMeta.removed": map[string]any{"$exists": true}}, true},
		{"not exists", Selector{"hookMeta.direct": map[string]any{"$exists": false}}, true},
		{"and", Selector{"$and": []any{Selector{"name": "ok"}, map[string]any{"qty": 3}}}, true},
		{"or", Selector{"$or": []Selector{{"name": "no"}, {"qty": 3}}}, true},
		{"or none", Selector{"$or": []Selector{{"name": "no"}, {"qty": 4}}}, false},
		{"gt on missing", Selector{"nope": map[string]any{"$gt": 1}}, false},
		{"gt incomparable", Selector{"name": map[string]any{"$gt": 1}}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.sel.Matches(doc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectorMatchesSerializedTime(t *testing.T) {
	ts := time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC)
	doc := Document{"hookMeta": map[string]any{"timestamp": ts.Format(time.RFC3339Nano)}}

	ok, err := Selector{"hookMeta.timestamp": map[string]any{"$gt": ts.Add(-time.Nanosecond), "$lte": ts}}.Matches(doc)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectorErrors(t *testing.T) {
	_, err := Selector{"a": map[string]any{"$regex": "x"}}.Matches(Document{"a": "x"})
	require.ErrorIs(t, err, ErrInvalidSelector)

	_, err = Selector{"$where": "x"}.Matches(Document{})
	require.ErrorIs(t, err, ErrInvalidSelector)

	_, err = Selector{"$or": "x"}.Matches(Document{})
	require.ErrorIs(t, err, ErrInvalidSelector)
}

func TestSelectorWith(t *testing.T) {
	base := Selector{"name": "ok"}
	ext := base.With(Selector{"hookMeta.removed": true})

	assert.Len(t, base, 1)
	assert.Equal(t, true, ext["hookMeta.removed"])

	clash := base.With(Selector{"name": map[string]any{"$ne": "x"}})
	_, hasName := clash["name"]
	assert.False(t, hasName)

	ok, err := clash.Matches(Document{"name": "ok"})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = clash.Matches(Document{"name": "x"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSelectorPinnedID(t *testing.T) {
	tests := []struct {
		sel  Selector
		want string
		ok   bool
	}{
		{Selector{"_id": "x"}, "x", true},
		{Selector{"_id": map[string]any{"$eq": "x"}}, "x", true},
		{Selector{"_id": map[string]any{"$eq": "x", "$ne": "y"}}, "", false},
		{Selector{"_id": map[string]any{"$in": []any{"x"}}}, "", false},
		{Selector{"_id": ""}, "", false},
		{Selector{"_id": 7}, "", false},
		{Selector{"slug": "x"}, "", false},
	}

	for _, tt := range tests {
		got, ok := tt.sel.PinnedID()
		assert.Equal(t, tt.ok, ok, "%v", tt.sel)
		assert.Equal(t, tt.want, got, "%v", tt.sel)
	}
}
