// Package docstore defines the document store contract the hook engine wraps, a
// small selector/modifier language, and an in-memory store with live change
// subscriptions.
package docstore

import (
	"context"
	"errors"
	"slices"
)

var (
	ErrDuplicateID = errors.New("docstore: duplicate _id")
	ErrClosed      = errors.New("docstore: store closed")
)

type UpdateOptions struct {
	// Multi updates every matching document instead of the first.
	Multi bool
}

type UpdateOption func(*UpdateOptions)

func WithMulti() UpdateOption {
	return func(o *UpdateOptions) { o.Multi = true }
}

func ResolveUpdateOptions(opts ...UpdateOption) UpdateOptions {
	var o UpdateOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

type FindOptions struct {
	Limit      int
	Sort       string
	Descending bool
}

type FindOption func(*FindOptions)

func WithLimit(n int) FindOption {
	return func(o *FindOptions) { o.Limit = n }
}

func WithSort(path string, descending bool) FindOption {
	return func(o *FindOptions) {
		o.Sort = path
		o.Descending = descending
	}
}

func ResolveFindOptions(opts ...FindOption) FindOptions {
	var o FindOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

type UpsertResult struct {
	Matched    int
	Modified   int
	Inserted   bool
	InsertedID string
}

//go:generate go run go.uber.org/mock/mockgen -destination=mock_store.go -package=docstore github.com/looplj/dochooks/internal/docstore Store

// Store is the set of primitives the hook engine intercepts. Implementations must
// make each single-document write atomic.
type Store interface {
	Name() string
	Insert(ctx context.Context, doc Document) (string, error)
	Update(ctx context.Context, sel Selector, mod Modifier, opts ...UpdateOption) (int, error)
	Upsert(ctx context.Context, sel Selector, mod Modifier) (UpsertResult, error)
	Remove(ctx context.Context, sel Selector) (int, error)
	Find(ctx context.Context, sel Selector, opts ...FindOption) ([]Document, error)
	// FindOne returns nil without error when nothing matches.
	FindOne(ctx context.Context, sel Selector, opts ...FindOption) (Document, error)
}

type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeChanged ChangeKind = "changed"
	ChangeRemoved ChangeKind = "removed"
)

// ChangeEvent describes one committed single-document change. For removals Document
// holds the last known state.
type ChangeEvent struct {
	Collection string     `msgpack:"collection" json:"collection"`
	Kind       ChangeKind `msgpack:"kind" json:"kind"`
	Document   Document   `msgpack:"document" json:"document"`
	Previous   Document   `msgpack:"previous,omitempty" json:"previous,omitempty"`
}

// Observable stores deliver live change events.
type Observable interface {
	// Watch subscribes to changes whose document matches filter (nil for all). The
	// stop function must be called once.
	Watch(ctx context.Context, filter Selector) (<-chan ChangeEvent, func(), error)
}

// Database hands out named collections.
type Database interface {
	Collection(name string) (Store, error)
	Close() error
}

// EventMatches reports whether ev belongs to collection and satisfies filter.
func EventMatches(ev ChangeEvent, collection string, filter Selector) bool {
	if ev.Collection != collection {
		return false
	}

	if len(filter) == 0 {
		return true
	}

	ok, err := filter.Matches(ev.Document)

	return err == nil && ok
}

// SortAndLimit orders docs in place per opts and truncates to the limit.
func SortAndLimit(docs []Document, opts FindOptions) []Document {
	if opts.Sort != "" {
		slices.SortStableFunc(docs, func(a, b Document) int {
			av, _ := a.Lookup(opts.Sort)
			bv, _ := b.Lookup(opts.Sort)

			c, ok := compareValues(av, bv)
			if !ok {
				c = compareMissing(av, bv)
			}

			if opts.Descending {
				return -c
			}

			return c
		})
	}

	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}

	return docs
}

// compareMissing sorts missing values first and leaves incomparable values in place.
func compareMissing(a, b any) int {
	switch {
	case a == nil && b != nil:
		return -1
	case a != nil && b == nil:
		return 1
	default:
		return 0
	}
}
