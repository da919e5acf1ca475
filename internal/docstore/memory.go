package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/looplj/dochooks/internal/pkg/watcher"
)

// MemoryDatabase keeps collections in process memory and publishes every committed
// change on its feed. Pass a Redis-backed feed to share events between processes
// that otherwise write to separate memory stores (tests, demos).
type MemoryDatabase struct {
	mu          sync.Mutex
	collections map[string]*MemoryCollection
	feed        watcher.Notifier[ChangeEvent]
}

func NewMemoryDatabase(feed watcher.Notifier[ChangeEvent]) *MemoryDatabase {
	if feed == nil {
		feed = watcher.NewMemoryWatcher[ChangeEvent](watcher.MemoryWatcherOptions{Buffer: 1024, Name: "memory-docstore"})
	}

	return &MemoryDatabase{
		collections: make(map[string]*MemoryCollection),
		feed:        feed,
	}
}

func (db *MemoryDatabase) Collection(name string) (Store, error) {
	return db.MemoryCollection(name), nil
}

// MemoryCollection returns the concrete collection, creating it on first use.
func (db *MemoryDatabase) MemoryCollection(name string) *MemoryCollection {
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.collections[name]
	if !ok {
		c = &MemoryCollection{
			name: name,
			docs: make(map[string]Document),
			feed: db.feed,
		}
		db.collections[name] = c
	}

	return c
}

func (db *MemoryDatabase) Close() error {
	return nil
}

// MemoryCollection is a Store and Observable. Writes are serialized by a mutex so
// each one is atomic; events are published in commit order.
type MemoryCollection struct {
	name string
	feed watcher.Notifier[ChangeEvent]

	mu    sync.RWMutex
	docs  map[string]Document
	order []string
}

var (
	_ Store      = (*MemoryCollection)(nil)
	_ Observable = (*MemoryCollection)(nil)
)

func (c *MemoryCollection) Name() string { return c.name }

func (c *MemoryCollection) Insert(ctx context.Context, doc Document) (string, error) {
	stored := doc.Clone()
	if stored == nil {
		stored = Document{}
	}

	id := stored.ID()
	if id == "" {
		id = uuid.NewString()
		stored[IDField] = id
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.docs[id]; exists {
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	c.docs[id] = stored
	c.order = append(c.order, id)
	c.publish(ctx, ChangeAdded, stored, nil)

	return id, nil
}

func (c *MemoryCollection) Update(ctx context.Context, sel Selector, mod Modifier, opts ...UpdateOption) (int, error) {
	if err := mod.Validate(); err != nil {
		return 0, err
	}

	o := ResolveUpdateOptions(opts...)

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.matchLocked(sel, updateLimit(o.Multi))
	if err != nil {
		return 0, err
	}

	for _, id := range ids {
		if err := c.replaceLocked(ctx, id, mod, false); err != nil {
			return 0, err
		}
	}

	return len(ids), nil
}

func (c *MemoryCollection) Upsert(ctx context.Context, sel Selector, mod Modifier) (UpsertResult, error) {
	if err := mod.Validate(); err != nil {
		return UpsertResult{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.matchLocked(sel, 1)
	if err != nil {
		return UpsertResult{}, err
	}

	if len(ids) > 0 {
		if err := c.replaceLocked(ctx, ids[0], mod, false); err != nil {
			return UpsertResult{}, err
		}

		return UpsertResult{Matched: 1, Modified: 1}, nil
	}

	seed, err := UpsertSeed(sel, mod, uuid.NewString())
	if err != nil {
		return UpsertResult{}, err
	}

	id := seed.ID()
	if _, exists := c.docs[id]; exists {
		return UpsertResult{}, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	c.docs[id] = seed
	c.order = append(c.order, id)
	c.publish(ctx, ChangeAdded, seed, nil)

	return UpsertResult{Inserted: true, InsertedID: id}, nil
}

func (c *MemoryCollection) Remove(ctx context.Context, sel Selector) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.matchLocked(sel, 0)
	if err != nil {
		return 0, err
	}

	if len(ids) == 0 {
		return 0, nil
	}

	removed := make(map[string]bool, len(ids))
	for _, id := range ids {
		doc := c.docs[id]
		delete(c.docs, id)
		removed[id] = true
		c.publish(ctx, ChangeRemoved, doc, nil)
	}

	order := c.order[:0]
	for _, id := range c.order {
		if !removed[id] {
			order = append(order, id)
		}
	}
	c.order = order

	return len(ids), nil
}

func (c *MemoryCollection) Find(_ context.Context, sel Selector, opts ...FindOption) ([]Document, error) {
	o := ResolveFindOptions(opts...)

	c.mu.RLock()
	defer c.mu.RUnlock()

	limit := o.Limit
	if o.Sort != "" {
		limit = 0
	}

	ids, err := c.matchLocked(sel, limit)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(ids))
	for _, id := range ids {
		docs = append(docs, c.docs[id].Clone())
	}

	return SortAndLimit(docs, o), nil
}

func (c *MemoryCollection) FindOne(ctx context.Context, sel Selector, opts ...FindOption) (Document, error) {
	docs, err := c.Find(ctx, sel, append(opts, WithLimit(1))...)
	if err != nil || len(docs) == 0 {
		return nil, err
	}

	return docs[0], nil
}

func (c *MemoryCollection) Watch(_ context.Context, filter Selector) (<-chan ChangeEvent, func(), error) {
	ch, stop := c.feed.Watch(func(ev ChangeEvent) bool {
		return EventMatches(ev, c.name, filter)
	})

	return ch, stop, nil
}

// Len returns the number of stored documents.
func (c *MemoryCollection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.docs)
}

func updateLimit(multi bool) int {
	if multi {
		return 0
	}

	return 1
}

// matchLocked returns ids of matching documents in insertion order; limit 0 means all.
func (c *MemoryCollection) matchLocked(sel Selector, limit int) ([]string, error) {
	var ids []string

	for _, id := range c.order {
		ok, err := sel.Matches(c.docs[id])
		if err != nil {
			return nil, err
		}

		if !ok {
			continue
		}

		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}

	return ids, nil
}

func (c *MemoryCollection) replaceLocked(ctx context.Context, id string, mod Modifier, inserting bool) error {
	previous := c.docs[id]

	next, err := mod.Apply(previous, inserting)
	if err != nil {
		return err
	}

	c.docs[id] = next
	c.publish(ctx, ChangeChanged, next, previous)

	return nil
}

func (c *MemoryCollection) publish(ctx context.Context, kind ChangeKind, doc, previous Document) {
	_ = c.feed.Notify(ctx, ChangeEvent{
		Collection: c.name,
		Kind:       kind,
		Document:   doc.Clone(),
		Previous:   previous.Clone(),
	})
}
