package collection

import (
	"context"
	"fmt"
	"sync"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/provenance"
)

// Factory is the shared constructor that gives every collection the same hooked
// capability: open from the database, wrap, start the notifier, register.
type Factory struct {
	db       docstore.Database
	registry *Registry
	opts     Options

	mu sync.Mutex
}

// NewFactory fixes the instance id so every collection it builds shares it.
func NewFactory(db docstore.Database, registry *Registry, opts Options) *Factory {
	opts.InstanceID = provenance.NewInstanceID(opts.InstanceID)

	return &Factory{db: db, registry: registry, opts: opts}
}

func (f *Factory) Options() Options { return f.opts }

// Collection returns the hooked collection called name, creating it on first use.
func (f *Factory) Collection(ctx context.Context, name string) (*Collection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.registry.Lookup(name); ok {
		return c, nil
	}

	store, err := f.db.Collection(name)
	if err != nil {
		return nil, fmt.Errorf("open collection %s: %w", name, err)
	}

	c, err := Wrap(store, f.opts)
	if err != nil {
		return nil, fmt.Errorf("wrap collection %s: %w", name, err)
	}

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("start collection %s: %w", name, err)
	}

	if err := f.registry.Register(c); err != nil {
		c.Stop()
		return nil, err
	}

	return c, nil
}
