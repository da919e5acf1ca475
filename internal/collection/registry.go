package collection

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"

	"github.com/looplj/dochooks/internal/log"
)

// Registry tracks the hooked collections of a process by name. It is created once
// at startup and closed at shutdown.
type Registry struct {
	mu          sync.RWMutex
	collections map[string]*Collection
	closed      bool
}

func NewRegistry() *Registry {
	return &Registry{collections: make(map[string]*Collection)}
}

func (r *Registry) Register(c *Collection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("collection registry closed, cannot register %q", c.Name())
	}

	if _, exists := r.collections[c.Name()]; exists {
		return fmt.Errorf("collection %q already registered", c.Name())
	}

	r.collections[c.Name()] = c

	return nil
}

func (r *Registry) Lookup(name string) (*Collection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collections[name]

	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := lo.Keys(r.collections)
	slices.Sort(names)

	return names
}

// Close stops every collection's notifier. Collections still stopping when ctx is
// done are reported in the returned error.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	collections := lo.Values(r.collections)
	r.mu.Unlock()

	var (
		mu     sync.Mutex
		result *multierror.Error
		wg     sync.WaitGroup
	)

	for _, c := range collections {
		wg.Add(1)

		go func() {
			defer wg.Done()

			done := make(chan struct{})

			go func() {
				c.Stop()
				close(done)
			}()

			select {
			case <-done:
				log.Debug(ctx, "collection hooks stopped", log.String("collection", c.Name()))
			case <-ctx.Done():
				mu.Lock()
				result = multierror.Append(result, fmt.Errorf("stop %s: %w", c.Name(), ctx.Err()))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	return result.ErrorOrNil()
}
