package collection

import (
	"context"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
)

// Find runs the before-find hooks, queries, then runs the after-find hooks with the
// result. Reads are never vetoed and carry no provenance.
func (c *Collection) Find(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) ([]docstore.Document, error) {
	ctx = c.opContext(ctx, "find")

	event := &hooks.FindEvent{Collection: c.name, Selector: sel, Options: docstore.ResolveFindOptions(opts...)}
	if err := hooks.BeforeRead(ctx, c.invoker, "find", c.hooks.BeforeFind.Snapshot(), event); err != nil {
		return nil, err
	}

	docs, err := c.store.Find(ctx, event.Selector, findOptions(event.Options))
	if err != nil {
		return nil, err
	}

	hooks.After(ctx, c.name, "find", c.hooks.AfterFind.Snapshot(), hooks.FoundEvent{
		Collection: c.name,
		Selector:   event.Selector,
		Documents:  docs,
	})

	return docs, nil
}

// FindOne is Find for a single document; it returns nil when nothing matches.
func (c *Collection) FindOne(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) (docstore.Document, error) {
	ctx = c.opContext(ctx, "findOne")

	event := &hooks.FindEvent{Collection: c.name, Selector: sel, Options: docstore.ResolveFindOptions(opts...)}
	if err := hooks.BeforeRead(ctx, c.invoker, "findOne", c.hooks.BeforeFindOne.Snapshot(), event); err != nil {
		return nil, err
	}

	doc, err := c.store.FindOne(ctx, event.Selector, findOptions(event.Options))
	if err != nil {
		return nil, err
	}

	hooks.After(ctx, c.name, "findOne", c.hooks.AfterFindOne.Snapshot(), hooks.FoundOneEvent{
		Collection: c.name,
		Selector:   event.Selector,
		Document:   doc,
	})

	return doc, nil
}

func findOptions(o docstore.FindOptions) docstore.FindOption {
	return func(dst *docstore.FindOptions) { *dst = o }
}
