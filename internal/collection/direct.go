package collection

import (
	"context"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/provenance"
)

// Direct reaches the store without hooks. Writes are still tagged, with
// direct=true, so the notifiers never treat them as hooked changes. Removal is a
// plain delete.
type Direct struct {
	c *Collection
}

func (c *Collection) Direct() Direct {
	return Direct{c: c}
}

func (d Direct) Insert(ctx context.Context, doc docstore.Document) (string, error) {
	return d.c.store.Insert(ctx, provenance.Attach(doc, d.c.tagger.Tag(ctx, provenance.OpInsert, true)))
}

func (d Direct) Update(ctx context.Context, sel docstore.Selector, mod docstore.Modifier, opts ...docstore.UpdateOption) (int, error) {
	meta := d.c.tagger.Tag(ctx, provenance.OpUpdate, true)
	return d.c.store.Update(ctx, sel, mod.WithSet(provenance.Field, meta.ToMap()), opts...)
}

func (d Direct) Upsert(ctx context.Context, sel docstore.Selector, mod docstore.Modifier) (docstore.UpsertResult, error) {
	meta := d.c.tagger.Tag(ctx, provenance.OpUpsert, true)
	return d.c.store.Upsert(ctx, sel, d.c.upsertModifier(sel, mod, meta))
}

func (d Direct) Remove(ctx context.Context, sel docstore.Selector) (int, error) {
	return d.c.store.Remove(ctx, sel)
}

func (d Direct) Find(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) ([]docstore.Document, error) {
	return d.c.store.Find(ctx, sel, opts...)
}

func (d Direct) FindOne(ctx context.Context, sel docstore.Selector, opts ...docstore.FindOption) (docstore.Document, error) {
	return d.c.store.FindOne(ctx, sel, opts...)
}

func (d Direct) Name() string { return d.c.name }
