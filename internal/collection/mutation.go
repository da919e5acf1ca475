package collection

import (
	"context"
	"fmt"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/provenance"
)

// Insert runs the before-insert hooks, then stores doc tagged with provenance. A
// vetoed insert returns an empty id and no error.
func (c *Collection) Insert(ctx context.Context, doc docstore.Document) (string, error) {
	ctx = c.opContext(ctx, "insert")

	event := &hooks.InsertEvent{Collection: c.name, Document: doc.Clone()}
	if event.Document == nil {
		event.Document = docstore.Document{}
	}

	vetoed, err := hooks.Before(ctx, c.invoker, "insert", c.hooks.BeforeInsert.Snapshot(), event)
	if err != nil {
		return "", err
	}

	if vetoed {
		c.vetoed(ctx, "insert")
		return "", nil
	}

	stored := provenance.Attach(event.Document, c.tagger.Tag(ctx, provenance.OpInsert, false))

	id, err := c.store.Insert(ctx, stored)
	if err != nil {
		return "", err
	}

	c.trace(ctx, "inserted document", log.String("id", id))

	if c.synchronous() {
		stored[docstore.IDField] = id
		c.dispatcher.Inserted(ctx, stored)
	}

	return id, nil
}

// Update runs the before-update hooks, then applies the modifier with provenance
// merged into its $set clause. It returns the number of documents updated.
func (c *Collection) Update(ctx context.Context, sel docstore.Selector, mod docstore.Modifier, opts ...docstore.UpdateOption) (int, error) {
	ctx = c.opContext(ctx, "update")

	event := &hooks.UpdateEvent{
		Collection: c.name,
		Selector:   sel,
		Modifier:   mod,
		Options:    docstore.ResolveUpdateOptions(opts...),
	}

	vetoed, err := hooks.Before(ctx, c.invoker, "update", c.hooks.BeforeUpdate.Snapshot(), event)
	if err != nil {
		return 0, err
	}

	if vetoed {
		c.vetoed(ctx, "update")
		return 0, nil
	}

	meta := c.tagger.Tag(ctx, provenance.OpUpdate, false)
	tagged := event.Modifier.WithSet(provenance.Field, meta.ToMap())

	var previous []docstore.Document
	if c.synchronous() && c.hooks.AfterUpdate.Len() > 0 {
		previous, err = c.store.Find(ctx, event.Selector, docstore.WithLimit(updateReadLimit(event.Options)))
		if err != nil {
			return 0, err
		}
	}

	n, err := c.store.Update(ctx, event.Selector, tagged, updateOptions(event.Options)...)
	if err != nil {
		return 0, err
	}

	c.trace(ctx, "updated documents", log.Int("count", n), log.Bool("multi", event.Options.Multi))

	for _, prev := range previous {
		current, err := c.store.FindOne(ctx, byID(prev.ID()))
		if err != nil {
			log.Warn(ctx, "failed to read updated document", log.String("id", prev.ID()), log.Cause(err))
			continue
		}

		if current != nil {
			c.dispatcher.Updated(ctx, current, prev)
		}
	}

	return n, nil
}

// Upsert runs the before-upsert hooks, then upserts with provenance attached. An
// inserting upsert takes its _id from the selector or the modifier when either
// names one, and from the collection's id generator otherwise.
func (c *Collection) Upsert(ctx context.Context, sel docstore.Selector, mod docstore.Modifier) (docstore.UpsertResult, error) {
	ctx = c.opContext(ctx, "upsert")

	event := &hooks.UpsertEvent{Collection: c.name, Selector: sel, Modifier: mod}

	vetoed, err := hooks.Before(ctx, c.invoker, "upsert", c.hooks.BeforeUpsert.Snapshot(), event)
	if err != nil {
		return docstore.UpsertResult{}, err
	}

	if vetoed {
		c.vetoed(ctx, "upsert")
		return docstore.UpsertResult{}, nil
	}

	tagged := c.upsertModifier(event.Selector, event.Modifier, c.tagger.Tag(ctx, provenance.OpUpsert, false))

	var previous docstore.Document
	if c.synchronous() && c.hooks.AfterUpsert.Len() > 0 {
		previous, err = c.store.FindOne(ctx, event.Selector)
		if err != nil {
			return docstore.UpsertResult{}, err
		}
	}

	res, err := c.store.Upsert(ctx, event.Selector, tagged)
	if err != nil {
		return docstore.UpsertResult{}, err
	}

	c.trace(ctx, "upserted document", log.Bool("inserted", res.Inserted), log.String("inserted_id", res.InsertedID))

	if c.synchronous() && c.hooks.AfterUpsert.Len() > 0 {
		c.dispatchUpsert(ctx, res, previous)
	}

	return res, nil
}

func (c *Collection) upsertModifier(sel docstore.Selector, mod docstore.Modifier, meta provenance.Meta) docstore.Modifier {
	tagged := provenance.TagUpsert(mod, meta)

	if _, pinned := sel.PinnedID(); pinned || mod.SetsID() {
		return tagged
	}

	return tagged.WithSetOnInsert(docstore.IDField, c.newID())
}

func (c *Collection) dispatchUpsert(ctx context.Context, res docstore.UpsertResult, previous docstore.Document) {
	id := res.InsertedID
	if !res.Inserted {
		if previous == nil {
			return
		}

		id = previous.ID()
	}

	current, err := c.store.FindOne(ctx, byID(id))
	if err != nil {
		log.Warn(ctx, "failed to read upserted document", log.String("id", id), log.Cause(err))
		return
	}

	if current != nil {
		c.dispatcher.Upserted(ctx, current, previous, res.Inserted)
	}
}

// Remove runs the before-remove hooks, then removes in two phases: every match is
// first tagged removed, and only tagged documents are deleted. A failure to tag
// aborts the removal. It returns the number of documents deleted.
func (c *Collection) Remove(ctx context.Context, sel docstore.Selector) (int, error) {
	ctx = c.opContext(ctx, "remove")

	event := &hooks.RemoveEvent{Collection: c.name, Selector: sel}

	vetoed, err := hooks.Before(ctx, c.invoker, "remove", c.hooks.BeforeRemove.Snapshot(), event)
	if err != nil {
		return 0, err
	}

	if vetoed {
		c.vetoed(ctx, "remove")
		return 0, nil
	}

	meta := c.tagger.TagRemoval(ctx)
	tag := docstore.Modifier{docstore.OpSet: map[string]any{provenance.Field: meta.ToMap()}}

	tagged, err := c.store.Update(ctx, event.Selector, tag, docstore.WithMulti())
	if err != nil {
		return 0, fmt.Errorf("remove: tag matching documents: %w", err)
	}

	c.trace(ctx, "tagged documents for removal", log.Int("count", tagged))

	removable := event.Selector.With(docstore.Selector{provenance.PathRemoved: true})

	var removed []docstore.Document
	if c.synchronous() && c.hooks.AfterRemove.Len() > 0 {
		removed, err = c.store.Find(ctx, removable)
		if err != nil {
			log.Warn(ctx, "failed to read documents tagged for removal", log.Cause(err))
		}
	}

	n, err := c.store.Remove(ctx, removable)
	if err != nil {
		return n, err
	}

	c.trace(ctx, "removed documents", log.Int("count", n))

	for _, doc := range removed {
		c.dispatcher.Removed(ctx, doc)
	}

	return n, nil
}

func byID(id string) docstore.Selector {
	return docstore.Selector{docstore.IDField: id}
}

func updateReadLimit(o docstore.UpdateOptions) int {
	if o.Multi {
		return 0
	}

	return 1
}

func updateOptions(o docstore.UpdateOptions) []docstore.UpdateOption {
	if o.Multi {
		return []docstore.UpdateOption{docstore.WithMulti()}
	}

	return nil
}
