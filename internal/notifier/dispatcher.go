package notifier

import (
	"context"
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/looplj/dochooks/internal/docstore"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/metrics"
	"github.com/looplj/dochooks/internal/provenance"
)

type dedupKey struct {
	id        string
	op        provenance.Operation
	timestamp int64
}

// Dispatcher gates observed changes through provenance validation and dedup, then
// runs the matching after-hooks. Every strategy funnels through one dispatcher per
// collection, so a tagged state is dispatched at most once per process lifetime
// (bounded by the dedup window).
type Dispatcher struct {
	collection string
	registry   *hooks.Registry
	validator  *provenance.Validator
	seen       *lru.Cache[dedupKey, struct{}]
}

func NewDispatcher(collection string, registry *hooks.Registry, validator *provenance.Validator, dedupSize int) *Dispatcher {
	if dedupSize <= 0 {
		dedupSize = DefaultDedupSize
	}

	seen, _ := lru.New[dedupKey, struct{}](dedupSize)

	return &Dispatcher{
		collection: collection,
		registry:   registry,
		validator:  validator,
		seen:       seen,
	}
}

// Change routes a live change event.
func (d *Dispatcher) Change(ctx context.Context, ev docstore.ChangeEvent) {
	switch ev.Kind {
	case docstore.ChangeAdded:
		m, ok := d.accept(ctx, ev.Document, true)
		if !ok {
			return
		}

		if m.Operation == provenance.OpUpsert {
			d.fireUpsert(ctx, ev.Document, nil, true)
			return
		}

		d.fireInsert(ctx, ev.Document)
	case docstore.ChangeChanged:
		m, ok := d.accept(ctx, ev.Document, true)
		if !ok {
			return
		}

		if m.Operation == provenance.OpUpsert {
			d.fireUpsert(ctx, ev.Document, ev.Previous, false)
			return
		}

		d.fireUpdate(ctx, ev.Document, ev.Previous)
	case docstore.ChangeRemoved:
		d.Removed(ctx, ev.Document)
	default:
		log.Warn(ctx, "unknown change kind", log.String("collection", d.collection), log.String("kind", string(ev.Kind)))
	}
}

// Polled routes a document found by a polling query for op. Whether an upsert
// inserted is read from hookMeta.created; replacement upserts do not record it and
// always report false here.
func (d *Dispatcher) Polled(ctx context.Context, op provenance.Operation, doc docstore.Document) {
	switch op {
	case provenance.OpInsert:
		d.Inserted(ctx, doc)
	case provenance.OpUpdate:
		d.Updated(ctx, doc, nil)
	case provenance.OpUpsert:
		if m, ok := d.accept(ctx, doc, true); ok {
			d.fireUpsert(ctx, doc, nil, m.UpsertInserted())
		}
	case provenance.OpRemove:
		d.Removed(ctx, doc)
	}
}

func (d *Dispatcher) Inserted(ctx context.Context, doc docstore.Document) {
	if _, ok := d.accept(ctx, doc, true); ok {
		d.fireInsert(ctx, doc)
	}
}

func (d *Dispatcher) Updated(ctx context.Context, doc, previous docstore.Document) {
	if _, ok := d.accept(ctx, doc, true); ok {
		d.fireUpdate(ctx, doc, previous)
	}
}

func (d *Dispatcher) Upserted(ctx context.Context, doc, previous docstore.Document, inserted bool) {
	if _, ok := d.accept(ctx, doc, true); ok {
		d.fireUpsert(ctx, doc, previous, inserted)
	}
}

// Removed dispatches a removal. The document must carry this instance's removal
// tag; removal tags are accepted even though they mark the document removed.
func (d *Dispatcher) Removed(ctx context.Context, doc docstore.Document) {
	m, err := d.validator.Validate(doc, false)
	if err == nil && m.Operation != provenance.OpRemove {
		err = &provenance.RejectedError{Reason: provenance.ReasonNotRemoval, DocumentID: doc.ID()}
	}

	if err != nil {
		d.reject(ctx, err)
		return
	}

	if d.duplicate(ctx, doc.ID(), m) {
		return
	}

	d.fireRemove(ctx, doc)
}

func (d *Dispatcher) accept(ctx context.Context, doc docstore.Document, rejectRemoved bool) (provenance.Meta, bool) {
	m, err := d.validator.Validate(doc, rejectRemoved)
	if err != nil {
		d.reject(ctx, err)
		return m, false
	}

	if d.duplicate(ctx, doc.ID(), m) {
		return m, false
	}

	return m, true
}

func (d *Dispatcher) reject(ctx context.Context, err error) {
	reason := "unknown"

	var rejected *provenance.RejectedError
	if errors.As(err, &rejected) {
		reason = string(rejected.Reason)
	}

	metrics.RecordRejected(ctx, d.collection, reason)

	if log.DebugEnabled(ctx) {
		log.Debug(ctx, "change not dispatched", log.String("collection", d.collection), log.Cause(err))
	}
}

func (d *Dispatcher) duplicate(ctx context.Context, id string, m provenance.Meta) bool {
	key := dedupKey{id: id, op: m.Operation, timestamp: m.Timestamp.UnixNano()}

	if found, _ := d.seen.ContainsOrAdd(key, struct{}{}); found {
		metrics.RecordDuplicate(ctx, d.collection, string(m.Operation))

		if log.DebugEnabled(ctx) {
			log.Debug(ctx, "change already dispatched",
				log.String("collection", d.collection),
				log.String("id", id),
				log.String("op", string(m.Operation)),
				log.Time("timestamp", m.Timestamp),
			)
		}

		return true
	}

	return false
}

func (d *Dispatcher) fireInsert(ctx context.Context, doc docstore.Document) {
	d.record(ctx, "insert", hooks.After(ctx, d.collection, "insert", d.registry.AfterInsert.Snapshot(),
		hooks.InsertedEvent{Collection: d.collection, Document: doc}))
}

func (d *Dispatcher) fireUpdate(ctx context.Context, doc, previous docstore.Document) {
	d.record(ctx, "update", hooks.After(ctx, d.collection, "update", d.registry.AfterUpdate.Snapshot(),
		hooks.UpdatedEvent{Collection: d.collection, Document: doc, Previous: previous}))
}

func (d *Dispatcher) fireUpsert(ctx context.Context, doc, previous docstore.Document, inserted bool) {
	d.record(ctx, "upsert", hooks.After(ctx, d.collection, "upsert", d.registry.AfterUpsert.Snapshot(),
		hooks.UpsertedEvent{Collection: d.collection, Document: doc, Previous: previous, Inserted: inserted}))
}

func (d *Dispatcher) fireRemove(ctx context.Context, doc docstore.Document) {
	d.record(ctx, "remove", hooks.After(ctx, d.collection, "remove", d.registry.AfterRemove.Snapshot(),
		hooks.RemovedEvent{Collection: d.collection, Document: doc}))
}

func (d *Dispatcher) record(ctx context.Context, op string, failed int) {
	metrics.RecordDispatch(ctx, d.collection, op)
	metrics.RecordHookFailures(ctx, d.collection, op, failed)
}
