package hooks

import (
	"github.com/looplj/dochooks/internal/docstore"
)

// InsertEvent is passed to before-insert hooks. Hooks may rewrite Document.
type InsertEvent struct {
	Collection string
	Document   docstore.Document
}

// UpdateEvent is passed to before-update hooks. Hooks may rewrite any field.
type UpdateEvent struct {
	Collection string
	Selector   docstore.Selector
	Modifier   docstore.Modifier
	Options    docstore.UpdateOptions
}

// UpsertEvent is passed to before-upsert hooks.
type UpsertEvent struct {
	Collection string
	Selector   docstore.Selector
	Modifier   docstore.Modifier
}

// RemoveEvent is passed to before-remove hooks.
type RemoveEvent struct {
	Collection string
	Selector   docstore.Selector
}

// FindEvent is passed to before-find and before-findOne hooks.
type FindEvent struct {
	Collection string
	Selector   docstore.Selector
	Options    docstore.FindOptions
}

type InsertedEvent struct {
	Collection string
	Document   docstore.Document
}

type UpdatedEvent struct {
	Collection string
	Document   docstore.Document
	// Previous is nil when the previous state was not observed.
	Previous docstore.Document
}

type UpsertedEvent struct {
	Collection string
	Document   docstore.Document
	Previous   docstore.Document
	// Inserted is always false for replacement upserts seen by the polling notifier.
	Inserted bool
}

type RemovedEvent struct {
	Collection string
	Document   docstore.Document
}

type FoundEvent struct {
	Collection string
	Selector   docstore.Selector
	Documents  []docstore.Document
}

// FoundOneEvent carries a nil Document when nothing matched.
type FoundOneEvent struct {
	Collection string
	Selector   docstore.Selector
	Document   docstore.Document
}
