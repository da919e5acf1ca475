// Package hooks holds the per-collection callback lists and the rules for invoking
// them.
package hooks

import (
	"context"
	"sync"
)

// Action is what a before-hook decides about the pending mutation.
type Action int

const (
	ActionContinue Action = iota
	ActionVeto
)

type (
	BeforeFunc[E any] func(ctx context.Context, event *E) (Action, error)
	ReadBeforeFunc    func(ctx context.Context, event *FindEvent) error
	AfterFunc[E any]  func(ctx context.Context, event E) error
)

// List is an append-only ordered callback list safe for concurrent registration
// and invocation. Invocation works on a snapshot, so a hook registered while a
// dispatch is running is seen by the next dispatch only.
type List[F any] struct {
	mu    sync.RWMutex
	funcs []F
}

func (l *List[F]) Add(f F) {
	l.mu.Lock()
	l.funcs = append(l.funcs, f)
	l.mu.Unlock()
}

func (l *List[F]) Snapshot() []F {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if len(l.funcs) == 0 {
		return nil
	}

	out := make([]F, len(l.funcs))
	copy(out, l.funcs)

	return out
}

func (l *List[F]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.funcs)
}

// Registry is the set of twelve callback lists of one collection.
type Registry struct {
	BeforeInsert  List[BeforeFunc[InsertEvent]]
	BeforeUpdate  List[BeforeFunc[UpdateEvent]]
	BeforeUpsert  List[BeforeFunc[UpsertEvent]]
	BeforeRemove  List[BeforeFunc[RemoveEvent]]
	BeforeFind    List[ReadBeforeFunc]
	BeforeFindOne List[ReadBeforeFunc]

	AfterInsert  List[AfterFunc[InsertedEvent]]
	AfterUpdate  List[AfterFunc[UpdatedEvent]]
	AfterUpsert  List[AfterFunc[UpsertedEvent]]
	AfterRemove  List[AfterFunc[RemovedEvent]]
	AfterFind    List[AfterFunc[FoundEvent]]
	AfterFindOne List[AfterFunc[FoundOneEvent]]
}

func NewRegistry() *Registry {
	return &Registry{}
}

