package watcher

import "context"

// Watcher provides a best-effort fan-out stream of values to subscribers in this
// process, and across processes for the Redis implementation.
//
// Delivery is at-most-once per subscriber: a subscriber whose buffer is full misses
// the value. Consumers that need stronger guarantees must reconcile from the source
// of truth (the polling notifier does exactly that).
//
// Callers must call the returned stop function exactly once.
type Watcher[T any] interface {
	// Watch subscribes to values accepted by match (nil accepts everything).
	Watch(match func(T) bool) (<-chan T, func())
}

// Notifier is a Watcher that can also publish.
type Notifier[T any] interface {
	Watcher[T]

	// Notify broadcasts v to all matching subscribers.
	Notify(ctx context.Context, v T) error
}

type subscriber[T any] struct {
	ch    chan T
	match func(T) bool
}

func (s subscriber[T]) offer(v T) bool {
	if s.match != nil && !s.match(v) {
		return true
	}

	select {
	case s.ch <- v:
		return true
	default:
		return false
	}
}
