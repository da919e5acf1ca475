package watcher

import (
	"context"
	"sync"

	"github.com/looplj/dochooks/internal/log"
)

type MemoryWatcherOptions struct {
	Buffer int
	Name   string
}

type memoryWatcher[T any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]subscriber[T]
	buffer int
	name   string
}

func NewMemoryWatcher[T any](opts MemoryWatcherOptions) Notifier[T] {
	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1
	}

	return &memoryWatcher[T]{
		subs:   make(map[uint64]subscriber[T]),
		buffer: buffer,
		name:   opts.Name,
	}
}

func (w *memoryWatcher[T]) Watch(match func(T) bool) (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	ch := make(chan T, w.buffer)
	w.subs[id] = subscriber[T]{ch: ch, match: match}

	return ch, func() {
		w.mu.Lock()
		defer w.mu.Unlock()

		sub, ok := w.subs[id]
		if !ok {
			return
		}

		delete(w.subs, id)
		close(sub.ch)
	}
}

func (w *memoryWatcher[T]) Notify(ctx context.Context, v T) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for id, sub := range w.subs {
		if !sub.offer(v) {
			log.Warn(ctx, "memory watcher subscriber is full, value dropped",
				log.String("watcher", w.name),
				log.Int64("subscriber", int64(id)))
		}
	}

	return nil
}
