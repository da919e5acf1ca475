package watcher

import (
	"context"
	"errors"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/pkg/xredis"
)

type RedisWatcherOptions struct {
	Channel string
	Buffer  int
}

// redisWatcher publishes msgpack-encoded values on a Redis channel. Every process
// subscribed to the channel, including the publisher, receives every value.
type redisWatcher[T any] struct {
	client  *redis.Client
	channel string
	buffer  int

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]subscriber[T]

	pubsub *redis.PubSub
	cancel context.CancelFunc
	done   chan struct{}
}

func NewRedisWatcher[T any](client *redis.Client, opts RedisWatcherOptions) (Notifier[T], error) {
	if client == nil {
		return nil, errors.New("watcher.RedisWatcher: redis client is required")
	}

	if opts.Channel == "" {
		return nil, errors.New("watcher.RedisWatcher: channel is required")
	}

	buffer := opts.Buffer
	if buffer <= 0 {
		buffer = 1
	}

	return &redisWatcher[T]{
		client:  client,
		channel: opts.Channel,
		buffer:  buffer,
		subs:    make(map[uint64]subscriber[T]),
	}, nil
}

func NewRedisWatcherFromConfig[T any](cfg xredis.Config, opts RedisWatcherOptions) (Notifier[T], error) {
	client, err := xredis.NewClient(cfg)
	if err != nil {
		return nil, err
	}

	return NewRedisWatcher[T](client, opts)
}

func (w *redisWatcher[T]) Watch(match func(T) bool) (<-chan T, func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	id := w.nextID
	w.nextID++

	ch := make(chan T, w.buffer)
	w.subs[id] = subscriber[T]{ch: ch, match: match}

	if len(w.subs) == 1 {
		w.startLocked()
	}

	return ch, func() {
		w.mu.Lock()

		sub, ok := w.subs[id]
		if !ok {
			w.mu.Unlock()
			return
		}

		delete(w.subs, id)
		close(sub.ch)

		var done chan struct{}
		if len(w.subs) == 0 {
			done = w.stopLocked()
		}
		w.mu.Unlock()

		if done != nil {
			<-done
		}
	}
}

func (w *redisWatcher[T]) Notify(ctx context.Context, v T) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	return w.client.Publish(ctx, w.channel, payload).Err()
}

func (w *redisWatcher[T]) startLocked() {
	if w.pubsub != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	w.pubsub = w.client.Subscribe(ctx, w.channel)
	// Wait for the subscription confirmation so values published right after Watch
	// returns are not lost.
	_, _ = w.pubsub.Receive(ctx)

	go w.receive(ctx, w.pubsub, w.done)
}

func (w *redisWatcher[T]) receive(ctx context.Context, ps *redis.PubSub, done chan struct{}) {
	defer close(done)

	for {
		msg, err := ps.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, redis.ErrClosed) || ctx.Err() != nil {
				return
			}

			log.Warn(context.Background(), "redis watcher receive failed",
				log.String("channel", w.channel),
				log.Cause(err))

			continue
		}

		var v T
		if err := msgpack.Unmarshal([]byte(msg.Payload), &v); err != nil {
			log.Warn(context.Background(), "redis watcher decode failed",
				log.String("channel", w.channel),
				log.Cause(err))

			continue
		}

		w.mu.Lock()
		for id, sub := range w.subs {
			if !sub.offer(v) {
				log.Warn(context.Background(), "redis watcher subscriber is full, value dropped",
					log.String("channel", w.channel),
					log.Int64("subscriber", int64(id)))
			}
		}
		w.mu.Unlock()
	}
}

func (w *redisWatcher[T]) stopLocked() chan struct{} {
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}

	if w.pubsub != nil {
		_ = w.pubsub.Close()
		w.pubsub = nil
	}

	done := w.done
	w.done = nil

	return done
}
