package watcher

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

const defaultBuffer = 1024

// NewFromConfig builds a memory or Redis notifier. A non-nil client is reused for
// Redis mode instead of dialing cfg.Redis.
func NewFromConfig[T any](cfg Config, client *redis.Client) (Notifier[T], error) {
	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	switch cfg.Mode {
	case ModeRedis:
		if cfg.Channel == "" {
			return nil, errors.New("watcher: redis channel is required for redis mode")
		}

		if client != nil {
			return NewRedisWatcher[T](client, RedisWatcherOptions{Channel: cfg.Channel, Buffer: buffer})
		}

		return NewRedisWatcherFromConfig[T](cfg.Redis, RedisWatcherOptions{
			Channel: cfg.Channel,
			Buffer:  buffer,
		})
	case ModeMemory, "":
		return NewMemoryWatcher[T](MemoryWatcherOptions{Buffer: buffer}), nil
	default:
		return nil, errors.New("watcher: unknown mode " + cfg.Mode)
	}
}
