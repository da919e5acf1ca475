package watcher

import (
	"github.com/looplj/dochooks/internal/pkg/xredis"
)

const (
	ModeMemory = "memory"
	ModeRedis  = "redis"
)

type Config struct {
	Mode string `conf:"mode" yaml:"mode" json:"mode"`

	// Channel is the Redis pub/sub channel change events travel on.
	Channel string `conf:"channel" yaml:"channel" json:"channel"`

	// Buffer is the per-subscriber channel capacity.
	Buffer int `conf:"buffer" yaml:"buffer" json:"buffer"`

	Redis xredis.Config `conf:"redis" yaml:"redis" json:"redis"`
}
