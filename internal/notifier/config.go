package notifier

import (
	"fmt"
	"strings"
	"time"
)

type Mode string

const (
	// ModeSync dispatches after-hooks inside the intercepted call.
	ModeSync Mode = "sync"
	// ModeReactive subscribes to the store's live change feed.
	ModeReactive Mode = "reactive"
	// ModePolling queries recently tagged documents on an interval.
	ModePolling Mode = "polling"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultDedupSize    = 4096
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeReactive, nil
	case ModeSync, ModeReactive, ModePolling:
		return m, nil
	default:
		return "", fmt.Errorf("unknown notifier mode %q", s)
	}
}

type Config struct {
	Mode         string        `conf:"mode" yaml:"mode" json:"mode"`
	PollInterval time.Duration `conf:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	// PollLookback re-queries this much before each window so writes committed
	// after their tick are still seen. Zero means one poll interval.
	PollLookback time.Duration `conf:"poll_lookback" yaml:"poll_lookback" json:"poll_lookback"`
	// FilterOwn narrows the reactive subscription to documents tagged by this
	// instance instead of validating every change.
	FilterOwn bool `conf:"filter_own" yaml:"filter_own" json:"filter_own"`
	DedupSize int  `conf:"dedup_size" yaml:"dedup_size" json:"dedup_size"`
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.DedupSize <= 0 {
		c.DedupSize = DefaultDedupSize
	}

	return c
}
