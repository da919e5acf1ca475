package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/notifier"
	"github.com/looplj/dochooks/internal/pkg/watcher"
	"github.com/looplj/dochooks/internal/reaper"
)

func validConfig() conf.Config {
	return conf.Config{
		Log: log.Config{Name: "dochooks"},
		Hooks: collection.Config{
			BeforeHookErrors: "propagate",
			Notifier:         notifier.Config{Mode: "polling", PollInterval: time.Second},
		},
		Store:   conf.StoreConfig{Type: conf.StoreMemory},
		Watcher: watcher.Config{Mode: watcher.ModeMemory},
		Reaper:  reaper.Config{Enabled: true, CRON: "*/5 * * * *"},
	}
}

func TestValidateConfig(t *testing.T) {
	assert.Empty(t, validateConfig(validConfig()))

	config := validConfig()
	config.Hooks.BeforeHookErrors = "explode"
	config.Hooks.Notifier.PollInterval = 0
	config.Store.Type = "cassandra"
	config.Watcher.Mode = watcher.ModeRedis
	config.Reaper.CRON = "every minute"
	config.Log.Name = ""

	assert.Len(t, validateConfig(config), 6)

	config = validConfig()
	config.Hooks.Notifier.Mode = "eventually"
	assert.Equal(t, []string{"hooks.notifier.mode must be one of sync, reactive, polling"}, validateConfig(config))
}

func TestConfigValue(t *testing.T) {
	config := validConfig()
	config.Store.Collections = []string{"posts"}

	for _, key := range configKeys {
		_, ok := configValue(config, key)
		assert.True(t, ok, key)
	}

	v, ok := configValue(config, "store.collections")
	assert.True(t, ok)
	assert.Equal(t, []string{"posts"}, v)

	_, ok = configValue(config, "server.port")
	assert.False(t, ok)
}
