package main

import (
	"github.com/robfig/cron/v3"

	"github.com/looplj/dochooks/conf"
	"github.com/looplj/dochooks/internal/hooks"
	"github.com/looplj/dochooks/internal/notifier"
	"github.com/looplj/dochooks/internal/pkg/watcher"
)

var configKeys = []string{
	"hooks.instance_id",
	"hooks.verbose",
	"hooks.before_hook_errors",
	"hooks.notifier.mode",
	"hooks.notifier.poll_interval",
	"store.type",
	"store.collections",
	"watcher.mode",
	"reaper.cron",
	"log.level",
}

func configValue(config conf.Config, key string) (any, bool) {
	switch key {
	case "hooks.instance_id":
		return config.Hooks.InstanceID, true
	case "hooks.verbose":
		return config.Hooks.Verbose, true
	case "hooks.before_hook_errors":
		return config.Hooks.BeforeHookErrors, true
	case "hooks.notifier.mode":
		return config.Hooks.Notifier.Mode, true
	case "hooks.notifier.poll_interval":
		return config.Hooks.Notifier.PollInterval, true
	case "store.type":
		return config.Store.Type, true
	case "store.collections":
		return config.Store.Collections, true
	case "watcher.mode":
		return config.Watcher.Mode, true
	case "reaper.cron":
		return config.Reaper.CRON, true
	case "log.level":
		return config.Log.Level, true
	default:
		return nil, false
	}
}

func validateConfig(config conf.Config) []string {
	var errs []string

	if _, err := hooks.ParseErrorPolicy(config.Hooks.BeforeHookErrors); err != nil {
		errs = append(errs, "hooks.before_hook_errors must be one of propagate, veto, ignore")
	}

	mode, err := notifier.ParseMode(config.Hooks.Notifier.Mode)
	if err != nil {
		errs = append(errs, "hooks.notifier.mode must be one of sync, reactive, polling")
	}

	if mode == notifier.ModePolling && config.Hooks.Notifier.PollInterval <= 0 {
		errs = append(errs, "hooks.notifier.poll_interval must be positive in polling mode")
	}

	switch config.Store.Type {
	case conf.StoreMemory, "":
	case conf.StoreSQLite:
		if config.Store.SQLite.DSN == "" {
			errs = append(errs, "store.sqlite.dsn cannot be empty")
		}
	case conf.StoreMongo:
		if config.Store.Mongo.URI == "" {
			errs = append(errs, "store.mongo.uri cannot be empty")
		}
	default:
		errs = append(errs, "store.type must be one of memory, sqlite, mongo")
	}

	if config.Watcher.Mode == watcher.ModeRedis && !config.Watcher.Redis.Enabled() {
		errs = append(errs, "watcher.redis.addr or watcher.redis.url is required in redis mode")
	}

	if config.Reaper.Enabled {
		if _, err := cron.ParseStandard(config.Reaper.CRON); err != nil {
			errs = append(errs, "reaper.cron is not a valid cron expression")
		}
	}

	if config.Log.Name == "" {
		errs = append(errs, "log.name cannot be empty")
	}

	return errs
}
