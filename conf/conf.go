// Package conf loads the daemon configuration from config.yml and the environment.
package conf

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"go.uber.org/fx"

	"github.com/looplj/dochooks/internal/audit"
	"github.com/looplj/dochooks/internal/collection"
	"github.com/looplj/dochooks/internal/docstore/mongostore"
	"github.com/looplj/dochooks/internal/docstore/sqlitestore"
	"github.com/looplj/dochooks/internal/log"
	"github.com/looplj/dochooks/internal/metrics"
	"github.com/looplj/dochooks/internal/pkg/watcher"
	"github.com/looplj/dochooks/internal/reaper"
)

const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type StoreConfig struct {
	// Type is one of memory, sqlite, mongo.
	Type   string             `conf:"type" yaml:"type" json:"type"`
	SQLite sqlitestore.Config `conf:"sqlite" yaml:"sqlite" json:"sqlite"`
	Mongo  mongostore.Config  `conf:"mongo" yaml:"mongo" json:"mongo"`
	// Collections are opened with hooks at startup.
	Collections []string `conf:"collections" yaml:"collections" json:"collections"`
}

type Config struct {
	fx.Out `yaml:"-" json:"-" conf:"-"`

	Log     log.Config        `conf:"log" yaml:"log" json:"log"`
	Hooks   collection.Config `conf:"hooks" yaml:"hooks" json:"hooks"`
	Store   StoreConfig       `conf:"store" yaml:"store" json:"store"`
	Watcher watcher.Config    `conf:"watcher" yaml:"watcher" json:"watcher"`
	Reaper  reaper.Config     `conf:"reaper" yaml:"reaper" json:"reaper"`
	Audit   audit.Config      `conf:"audit" yaml:"audit" json:"audit"`
	Metrics metrics.Config    `conf:"metrics" yaml:"metrics" json:"metrics"`
}

// Load reads config.yml from ., ./conf or /etc/dochooks, then applies DOCHOOKS_*
// environment overrides (DOCHOOKS_HOOKS_NOTIFIER_MODE for hooks.notifier.mode).
// HOOKS_UUID and HOOKS_VERBOSE are honored too, as is the legacy DEBUG=VERBOSE.
func Load() (Config, error) {
	return load("")
}

// LoadFile is Load with an explicit config file.
func LoadFile(path string) (Config, error) {
	return load(path)
}

func load(path string) (Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.AddConfigPath(".")
		v.AddConfigPath("./conf")
		v.AddConfigPath("/etc/dochooks/")
	}

	v.SetEnvPrefix("DOCHOOKS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("hooks.instance_id", "DOCHOOKS_HOOKS_INSTANCE_ID", "HOOKS_UUID")
	_ = v.BindEnv("hooks.verbose", "DOCHOOKS_HOOKS_VERBOSE", "HOOKS_VERBOSE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, err
		}
	}

	var cfg Config

	err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "conf"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err != nil {
		return Config{}, err
	}

	if os.Getenv("DEBUG") == "VERBOSE" {
		cfg.Hooks.Verbose = true
	}

	if cfg.Hooks.Verbose {
		cfg.Log.Level = "debug"
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.name", "dochooks")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")
	v.SetDefault("log.debug", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_backups", 3)
	v.SetDefault("log.file.max_age", 7)
	v.SetDefault("log.file.compress", false)

	v.SetDefault("hooks.instance_id", "")
	v.SetDefault("hooks.verbose", false)
	v.SetDefault("hooks.before_hook_errors", "propagate")
	v.SetDefault("hooks.notifier.mode", "reactive")
	v.SetDefault("hooks.notifier.poll_interval", 5*time.Second)
	v.SetDefault("hooks.notifier.poll_lookback", 0)
	v.SetDefault("hooks.notifier.filter_own", true)
	v.SetDefault("hooks.notifier.dedup_size", 4096)

	v.SetDefault("store.type", StoreMemory)
	v.SetDefault("store.sqlite.dsn", "file:dochooks.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "dochooks")
	v.SetDefault("store.mongo.max_pool_size", 0)
	v.SetDefault("store.mongo.pre_images", true)
	v.SetDefault("store.collections", []string{})

	v.SetDefault("watcher.mode", watcher.ModeMemory)
	v.SetDefault("watcher.channel", "dochooks:changes")
	v.SetDefault("watcher.buffer", 1024)
	v.SetDefault("watcher.redis.addr", "")
	v.SetDefault("watcher.redis.url", "")
	v.SetDefault("watcher.redis.username", "")
	v.SetDefault("watcher.redis.password", "")
	v.SetDefault("watcher.redis.tls", false)
	v.SetDefault("watcher.redis.tls_insecure_skip_verify", false)
	v.SetDefault("watcher.redis.pool_size", 0)
	v.SetDefault("watcher.redis.dial_timeout", 5*time.Second)

	v.SetDefault("reaper.enabled", true)
	v.SetDefault("reaper.cron", "*/5 * * * *")
	v.SetDefault("reaper.grace", time.Minute)

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "")
	v.SetDefault("audit.max_size", 100)
	v.SetDefault("audit.max_backups", 3)
	v.SetDefault("audit.max_age", 30)
	v.SetDefault("audit.filter", "")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.exporter.type", "stdout")
	v.SetDefault("metrics.exporter.endpoint", "")
	v.SetDefault("metrics.exporter.insecure", false)
	v.SetDefault("metrics.interval", 30*time.Second)
}
