// Package config loads indexer settings from config.yaml and INDEXER_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/rpattn/entityindexer/internal/db"
	"github.com/rpattn/entityindexer/internal/domain"
)

// LogConfig controls the logger.
type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// IndexerConfig holds pipeline settings.
type IndexerConfig struct {
	UserIDOffset     int64
	PlaylistIDOffset int64
}

// EventsConfig controls the change event feed.
type EventsConfig struct {
	Enabled       bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisMaxLen   int64
}

// OpsConfig controls the operations HTTP surface.
type OpsConfig struct {
	Addr           string
	AllowedOrigins []string
}

// Config is the full indexer configuration.
type Config struct {
	Database db.Config
	Log      LogConfig
	Indexer  IndexerConfig
	Events   EventsConfig
	Ops      OpsConfig

	// Source is the config file that was read, empty when none was found.
	Source string
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  100,
			MaxBackups: 5,
		},
		Indexer: IndexerConfig{
			UserIDOffset:     domain.DefaultUserIDOffset,
			PlaylistIDOffset: domain.DefaultPlaylistIDOffset,
		},
		Events: EventsConfig{
			RedisStream: "entity-changes",
			RedisMaxLen: 100000,
		},
		Ops: OpsConfig{
			Addr:           ":9090",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// Load reads config.yaml from configPath, if present, and applies
// INDEXER_<SECTION>_<KEY> environment overrides on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range knownKeys {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	} else {
		cfg.Source = v.ConfigFileUsed()
	}

	// Override defaults if values exist
	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("database.max_conns") {
		cfg.Database.MaxConns = v.GetInt32("database.max_conns")
	}

	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}
	if v.IsSet("log.file") {
		cfg.Log.File = v.GetString("log.file")
	}
	if v.IsSet("log.max_size_mb") {
		cfg.Log.MaxSizeMB = v.GetInt("log.max_size_mb")
	}
	if v.IsSet("log.max_backups") {
		cfg.Log.MaxBackups = v.GetInt("log.max_backups")
	}

	if v.IsSet("indexer.user_id_offset") {
		cfg.Indexer.UserIDOffset = v.GetInt64("indexer.user_id_offset")
	}
	if v.IsSet("indexer.playlist_id_offset") {
		cfg.Indexer.PlaylistIDOffset = v.GetInt64("indexer.playlist_id_offset")
	}

	if v.IsSet("events.enabled") {
		cfg.Events.Enabled = v.GetBool("events.enabled")
	}
	if v.IsSet("events.redis_addr") {
		cfg.Events.RedisAddr = v.GetString("events.redis_addr")
	}
	if v.IsSet("events.redis_password") {
		cfg.Events.RedisPassword = v.GetString("events.redis_password")
	}
	if v.IsSet("events.redis_db") {
		cfg.Events.RedisDB = v.GetInt("events.redis_db")
	}
	if v.IsSet("events.redis_stream") {
		cfg.Events.RedisStream = v.GetString("events.redis_stream")
	}
	if v.IsSet("events.redis_max_len") {
		cfg.Events.RedisMaxLen = v.GetInt64("events.redis_max_len")
	}

	if v.IsSet("ops.addr") {
		cfg.Ops.Addr = v.GetString("ops.addr")
	}
	if v.IsSet("ops.allowed_origins") {
		cfg.Ops.AllowedOrigins = v.GetStringSlice("ops.allowed_origins")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var knownKeys = []string{
	"database.host", "database.port", "database.user", "database.password",
	"database.dbname", "database.sslmode", "database.max_conns",
	"log.level", "log.format", "log.file", "log.max_size_mb", "log.max_backups",
	"indexer.user_id_offset", "indexer.playlist_id_offset",
	"events.enabled", "events.redis_addr", "events.redis_password", "events.redis_db",
	"events.redis_stream", "events.redis_max_len",
	"ops.addr", "ops.allowed_origins",
}

// Validate checks values that would otherwise fail later at startup.
func (c Config) Validate() error {
	if c.Indexer.UserIDOffset < 0 || c.Indexer.PlaylistIDOffset < 0 {
		return fmt.Errorf("id offsets must not be negative")
	}
	if c.Database.Port <= 0 {
		return fmt.Errorf("database port must be positive, got %d", c.Database.Port)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", c.Log.Format)
	}
	return nil
}
