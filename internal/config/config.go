// Package config loads the relcount configuration from a file, env vars and
// flags, validates it, and turns it into a schema and a store manager.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable, e.g.
// RELCOUNT_LOGGING_LEVEL or RELCOUNT_DEFAULT_STORE.
const EnvPrefix = "RELCOUNT"

// Config holds the application configuration.
type Config struct {
	DefaultStore  string                 `mapstructure:"default_store"`
	Stores        map[string]StoreConfig `mapstructure:"stores"`
	Entities      []EntityConfig         `mapstructure:"entities"`
	Relationships []RelationshipConfig   `mapstructure:"relationships"`
	Logging       LoggingConfig          `mapstructure:"logging"`
}

// StoreConfig describes one named database.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"` // mysql, postgres, sqlite
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// EntityConfig declares an entity and its global scopes.
type EntityConfig struct {
	Name       string        `mapstructure:"name"`
	Table      string        `mapstructure:"table"`
	PrimaryKey string        `mapstructure:"primary_key"`
	Columns    []string      `mapstructure:"columns"`
	Store      string        `mapstructure:"store"`
	WithCount  []string      `mapstructure:"with_count"`
	Scopes     []ScopeConfig `mapstructure:"scopes"`
}

// ScopeConfig is a named WHERE fragment.
type ScopeConfig struct {
	Name  string `mapstructure:"name"`
	Where string `mapstructure:"where"`
	Args  []any  `mapstructure:"args"`
}

// RelationshipConfig declares a has-many relationship.
type RelationshipConfig struct {
	Parent     string `mapstructure:"parent"`
	Name       string `mapstructure:"name"`
	Child      string `mapstructure:"child"`
	ForeignKey string `mapstructure:"foreign_key"`
	LocalKey   string `mapstructure:"local_key"`
	// WithoutGlobalScopes lists child scopes the relation ignores; "*"
	// ignores all of them.
	WithoutGlobalScopes []string `mapstructure:"without_global_scopes"`
	Where               string   `mapstructure:"where"`
	Args                []any    `mapstructure:"args"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

// FlagKeys maps command line flag names to their configuration keys.
var FlagKeys = map[string]string{
	"log-level":     "logging.level",
	"log-format":    "logging.format",
	"default-store": "default_store",
}

// Load reads the configuration. Precedence, highest first:
//  1. Flags in fs that were explicitly set
//  2. Environment variables
//  3. The config file at path
//  4. Default values
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("relcount")
		v.SetConfigType("yaml")
		v.AddConfigPath("$HOME/.relcount")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		if path != "" {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if fs != nil {
		bindChangedFlags(v, fs)
	}

	// Unknown keys are rejected.
	var cfg Config
	if err := v.UnmarshalExact(
		&cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		),
	); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("default_store", "default")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// bindChangedFlags copies only explicitly-set flags into Viper, preserving
// precedence: flags > env > file > defaults.
func bindChangedFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.Visit(func(f *pflag.Flag) {
		key, ok := FlagKeys[f.Name]
		if !ok {
			return
		}
		v.Set(key, f.Value.String())
	})
}
