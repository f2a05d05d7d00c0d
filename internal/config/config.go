// Package config loads datamgr settings from an optional config file,
// DATAMGR_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/roach88/datamgr/internal/logging"
)

// EnvPrefix prefixes every environment variable, e.g.
// DATAMGR_CONNECTION_STRING or DATAMGR_LOG_LEVEL.
const EnvPrefix = "DATAMGR"

// Config is the resolved configuration of one invocation.
type Config struct {
	// Backend names a registered backend. Empty means resolve it from
	// the connection string scheme.
	Backend          string `mapstructure:"backend"`
	ConnectionString string `mapstructure:"connection_string"`

	MigrationSet   string        `mapstructure:"migration_set"`
	MigrationsPath string        `mapstructure:"migrations_path"`
	ValidateTables bool          `mapstructure:"validate_tables"`
	LockTimeout    time.Duration `mapstructure:"lock_timeout"`

	Log logging.Config `mapstructure:"log"`

	// MetricsAddr serves /metrics when set, e.g. ":9464".
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// Flags maps command-line flag names onto config keys.
var Flags = map[string]string{
	"backend":      "backend",
	"conn":         "connection_string",
	"set":          "migration_set",
	"migrations":   "migrations_path",
	"validate":     "validate_tables",
	"lock-timeout": "lock_timeout",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"metrics-addr": "metrics_addr",
}

func defaults(v *viper.Viper) {
	v.SetDefault("backend", "")
	v.SetDefault("connection_string", "")
	v.SetDefault("migration_set", "")
	v.SetDefault("migrations_path", "")
	v.SetDefault("validate_tables", false)
	v.SetDefault("lock_timeout", 30*time.Second)
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.add_source", false)
	v.SetDefault("metrics_addr", "")
}

// Load resolves the configuration. path may be empty; flags may be nil.
// Only flags listed in Flags are bound, and only when they were set.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range Flags {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag --%s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values that do not depend on a command.
func (c *Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}
	if c.LockTimeout < 0 {
		errs = append(errs, fmt.Errorf("lock_timeout must not be negative, got %s", c.LockTimeout))
	}
	if c.ValidateTables && c.MigrationSet == "" {
		errs = append(errs, errors.New("validate_tables needs a migration_set"))
	}
	return errors.Join(errs...)
}
