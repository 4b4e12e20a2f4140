// Package config loads engine configuration from an optional yaml file with
// RELDB_* environment overrides.
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type AppConfig struct {
	// PageSize is the unit of I/O and locking, in bytes. Fixed for the
	// lifetime of a database.
	PageSize int `mapstructure:"page_size"`

	// PoolPages is the buffer pool capacity in pages.
	PoolPages int `mapstructure:"pool_pages"`

	// DataDir is where table files live.
	DataDir string `mapstructure:"data_dir"`

	LogLevel string `mapstructure:"log_level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("page_size", 4096)
	v.SetDefault("pool_pages", 50)
	v.SetDefault("data_dir", "./data")
	v.SetDefault("log_level", "info")
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	v := viper.New()
	setDefaults(v)
	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		panic(err)
	}
	return cfg
}

// Load reads the named yaml config file, applying defaults for missing keys
// and RELDB_* environment variables on top.
func Load(path string) (*AppConfig, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrap(err, "failed to read config")
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return cfg, nil
}
