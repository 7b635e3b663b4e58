// Package config loads runtime configuration from a .env file and prefixed
// environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config is the runtime configuration of the mapping layer.
type Config struct {
	Store StoreConfig `mapstructure:"store"`
	Log   LogConfig   `mapstructure:"log"`
	Find  FindConfig  `mapstructure:"find"`
}

// StoreConfig selects and parameterizes the store driver.
type StoreConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite
	DSN    string `mapstructure:"dsn"`    // sqlite file path (or :memory:)
}

// FindConfig tunes query defaults.
type FindConfig struct {
	// DefaultLimit caps cursors that set no explicit limit. Zero means
	// unlimited.
	DefaultLimit int `mapstructure:"defaultlimit"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	AddSource bool   `mapstructure:"addsource"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Store: StoreConfig{Driver: "memory"},
		Log:   LogConfig{Level: "INFO", Format: "json"},
	}
}

// Load loads configuration from .env file and environment variables.
// prefix: environment variable prefix (e.g. "NEISAN_MONGO_")
// target: pointer to the config struct to load into.
func Load(prefix string, target any) error {
	v := viper.New()

	// 1. Load from .env file (optional).
	v.SetConfigFile(".env")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Other read errors surface during Unmarshal if the keys matter.
		}
	}

	// 2. Load from environment variables. Iterate and populate viper so
	// Unmarshal sees keys even without a config file.
	prefixUpper := strings.ToUpper(prefix)
	for _, envStr := range os.Environ() {
		pair := strings.SplitN(envStr, "=", 2)
		key, value := pair[0], pair[1]

		if strings.HasPrefix(key, prefixUpper) {
			// NEISAN_MONGO_STORE_DRIVER -> store.driver
			propKey := strings.TrimPrefix(key, prefixUpper)
			propKey = strings.ToLower(strings.ReplaceAll(propKey, "_", "."))
			propKey = strings.TrimPrefix(propKey, ".")

			v.Set(propKey, value)
		}
	}

	// 3. Unmarshal into struct.
	if err := v.Unmarshal(target); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
