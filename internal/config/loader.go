package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from an optional file plus VANTA_ environment
// variables layered over the defaults. An empty configPath searches the
// default locations and is not an error when nothing is found.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	defaults := DefaultConfig()
	v.SetDefault("server.bind_addr", defaults.Server.BindAddr)
	v.SetDefault("server.max_upload_size", defaults.Server.MaxUploadSize)
	v.SetDefault("vault.root", defaults.Vault.Root)
	v.SetDefault("kdf.memory_kib", defaults.KDF.MemoryKiB)
	v.SetDefault("kdf.iterations", defaults.KDF.Iterations)
	v.SetDefault("kdf.parallelism", defaults.KDF.Parallelism)
	v.SetDefault("pipeline.max_concurrent", defaults.Pipeline.MaxConcurrent)
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetEnvPrefix("VANTA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configPath, err)
		}
	} else {
		v.SetConfigName("vanta")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/vanta")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}
