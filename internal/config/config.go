package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Server ServerConfig `mapstructure:"server"`

	// Vault storage settings
	Vault VaultConfig `mapstructure:"vault"`

	// Argon2id parameters for new envelopes
	KDF KDFConfig `mapstructure:"kdf"`

	// Image pipeline settings
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Logging
	Log LogConfig `mapstructure:"log"`
}

// ServerConfig for the HTTP listener.
type ServerConfig struct {
	BindAddr      string `mapstructure:"bind_addr"`
	MaxUploadSize int64  `mapstructure:"max_upload_size"`
}

// VaultConfig for the encrypted store.
type VaultConfig struct {
	Root string `mapstructure:"root"` // Vault root directory
}

// KDFConfig holds Argon2id cost parameters used when sealing a new
// envelope. Existing envelopes carry their own parameters.
type KDFConfig struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
}

// PipelineConfig for CPU-bound image work.
type PipelineConfig struct {
	MaxConcurrent int64 `mapstructure:"max_concurrent"` // Concurrent pipelines
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddr:      "0.0.0.0:3000",
			MaxUploadSize: 50 * 1024 * 1024, // 50 MiB
		},
		Vault: VaultConfig{
			Root: "./vault",
		},
		KDF: KDFConfig{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: 4,
		},
		Pipeline: PipelineConfig{
			MaxConcurrent: 4,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Server.BindAddr == "" {
		return errors.New("server.bind_addr is required")
	}

	if c.Server.MaxUploadSize <= 0 {
		return errors.New("server.max_upload_size must be positive")
	}

	if c.Vault.Root == "" {
		return errors.New("vault.root is required")
	}

	if c.KDF.MemoryKiB < 64*1024 {
		return fmt.Errorf("kdf.memory_kib must be at least %d", 64*1024)
	}

	if c.KDF.Iterations < 3 {
		return errors.New("kdf.iterations must be at least 3")
	}

	if c.KDF.Parallelism < 1 {
		return errors.New("kdf.parallelism must be at least 1")
	}

	if c.Pipeline.MaxConcurrent <= 0 {
		return errors.New("pipeline.max_concurrent must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates the vault root and blob directory.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Vault.Root,
		filepath.Join(c.Vault.Root, "blobs"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
