// Package config loads process configuration for the stp commands.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/governor"
	"github.com/danielpatrickdp/solvency-transport/go-governor/internal/logging"
)

const (
	// EnvPrefix marks environment overrides, e.g. STP_GOVERNOR_GREEN_THRESHOLD.
	EnvPrefix = "STP_"

	maxConfigFileSize = 1024 * 1024 // 1MB
)

// #region types
// Config is the full process configuration.
type Config struct {
	Governor governor.Config `koanf:"governor"`
	Store    StoreConfig     `koanf:"store"`
	Logging  logging.Config  `koanf:"logging"`
	Codec    CodecConfig     `koanf:"codec"`
	Registry RegistryConfig  `koanf:"registry"`
}

// StoreConfig locates the SQLite database. An empty path keeps sessions in memory.
type StoreConfig struct {
	Path string `koanf:"path"`
}

// CodecConfig addresses the remote embedding service. An empty Addr uses
// the in-process hash embedder.
type CodecConfig struct {
	Addr    string        `koanf:"addr"`
	Listen  string        `koanf:"listen"`
	Timeout time.Duration `koanf:"timeout"`
}

// RegistryConfig controls how long FIN sessions stay addressable.
type RegistryConfig struct {
	Retention time.Duration `koanf:"retention"`
}

// #endregion types

// #region defaults
// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Governor: governor.DefaultConfig(),
		Store:    StoreConfig{Path: ""},
		Logging:  logging.DefaultConfig(),
		Codec:    CodecConfig{Listen: "127.0.0.1:7451", Timeout: 5 * time.Second},
		Registry: RegistryConfig{Retention: 10 * time.Minute},
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Governor.Validate(); err != nil {
		return fmt.Errorf("governor: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	if c.Codec.Timeout <= 0 {
		return fmt.Errorf("codec: timeout must be positive")
	}
	if c.Registry.Retention < 0 {
		return fmt.Errorf("registry: retention must be >= 0")
	}
	return nil
}

// #endregion defaults

// #region load
// Load reads a YAML file, when path is non-empty, over the defaults and then
// applies STP_ environment overrides.
//
// Precedence (highest to lowest):
//  1. Environment variables (STP_GOVERNOR_REVISION_ROUNDS, STP_STORE_PATH, ...)
//  2. YAML config file
//  3. Default()
func Load(path string) (Config, error) {
	var content []byte
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return Config{}, fmt.Errorf("stat config file: %w", err)
		}
		if info.Size() > maxConfigFileSize {
			return Config{}, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
		}
		content, err = io.ReadAll(f)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return LoadBytes(content)
}

// LoadBytes is Load for in-memory YAML. Nil content applies only defaults
// and environment overrides.
func LoadBytes(content []byte) (Config, error) {
	k := koanf.New(".")

	if len(content) > 0 {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	// STP_GOVERNOR_GREEN_THRESHOLD -> governor.green_threshold: split on the
	// first underscore only, field names keep theirs.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// #endregion load
