// Package config handles configuration management for wide.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	Sync    SyncConfig    `mapstructure:"sync" yaml:"sync"`
	Editor  EditorConfig  `mapstructure:"editor" yaml:"editor"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ServerConfig holds session server connection configuration.
type ServerConfig struct {
	URL                string `mapstructure:"url" yaml:"url"`
	HandshakeTimeoutMS int    `mapstructure:"handshake_timeout_ms" yaml:"handshake_timeout_ms"`
}

// SyncConfig holds change synchronization configuration.
type SyncConfig struct {
	IntervalMS int `mapstructure:"interval_ms" yaml:"interval_ms"`
}

// EditorConfig holds local editing surface configuration.
type EditorConfig struct {
	MirrorDir  string `mapstructure:"mirror_dir" yaml:"mirror_dir"`
	DebounceMS int    `mapstructure:"debounce_ms" yaml:"debounce_ms"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Load loads configuration from files and environment.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.wide")
		v.AddConfigPath("/etc/wide")
	}

	v.SetEnvPrefix("WIDE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Config file is optional; defaults and environment carry a full config.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "ws://127.0.0.1:8080/ide/ws")
	v.SetDefault("server.handshake_timeout_ms", 10000)

	v.SetDefault("sync.interval_ms", 2000)

	v.SetDefault("editor.mirror_dir", "")
	v.SetDefault("editor.debounce_ms", 100)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
