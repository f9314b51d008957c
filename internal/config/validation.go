package config

import (
	"fmt"
	"net/url"
)

// Validate validates the configuration.
func Validate(cfg *Config) error {
	if err := validateServer(&cfg.Server); err != nil {
		return err
	}
	if err := validateSync(&cfg.Sync); err != nil {
		return err
	}
	if err := validateEditor(&cfg.Editor); err != nil {
		return err
	}
	return validateLogging(&cfg.Logging)
}

func validateServer(cfg *ServerConfig) error {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("server.url is not a valid URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server.url scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server.url must include a host")
	}
	if cfg.HandshakeTimeoutMS <= 0 {
		return fmt.Errorf("server.handshake_timeout_ms must be positive, got %d", cfg.HandshakeTimeoutMS)
	}
	return nil
}

func validateSync(cfg *SyncConfig) error {
	if cfg.IntervalMS <= 0 {
		return fmt.Errorf("sync.interval_ms must be positive, got %d", cfg.IntervalMS)
	}
	return nil
}

func validateEditor(cfg *EditorConfig) error {
	if cfg.DebounceMS < 0 {
		return fmt.Errorf("editor.debounce_ms must not be negative, got %d", cfg.DebounceMS)
	}
	return nil
}

func validateLogging(cfg *LoggingConfig) error {
	switch cfg.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of trace, debug, info, warn, error; got %q", cfg.Level)
	}
	switch cfg.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", cfg.Format)
	}
	return nil
}
