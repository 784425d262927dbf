package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds gtm-go's file-based settings. All fields are optional;
// zero values mean "use the built-in default".
type Config struct {
	// LogLevel sets the minimum log level: debug, info, warn, error.
	LogLevel string `toml:"log_level"`

	// TokenPath overrides the credential file location.
	TokenPath string `toml:"token_path"`

	// ProjectID is the default Google Cloud project for the setup command.
	ProjectID string `toml:"project_id"`

	// RateQPS is the sustained request rate against the Tag Manager API.
	// Zero keeps the built-in default; negative disables throttling.
	RateQPS float64 `toml:"rate_qps"`

	// RateBurst is the token bucket burst size. Only meaningful when
	// RateQPS is positive.
	RateBurst int `toml:"rate_burst"`
}

// Load reads a TOML config file. A missing file is not an error and returns
// an empty Config; a malformed or unrecognized file is.
func Load(path string) (Config, error) {
	var cfg Config

	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Config{}, nil
		}

		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("config %s: unknown key %q", path, undecoded[0].String())
	}

	return cfg, nil
}

// Save writes the config as TOML, creating the parent directory if needed.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}

	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		f.Close()
		return fmt.Errorf("writing config file: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("closing config file: %w", err)
	}

	return nil
}
