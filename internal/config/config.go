// Package config loads the console settings from an optional YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wolfeidau/timax-console/internal/client"
	"github.com/wolfeidau/timax-console/internal/session"
)

// Config is the merged file configuration. Durations are Go duration strings
// such as "30m".
type Config struct {
	ServerURL           string        `yaml:"server_url"`
	Timeout             time.Duration `yaml:"timeout"`
	CredentialsPath     string        `yaml:"credentials_path"`
	AccessTokenLifetime time.Duration `yaml:"access_token_lifetime"`
	RefreshMargin       time.Duration `yaml:"refresh_margin"`
	MinRefreshInterval  time.Duration `yaml:"min_refresh_interval"`
	IdleTimeout         time.Duration `yaml:"idle_timeout"`
	IdleDebounce        time.Duration `yaml:"idle_debounce"`
	NetworkTimeout      time.Duration `yaml:"network_timeout"`
	RetryMaxElapsed     time.Duration `yaml:"retry_max_elapsed"`
	CacheDir            string        `yaml:"cache_dir"`
	Telemetry           bool          `yaml:"telemetry"`
}

// Default returns the built in settings.
func Default() Config {
	sc := session.DefaultConfig()
	cc := client.DefaultConfig()
	return Config{
		ServerURL:           cc.ServerURL,
		Timeout:             cc.Timeout,
		AccessTokenLifetime: sc.AccessTokenLifetime,
		RefreshMargin:       sc.RefreshMargin,
		MinRefreshInterval:  sc.MinRefreshInterval,
		IdleTimeout:         sc.IdleTimeout,
		IdleDebounce:        sc.IdleDebounce,
		NetworkTimeout:      sc.NetworkTimeout,
		RetryMaxElapsed:     cc.RetryMaxElapsed,
	}
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".timax", "config.yaml")
}

// Load reads path over the defaults. An empty path loads DefaultPath if it
// exists; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	optional := path == ""
	if optional {
		path = DefaultPath()
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks both projected package configs.
func (c Config) Validate() error {
	return errors.Join(c.SessionConfig().Validate(), c.ClientConfig().Validate())
}

// SessionConfig projects the timer settings.
func (c Config) SessionConfig() session.Config {
	return session.Config{
		AccessTokenLifetime: c.AccessTokenLifetime,
		RefreshMargin:       c.RefreshMargin,
		MinRefreshInterval:  c.MinRefreshInterval,
		IdleTimeout:         c.IdleTimeout,
		IdleDebounce:        c.IdleDebounce,
		NetworkTimeout:      c.NetworkTimeout,
	}
}

// ClientConfig projects the backend client settings.
func (c Config) ClientConfig() client.Config {
	return client.Config{
		ServerURL:       c.ServerURL,
		Timeout:         c.Timeout,
		CacheDir:        c.CacheDir,
		RetryMaxElapsed: c.RetryMaxElapsed,
	}
}
