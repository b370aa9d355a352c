// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Discord  DiscordConfig  `yaml:"discord"`
	Spotify  SpotifyConfig  `yaml:"spotify"`
	Playback PlaybackConfig `yaml:"playback"`
	Autoplay AutoplayConfig `yaml:"autoplay"`
	Session  SessionConfig  `yaml:"session"`
	Web      WebConfig      `yaml:"web"`
}

// DiscordConfig represents Discord bot configuration.
type DiscordConfig struct {
	Token  string `yaml:"token" validate:"required"`
	Prefix string `yaml:"prefix" default:"!"`
}

// SpotifyConfig represents Spotify API configuration. Credentials are
// optional; without them Spotify links and recommendations are
// unavailable and everything resolves through YouTube.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
}

// Enabled reports whether Spotify credentials are configured.
func (c SpotifyConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// PlaybackConfig represents playback control configuration.
type PlaybackConfig struct {
	ResolveMaxAttempts  int     `yaml:"resolve_max_attempts" default:"3" validate:"gte=1,lte=10"`
	ResolveBaseDelayMs  int     `yaml:"resolve_base_delay_ms" default:"1000" validate:"gte=0,lte=30000"`
	ResolveBackoff      float64 `yaml:"resolve_backoff" default:"2.0" validate:"gte=1,lte=10"`
	DefaultVolume       int     `yaml:"default_volume" default:"100" validate:"gte=0,lte=200"`
}

// AutoplayConfig represents autoplay configuration.
type AutoplayConfig struct {
	MaxTrackDurationSec int              `yaml:"max_track_duration_sec" default:"300" validate:"gte=0"`
	CooldownSec         int              `yaml:"cooldown_sec" default:"30" validate:"gte=0"`
	MaxFailures         int              `yaml:"max_failures" default:"3" validate:"gte=1"`
	HistorySize         int              `yaml:"history_size" default:"50" validate:"gte=1,lte=500"`
	Providers           []ProviderConfig `yaml:"providers"`
}

// ProviderConfig represents a single autoplay provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// SessionConfig represents session lifecycle configuration.
type SessionConfig struct {
	InactivityTimeoutMin int `yaml:"inactivity_timeout_min" default:"15" validate:"gte=1"`
	SweepIntervalSec     int `yaml:"sweep_interval_sec" default:"30" validate:"gte=5"`
	AloneGraceSec        int `yaml:"alone_grace_sec" default:"120" validate:"gte=0"`
}

// WebConfig represents the status web server configuration.
type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr" default:":8080"`
}

// InactivityTimeout returns the session inactivity timeout as a duration.
func (c SessionConfig) InactivityTimeout() time.Duration {
	return time.Duration(c.InactivityTimeoutMin) * time.Minute
}

// SweepInterval returns the sweep cadence as a duration.
func (c SessionConfig) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSec) * time.Second
}

// AloneGrace returns the alone-in-channel grace period as a duration.
func (c SessionConfig) AloneGrace() time.Duration {
	return time.Duration(c.AloneGraceSec) * time.Second
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("DISCORD_TOKEN"); v != "" {
		c.Discord.Token = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	for i, p := range c.Autoplay.Providers {
		switch p.Type {
		case "spotify", "youtube":
		default:
			return errors.Newf("unsupported autoplay provider type: %s (provider index %d)", p.Type, i)
		}
		if p.Type == "spotify" && !c.Spotify.Enabled() {
			return errors.Newf("autoplay provider %q needs spotify credentials", p.DisplayName)
		}
	}

	return nil
}
