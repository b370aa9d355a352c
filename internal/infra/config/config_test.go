package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseConfig(t *testing.T) Config {
	t.Helper()

	var cfg Config
	require.NoError(t, defaults.Set(&cfg))
	cfg.Discord.Token = "test-bot-token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name: "missing discord token",
			mutate: func(c *Config) {
				c.Discord.Token = ""
			},
			wantErr: true,
			errMsg:  "Token",
		},
		{
			name: "volume over clamp range",
			mutate: func(c *Config) {
				c.Playback.DefaultVolume = 300
			},
			wantErr: true,
			errMsg:  "DefaultVolume",
		},
		{
			name: "unsupported provider type",
			mutate: func(c *Config) {
				c.Autoplay.Providers = []ProviderConfig{
					{Type: "soundcloud", DisplayName: "SoundCloud"},
				}
			},
			wantErr: true,
			errMsg:  "unsupported autoplay provider type",
		},
		{
			name: "spotify provider without credentials",
			mutate: func(c *Config) {
				c.Autoplay.Providers = []ProviderConfig{
					{Type: "spotify", DisplayName: "Spotify"},
				}
			},
			wantErr: true,
			errMsg:  "spotify credentials",
		},
		{
			name: "spotify provider with credentials",
			mutate: func(c *Config) {
				c.Spotify.ClientID = "id"
				c.Spotify.ClientSecret = "secret"
				c.Autoplay.Providers = []ProviderConfig{
					{Type: "spotify", DisplayName: "Spotify"},
				}
			},
			wantErr: false,
		},
		{
			name: "youtube provider needs no credentials",
			mutate: func(c *Config) {
				c.Autoplay.Providers = []ProviderConfig{
					{Type: "youtube", DisplayName: "YouTube"},
				}
			},
			wantErr: false,
		},
		{
			name: "sweep interval too small",
			mutate: func(c *Config) {
				c.Session.SweepIntervalSec = 1
			},
			wantErr: true,
			errMsg:  "SweepIntervalSec",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err, "expected validation to fail")
				assert.Contains(t, err.Error(), tt.errMsg,
					"error message should mention the problem")
			} else {
				assert.NoError(t, err, "expected validation to pass")
			}
		})
	}
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: file-token
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "!", cfg.Discord.Prefix)
	assert.Equal(t, 100, cfg.Playback.DefaultVolume)
	assert.Equal(t, 3, cfg.Playback.ResolveMaxAttempts)
	assert.Equal(t, 300, cfg.Autoplay.MaxTrackDurationSec)
	assert.Equal(t, 30, cfg.Autoplay.CooldownSec)
	assert.Equal(t, 50, cfg.Autoplay.HistorySize)
	assert.Equal(t, 15*time.Minute, cfg.Session.InactivityTimeout())
	assert.Equal(t, 30*time.Second, cfg.Session.SweepInterval())
	assert.Equal(t, 120*time.Second, cfg.Session.AloneGrace())
	assert.Equal(t, ":8080", cfg.Web.Addr)
	assert.False(t, cfg.Spotify.Enabled())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: file-token
spotify:
  client_id: file-id
  client_secret: file-secret
`)

	t.Setenv("DISCORD_TOKEN", "env-token")
	t.Setenv("SPOTIFY_CLIENT_ID", "env-id")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "env-token", cfg.Discord.Token)
	assert.Equal(t, "env-id", cfg.Spotify.ClientID)
	assert.Equal(t, "file-secret", cfg.Spotify.ClientSecret)
	assert.True(t, cfg.Spotify.Enabled())
}

func TestLoad_ProviderSettingsPassThrough(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: file-token
autoplay:
  providers:
    - type: youtube
      display_name: YouTube related
      settings:
        search_limit: 8
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Autoplay.Providers, 1)
	p := cfg.Autoplay.Providers[0]
	assert.Equal(t, "youtube", p.Type)
	assert.Equal(t, "YouTube related", p.DisplayName)
	assert.Equal(t, 8, p.Settings["search_limit"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "discord: [not a mapping")
	_, err := Load(path)
	assert.Error(t, err)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}
