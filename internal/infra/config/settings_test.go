package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	appconfig "github.com/YoshitsuguKoike/storyrelay/internal/app/config"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

func TestLoadSettings_Defaults(t *testing.T) {
	cfg, err := LoadSettings(afero.NewMemMapFs(), "/srv/relay")
	require.NoError(t, err)

	assert.Equal(t, "/srv/relay", cfg.Home())
	assert.Equal(t, filepath.Join("/srv/relay", "storyrelay.db"), cfg.DBPath())
	assert.Equal(t, "warn", cfg.LogLevel())
	assert.Equal(t, "console", cfg.LogFormat())
	assert.Equal(t, 256, cfg.CacheSize())
	assert.Empty(t, cfg.SessionSecret())
	assert.Equal(t, 24*time.Hour, cfg.DefaultSessionLifetime())
	assert.Equal(t, appconfig.ArchiveNone, cfg.Archive().Type)
	assert.Equal(t, filepath.Join("/srv/relay", "archive"), cfg.Archive().Dir)
	assert.False(t, cfg.MetricsEnabled())
	assert.Empty(t, cfg.Agents())
	assert.Equal(t, "default", cfg.ConfigSource())
	assert.Empty(t, cfg.SettingPath())
}

func TestLoadSettings_EmptyBaseDir(t *testing.T) {
	cfg, err := LoadSettings(afero.NewMemMapFs(), "")
	require.NoError(t, err)
	assert.Equal(t, DefaultHome, cfg.Home())
}

func TestLoadSettings_YAML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/relay/setting.yml", []byte(`
db_path: /data/relay.db
log_level: debug
log_format: JSON
cache_size: 64
session_secret: s3cr3t
default_session_hours: 2
archive:
  type: s3
  s3_bucket: relay-archive
  s3_prefix: prod
metrics_enabled: true
agents:
  - name: parser-junior
    tier: 1
    priority: 3
    tools: ["csv-*"]
    pass_urgencies: [CRITICAL]
  - name: parser-senior
    tier: 2
    priority: 7
    capabilities: [review]
`), 0o644))

	cfg, err := LoadSettings(fs, "/srv/relay")
	require.NoError(t, err)

	assert.Equal(t, "yaml", cfg.ConfigSource())
	assert.Equal(t, "/srv/relay/setting.yml", cfg.SettingPath())
	assert.Equal(t, "/data/relay.db", cfg.DBPath())
	assert.Equal(t, "debug", cfg.LogLevel())
	assert.Equal(t, "json", cfg.LogFormat())
	assert.Equal(t, 64, cfg.CacheSize())
	assert.Equal(t, "s3cr3t", cfg.SessionSecret())
	assert.Equal(t, 2*time.Hour, cfg.DefaultSessionLifetime())
	assert.Equal(t, appconfig.ArchiveConfig{
		Type:     "s3",
		Dir:      filepath.Join("/srv/relay", "archive"),
		S3Bucket: "relay-archive",
		S3Prefix: "prod",
	}, cfg.Archive())
	assert.True(t, cfg.MetricsEnabled())

	agents := cfg.Agents()
	require.Len(t, agents, 2)
	assert.Equal(t, "parser-junior", agents[0].Name)
	assert.Equal(t, []string{"csv-*"}, agents[0].Tools)
	assert.Equal(t, []string{"CRITICAL"}, agents[0].PassUrgencies)
	assert.Equal(t, []string{"review"}, agents[1].Capabilities)
}

func TestLoadSettings_TOML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "relay/setting.toml", []byte(`
home = "/custom/home"
cache_size = 32

[archive]
type = "local"

[[agents]]
name = "reviewer"
tier = 3
priority = 5
`), 0o644))

	cfg, err := LoadSettings(fs, "relay")
	require.NoError(t, err)

	assert.Equal(t, "toml", cfg.ConfigSource())
	assert.Equal(t, "/custom/home", cfg.Home())
	assert.Equal(t, filepath.Join("/custom/home", "storyrelay.db"), cfg.DBPath())
	assert.Equal(t, 32, cfg.CacheSize())
	assert.Equal(t, appconfig.ArchiveLocal, cfg.Archive().Type)
	assert.Equal(t, filepath.Join("/custom/home", "archive"), cfg.Archive().Dir)
	require.Len(t, cfg.Agents(), 1)
	assert.Equal(t, 3, cfg.Agents()[0].Tier)
}

func TestLoadSettings_YMLWinsOverTOML(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "relay/setting.yml", []byte("cache_size: 10\n"), 0o644))
	require.NoError(t, afero.WriteFile(fs, "relay/setting.toml", []byte("cache_size = 20\n"), 0o644))

	cfg, err := LoadSettings(fs, "relay")
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.CacheSize())
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero cache", "cache_size: 0\n"},
		{"negative session hours", "default_session_hours: -1\n"},
		{"unknown log format", "log_format: xml\n"},
		{"unknown archive", "archive:\n  type: ftp\n"},
		{"s3 without bucket", "archive:\n  type: s3\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "relay/setting.yaml", []byte(tt.content), 0o644))

			_, err := LoadSettings(fs, "relay")
			assert.ErrorIs(t, err, model.ErrInvalidArgument)
		})
	}
}

func TestLoadSettings_Malformed(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "relay/setting.yml", []byte("cache_size: [not, a, number\n"), 0o644))

	_, err := LoadSettings(fs, "relay")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse setting file")
}

func TestCreateDefaultSettings(t *testing.T) {
	data, err := CreateDefaultSettings("/srv/relay")
	require.NoError(t, err)

	var raw RawSettings
	require.NoError(t, yaml.Unmarshal(data, &raw))
	require.NotNil(t, raw.CacheSize)
	assert.Equal(t, 256, *raw.CacheSize)
	assert.Len(t, raw.Agents, 2)

	// The rendered file loads back cleanly
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/srv/relay/setting.yml", data, 0o644))
	cfg, err := LoadSettings(fs, "/srv/relay")
	require.NoError(t, err)
	assert.Equal(t, "yaml", cfg.ConfigSource())
	assert.Len(t, cfg.Agents(), 2)
}
