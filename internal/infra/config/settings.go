package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/YoshitsuguKoike/storyrelay/internal/app/config"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/model"
)

// DefaultHome is used when neither a flag nor the setting file names one
const DefaultHome = ".storyrelay"

// settingFiles are tried in order; the first one present wins
var settingFiles = []struct {
	name   string
	source string
}{
	{"setting.yml", "yaml"},
	{"setting.yaml", "yaml"},
	{"setting.toml", "toml"},
}

// RawSettings mirrors the setting file. Pointer fields tell "unset" apart
// from zero values so defaults only fill what the file left out.
type RawSettings struct {
	Home                *string        `yaml:"home" toml:"home"`
	DBPath              *string        `yaml:"db_path" toml:"db_path"`
	LogLevel            *string        `yaml:"log_level" toml:"log_level"`
	LogFormat           *string        `yaml:"log_format" toml:"log_format"`
	CacheSize           *int           `yaml:"cache_size" toml:"cache_size"`
	SessionSecret       *string        `yaml:"session_secret" toml:"session_secret"`
	DefaultSessionHours *int           `yaml:"default_session_hours" toml:"default_session_hours"`
	Archive             RawArchive     `yaml:"archive" toml:"archive"`
	MetricsEnabled      *bool          `yaml:"metrics_enabled" toml:"metrics_enabled"`
	Agents              []RawAgentSpec `yaml:"agents" toml:"agents"`
}

// RawArchive is the archive section of the setting file
type RawArchive struct {
	Type     *string `yaml:"type" toml:"type"`
	Dir      *string `yaml:"dir" toml:"dir"`
	S3Bucket *string `yaml:"s3_bucket" toml:"s3_bucket"`
	S3Prefix *string `yaml:"s3_prefix" toml:"s3_prefix"`
	S3Region *string `yaml:"s3_region" toml:"s3_region"`
}

// RawAgentSpec is one entry of the agents list
type RawAgentSpec struct {
	Name          string   `yaml:"name" toml:"name"`
	Tier          int      `yaml:"tier" toml:"tier"`
	Priority      int      `yaml:"priority" toml:"priority"`
	Capabilities  []string `yaml:"capabilities,omitempty" toml:"capabilities,omitempty"`
	Tools         []string `yaml:"tools,omitempty" toml:"tools,omitempty"`
	Paused        bool     `yaml:"paused,omitempty" toml:"paused,omitempty"`
	PassUrgencies []string `yaml:"pass_urgencies,omitempty" toml:"pass_urgencies,omitempty"`
}

// LoadSettings reads the setting file from baseDir through fsys.
// Priority: setting file > defaults. A missing file is not an error.
func LoadSettings(fsys afero.Fs, baseDir string) (*config.AppConfig, error) {
	settings := &RawSettings{}
	configSource := "default"
	settingPath := ""

	for _, f := range settingFiles {
		path := filepath.Join(baseDir, f.name)
		data, err := afero.ReadFile(fsys, path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to read setting file", goerr.V("path", path))
		}

		if err := unmarshalSettings(f.source, data, settings); err != nil {
			return nil, goerr.Wrap(err, "failed to parse setting file", goerr.V("path", path))
		}
		configSource = f.source
		settingPath = path
		break
	}

	if settings.Home == nil {
		settings.Home = &baseDir
	}
	applyDefaults(settings)

	if err := validate(settings); err != nil {
		return nil, err
	}
	return buildAppConfig(settings, configSource, settingPath), nil
}

func unmarshalSettings(source string, data []byte, settings *RawSettings) error {
	if source == "toml" {
		return toml.Unmarshal(data, settings)
	}
	return yaml.Unmarshal(data, settings)
}

// applyDefaults fills in default values for any nil fields
func applyDefaults(settings *RawSettings) {
	if settings.Home == nil || *settings.Home == "" {
		v := DefaultHome
		settings.Home = &v
	}
	if settings.DBPath == nil {
		v := filepath.Join(*settings.Home, "storyrelay.db")
		settings.DBPath = &v
	}

	if settings.LogLevel == nil {
		v := "warn"
		settings.LogLevel = &v
	}
	if settings.LogFormat == nil {
		v := "console"
		settings.LogFormat = &v
	}

	if settings.CacheSize == nil {
		v := 256
		settings.CacheSize = &v
	}
	if settings.SessionSecret == nil {
		v := ""
		settings.SessionSecret = &v
	}
	if settings.DefaultSessionHours == nil {
		v := 24
		settings.DefaultSessionHours = &v
	}

	if settings.Archive.Type == nil {
		v := config.ArchiveNone
		settings.Archive.Type = &v
	}
	if settings.Archive.Dir == nil {
		v := filepath.Join(*settings.Home, "archive")
		settings.Archive.Dir = &v
	}
	for _, p := range []**string{&settings.Archive.S3Bucket, &settings.Archive.S3Prefix, &settings.Archive.S3Region} {
		if *p == nil {
			v := ""
			*p = &v
		}
	}

	if settings.MetricsEnabled == nil {
		v := false
		settings.MetricsEnabled = &v
	}
}

func validate(settings *RawSettings) error {
	if *settings.CacheSize <= 0 {
		return model.InvalidArgument("cache_size must be positive", goerr.V("cache_size", *settings.CacheSize))
	}
	if *settings.DefaultSessionHours <= 0 {
		return model.InvalidArgument("default_session_hours must be positive",
			goerr.V("default_session_hours", *settings.DefaultSessionHours))
	}

	switch strings.ToLower(*settings.LogFormat) {
	case "console", "json":
	default:
		return model.InvalidArgument("log_format must be console or json", goerr.V("log_format", *settings.LogFormat))
	}

	switch *settings.Archive.Type {
	case config.ArchiveNone, config.ArchiveLocal, config.ArchiveMemory:
	case config.ArchiveS3:
		if *settings.Archive.S3Bucket == "" {
			return model.InvalidArgument("archive.s3_bucket is required for the s3 archive")
		}
	default:
		return model.InvalidArgument("unknown archive type", goerr.V("type", *settings.Archive.Type))
	}
	return nil
}

// buildAppConfig converts RawSettings to AppConfig
func buildAppConfig(settings *RawSettings, configSource, settingPath string) *config.AppConfig {
	agents := make([]config.AgentConfig, 0, len(settings.Agents))
	for _, a := range settings.Agents {
		agents = append(agents, config.AgentConfig{
			Name:          a.Name,
			Tier:          a.Tier,
			Priority:      a.Priority,
			Capabilities:  a.Capabilities,
			Tools:         a.Tools,
			Paused:        a.Paused,
			PassUrgencies: a.PassUrgencies,
		})
	}

	return config.NewAppConfig(config.Values{
		Home:                *settings.Home,
		DBPath:              *settings.DBPath,
		LogLevel:            *settings.LogLevel,
		LogFormat:           strings.ToLower(*settings.LogFormat),
		CacheSize:           *settings.CacheSize,
		SessionSecret:       *settings.SessionSecret,
		DefaultSessionHours: *settings.DefaultSessionHours,
		Archive: config.ArchiveConfig{
			Type:     *settings.Archive.Type,
			Dir:      *settings.Archive.Dir,
			S3Bucket: *settings.Archive.S3Bucket,
			S3Prefix: *settings.Archive.S3Prefix,
			S3Region: *settings.Archive.S3Region,
		},
		MetricsEnabled: *settings.MetricsEnabled,
		Agents:         agents,
		ConfigSource:   configSource,
		SettingPath:    settingPath,
	})
}

// CreateDefaultSettings renders a setting.yml holding every default
func CreateDefaultSettings(home string) ([]byte, error) {
	settings := &RawSettings{Home: &home}
	applyDefaults(settings)
	settings.Agents = []RawAgentSpec{
		{Name: "implementer", Tier: 1, Priority: 5, Capabilities: []string{"code"}},
		{Name: "reviewer", Tier: 2, Priority: 5, Capabilities: []string{"code", "review"}},
	}

	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to render default settings")
	}
	return data, nil
}
