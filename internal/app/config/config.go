package config

import "time"

// Archive backends understood by the container
const (
	ArchiveNone   = "none"
	ArchiveLocal  = "local"
	ArchiveS3     = "s3"
	ArchiveMemory = "memory"
)

// Config provides read-only access to application configuration.
// The app layer depends on this interface, never on the file format.
type Config interface {
	// Core settings
	Home() string   // Base directory for storyrelay state
	DBPath() string // SQLite database path (":memory:" for an ephemeral store)

	// Logging
	LogLevel() string  // debug, info, warn, error
	LogFormat() string // console or json

	// Managers
	CacheSize() int                        // Communication manager LRU capacity
	SessionSecret() string                 // Key material for sealing session state; empty disables sealing
	DefaultSessionLifetime() time.Duration // Lifetime of sessions created without an explicit expiry

	// Archive
	Archive() ArchiveConfig

	// Metrics
	MetricsEnabled() bool

	// Agent roster
	Agents() []AgentConfig

	// Metadata
	ConfigSource() string // "yaml", "toml" or "default"
	SettingPath() string  // Path of the loaded setting file, empty for defaults
}

// ArchiveConfig selects where cleanup archives story files
type ArchiveConfig struct {
	Type     string
	Dir      string
	S3Bucket string
	S3Prefix string
	S3Region string
}

// AgentConfig declares one agent of the roster
type AgentConfig struct {
	Name          string
	Tier          int
	Priority      int
	Capabilities  []string
	Tools         []string
	Paused        bool
	PassUrgencies []string
}

// Values carries every setting into NewAppConfig
type Values struct {
	Home                string
	DBPath              string
	LogLevel            string
	LogFormat           string
	CacheSize           int
	SessionSecret       string
	DefaultSessionHours int
	Archive             ArchiveConfig
	MetricsEnabled      bool
	Agents              []AgentConfig
	ConfigSource        string
	SettingPath         string
}

// AppConfig is the immutable implementation of Config
type AppConfig struct {
	v Values
}

// NewAppConfig freezes the given values. It is called by the settings
// loader after defaults are applied.
func NewAppConfig(v Values) *AppConfig {
	agents := make([]AgentConfig, len(v.Agents))
	copy(agents, v.Agents)
	v.Agents = agents
	return &AppConfig{v: v}
}

// Home returns the base directory
func (c *AppConfig) Home() string { return c.v.Home }

// DBPath returns the SQLite database path
func (c *AppConfig) DBPath() string { return c.v.DBPath }

// LogLevel returns the log level name
func (c *AppConfig) LogLevel() string { return c.v.LogLevel }

// LogFormat returns the log output format
func (c *AppConfig) LogFormat() string { return c.v.LogFormat }

// CacheSize returns the story cache capacity
func (c *AppConfig) CacheSize() int { return c.v.CacheSize }

// SessionSecret returns the session sealing secret
func (c *AppConfig) SessionSecret() string { return c.v.SessionSecret }

// DefaultSessionLifetime returns the session lifetime used when none is requested
func (c *AppConfig) DefaultSessionLifetime() time.Duration {
	return time.Duration(c.v.DefaultSessionHours) * time.Hour
}

// Archive returns the archive settings
func (c *AppConfig) Archive() ArchiveConfig { return c.v.Archive }

// MetricsEnabled reports whether OpenTelemetry instruments are recorded
func (c *AppConfig) MetricsEnabled() bool { return c.v.MetricsEnabled }

// Agents returns a copy of the roster
func (c *AppConfig) Agents() []AgentConfig {
	out := make([]AgentConfig, len(c.v.Agents))
	copy(out, c.v.Agents)
	return out
}

// ConfigSource returns the source of configuration
func (c *AppConfig) ConfigSource() string { return c.v.ConfigSource }

// SettingPath returns the path of the loaded setting file
func (c *AppConfig) SettingPath() string { return c.v.SettingPath }

var _ Config = (*AppConfig)(nil)
