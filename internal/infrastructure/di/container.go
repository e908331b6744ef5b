package di

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric"

	agentgateway "github.com/YoshitsuguKoike/storyrelay/internal/adapter/gateway/agent"
	storagegateway "github.com/YoshitsuguKoike/storyrelay/internal/adapter/gateway/storage"
	"github.com/YoshitsuguKoike/storyrelay/internal/adapter/presenter"
	"github.com/YoshitsuguKoike/storyrelay/internal/app"
	appconfig "github.com/YoshitsuguKoike/storyrelay/internal/app/config"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/input"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/port/output"
	"github.com/YoshitsuguKoike/storyrelay/internal/application/service"
	"github.com/YoshitsuguKoike/storyrelay/internal/domain/repository"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/crypto"
	sqliterepo "github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/persistence/sqlite"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/telemetry"
	"github.com/YoshitsuguKoike/storyrelay/internal/infrastructure/transaction"
)

// ServiceName tags telemetry emitted by the container
const ServiceName = "storyrelay"

// Container is the DI container that holds all dependencies.
// It wires the managers by hand in dependency order.
type Container struct {
	// Infrastructure Layer - Database
	db *sql.DB

	// Infrastructure Layer - Repositories (SQLite implementations)
	storyRepo   repository.StoryFileRepository
	memoryRepo  repository.MemoryRepository
	sessionRepo repository.SessionRepository

	// Infrastructure Layer - Transaction Manager
	txManager output.TransactionManager

	// Infrastructure Layer - Gateways
	archive output.ArchiveGateway
	agents  []input.Agent

	// Infrastructure Layer - Telemetry
	provider *telemetry.Provider
	metrics  output.MetricsRecorder
	logger   app.Logger

	// Application Layer - Managers
	storyManager   *service.StoryFileManager
	communication  *service.CommunicationManager
	memorySystem   *service.MemorySystem
	sessionManager *service.SessionManager

	// Adapter Layer - Presenters
	presenter output.Presenter

	config appconfig.Config
	opts   Options
}

// Options carries process-level collaborators that do not come from settings
type Options struct {
	Fs           afero.Fs  // Filesystem for the local archive and the database directory (default: OS)
	LogWriter    io.Writer // Destination of log records (default: stderr)
	OutputWriter io.Writer // Destination of command output (default: stdout)
	OutputFormat string    // "text" or "json" (default: text)

	// S3Client replaces the AWS client of the s3 archive; used by tests
	S3Client storagegateway.S3API
}

// NewContainer creates and initializes the DI container
func NewContainer(ctx context.Context, cfg appconfig.Config, opts Options) (*Container, error) {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.LogWriter == nil {
		opts.LogWriter = os.Stderr
	}
	if opts.OutputWriter == nil {
		opts.OutputWriter = os.Stdout
	}

	c := &Container{config: cfg, opts: opts}
	c.logger = app.NewLogger(opts.LogWriter, cfg.LogFormat(), cfg.LogLevel())

	// Initialize dependencies in dependency order; undo what was opened on failure
	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"infrastructure", c.initializeInfrastructure},
		{"gateways", c.initializeGateways},
		{"application", c.initializeApplication},
		{"adapters", c.initializeAdapters},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			_ = c.Close()
			return nil, goerr.Wrap(err, "failed to initialize "+step.name)
		}
	}
	return c, nil
}

// initializeInfrastructure opens the database and builds repositories and telemetry
func (c *Container) initializeInfrastructure(context.Context) error {
	dbPath := c.config.DBPath()
	if dbPath != ":memory:" {
		if err := c.opts.Fs.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return goerr.Wrap(err, "failed to create database directory", goerr.V("path", dbPath))
		}
	}

	db, err := sqliterepo.Open(dbPath)
	if err != nil {
		return err
	}
	c.db = db
	c.txManager = transaction.NewSQLiteTransactionManager(db)

	// A nil *Sealer must not reach the repository as a non-nil interface
	var sealer sqliterepo.StateSealer
	if secret := c.config.SessionSecret(); secret != "" {
		s, err := crypto.NewSealer(secret)
		if err != nil {
			return err
		}
		sealer = s
	} else {
		c.logger.Warn("session_secret is empty, session state is stored unencrypted")
	}

	c.storyRepo = sqliterepo.NewStoryFileRepository(db)
	c.memoryRepo = sqliterepo.NewMemoryRepository(db)
	c.sessionRepo = sqliterepo.NewSessionRepository(db, sealer)

	// Without a provider the recorder falls back to no-op instruments
	var mp metric.MeterProvider
	if c.config.MetricsEnabled() {
		c.provider = telemetry.NewProvider(ServiceName)
		mp = c.provider.MeterProvider()
	}
	recorder, err := telemetry.NewRecorder(mp)
	if err != nil {
		return goerr.Wrap(err, "failed to create metrics recorder")
	}
	c.metrics = recorder
	return nil
}

// initializeGateways builds the archive backend and the agent roster
func (c *Container) initializeGateways(ctx context.Context) error {
	archive, err := c.newArchiveGateway(ctx, c.config.Archive())
	if err != nil {
		return err
	}
	c.archive = archive
	c.logger.With("archive", c.config.Archive()).Debug("archive backend %s ready", c.config.Archive().Type)

	specs := make([]agentgateway.Spec, 0, len(c.config.Agents()))
	for _, a := range c.config.Agents() {
		specs = append(specs, agentgateway.Spec{
			Name:          a.Name,
			Tier:          a.Tier,
			Priority:      a.Priority,
			Capabilities:  a.Capabilities,
			Tools:         a.Tools,
			Paused:        a.Paused,
			PassUrgencies: a.PassUrgencies,
		})
	}
	c.agents, err = agentgateway.NewAgents(specs)
	if err != nil {
		return err
	}
	c.logger.Debug("registered %d agents", len(c.agents))
	return nil
}

func (c *Container) newArchiveGateway(ctx context.Context, cfg appconfig.ArchiveConfig) (output.ArchiveGateway, error) {
	switch cfg.Type {
	case appconfig.ArchiveLocal:
		return storagegateway.NewLocalArchiveGateway(c.opts.Fs, cfg.Dir)
	case appconfig.ArchiveS3:
		if c.opts.S3Client != nil {
			return storagegateway.NewS3ArchiveGatewayWithClient(c.opts.S3Client, cfg.S3Bucket, cfg.S3Prefix), nil
		}
		return storagegateway.NewS3ArchiveGateway(ctx, storagegateway.S3Config{
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
			Region: cfg.S3Region,
		})
	case appconfig.ArchiveMemory:
		return storagegateway.NewMemoryArchiveGateway(), nil
	case appconfig.ArchiveNone, "":
		return nil, nil
	default:
		return nil, goerr.New("unknown archive type", goerr.V("type", cfg.Type))
	}
}

// initializeApplication builds the four managers
func (c *Container) initializeApplication(context.Context) error {
	storyOpts := []service.StoryFileManagerOption{
		service.WithStoryMetrics(c.metrics),
		service.WithStoryLogger(c.logger),
	}
	if c.archive != nil {
		storyOpts = append(storyOpts, service.WithArchiveGateway(c.archive))
	}
	c.storyManager = service.NewStoryFileManager(c.storyRepo, c.txManager, storyOpts...)

	communication, err := service.NewCommunicationManager(c.storyManager, c.agents,
		service.WithCacheSize(c.config.CacheSize()),
		service.WithCommunicationMetrics(c.metrics),
		service.WithCommunicationLogger(c.logger),
	)
	if err != nil {
		return err
	}
	c.communication = communication

	c.memorySystem = service.NewMemorySystem(c.memoryRepo,
		service.WithMemoryMetrics(c.metrics),
		service.WithMemoryLogger(c.logger),
	)

	c.sessionManager = service.NewSessionManager(c.sessionRepo,
		service.WithDefaultSessionLifetime(c.config.DefaultSessionLifetime()),
		service.WithSessionMetrics(c.metrics),
		service.WithSessionLogger(c.logger),
	)
	return nil
}

// initializeAdapters picks the presenter for the output format
func (c *Container) initializeAdapters(context.Context) error {
	switch c.opts.OutputFormat {
	case "json":
		c.presenter = presenter.NewJSONPresenter(c.opts.OutputWriter)
	case "text", "":
		c.presenter = presenter.NewTextPresenter(c.opts.OutputWriter)
	default:
		return goerr.New("unknown output format", goerr.V("format", c.opts.OutputFormat))
	}
	return nil
}

// GetStoryFileManager returns the story file manager
func (c *Container) GetStoryFileManager() *service.StoryFileManager {
	return c.storyManager
}

// GetCommunicationManager returns the communication manager
func (c *Container) GetCommunicationManager() *service.CommunicationManager {
	return c.communication
}

// GetMemorySystem returns the memory system
func (c *Container) GetMemorySystem() *service.MemorySystem {
	return c.memorySystem
}

// GetSessionManager returns the session manager
func (c *Container) GetSessionManager() *service.SessionManager {
	return c.sessionManager
}

// GetArchiveGateway returns the configured archive, nil when archiving is off
func (c *Container) GetArchiveGateway() output.ArchiveGateway {
	return c.archive
}

// GetPresenter returns the presenter
func (c *Container) GetPresenter() output.Presenter {
	return c.presenter
}

// GetLogger returns the container logger
func (c *Container) GetLogger() app.Logger {
	return c.logger
}

// MetricsSnapshot returns the collected instrument values.
// It is empty when metrics are disabled.
func (c *Container) MetricsSnapshot(ctx context.Context) (map[string]float64, error) {
	if c.provider == nil {
		return map[string]float64{}, nil
	}
	return c.provider.Snapshot(ctx)
}

// Close stops timers, flushes telemetry and closes the database
func (c *Container) Close() error {
	if c.sessionManager != nil {
		c.sessionManager.Shutdown()
	}

	var errs []error
	if c.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.provider.Shutdown(ctx); err != nil {
			errs = append(errs, goerr.Wrap(err, "failed to shut down meter provider"))
		}
		c.provider = nil
	}
	if c.db != nil {
		if err := c.db.Close(); err != nil {
			errs = append(errs, goerr.Wrap(err, "failed to close database"))
		}
		c.db = nil
	}
	return errors.Join(errs...)
}
