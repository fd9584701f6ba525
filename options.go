package branchscope

import (
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/helixml/branchscope/application/service"
	"github.com/helixml/branchscope/internal/config"
	"github.com/helixml/branchscope/internal/metrics"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	dbURL           string
	dbPool          config.PoolConfig
	dataDir         string
	workspaceDir    string
	logger          *slog.Logger
	metrics         *metrics.Metrics
	cacheCapacity   uint64
	remoteTTL       time.Duration
	gitBinary       string
	analyzerBinary  string
	analyzerArgs    []string
	trackStatistics bool
	streamInterval  time.Duration
	awaitSamples    int
	awaitEvery      time.Duration
	awaitBound      time.Duration
	retry           service.RetryPolicy
	closers         []io.Closer
}

// newClientConfig creates a clientConfig with defaults from internal/config.
func newClientConfig() *clientConfig {
	analyzer := config.NewAnalyzerConfig()
	return &clientConfig{
		dbPool:          config.NewPoolConfig(),
		dataDir:         config.DefaultDataDir(),
		cacheCapacity:   config.DefaultCacheCapacity,
		remoteTTL:       config.DefaultRemoteCacheTTL,
		gitBinary:       config.DefaultGitBinary,
		analyzerBinary:  analyzer.Binary(),
		analyzerArgs:    analyzer.Args(),
		trackStatistics: true,
		streamInterval:  config.DefaultStreamInterval,
		awaitSamples:    service.DefaultAwaitSamples,
		awaitEvery:      service.DefaultAwaitEvery,
		awaitBound:      service.DefaultAwaitBound,
		retry:           service.DefaultRetryPolicy(),
	}
}

func (c *clientConfig) workspaceRoot() string {
	if c.workspaceDir != "" {
		return c.workspaceDir
	}
	return filepath.Join(c.dataDir, config.DefaultWorkspaceSubdir)
}

// Option configures the Client.
type Option func(*clientConfig)

// WithSQLite stores analyses in a SQLite file.
func WithSQLite(path string) Option {
	return func(c *clientConfig) {
		c.dbURL = "sqlite:///" + path
	}
}

// WithPostgres stores analyses in PostgreSQL.
func WithPostgres(dsn string) Option {
	return func(c *clientConfig) {
		c.dbURL = dsn
	}
}

// WithDatabaseURL sets the database from a sqlite:/// or postgres:// URL.
func WithDatabaseURL(url string) Option {
	return func(c *clientConfig) {
		c.dbURL = url
	}
}

// WithDatabasePool sizes the database connection pool. SQLite keeps a
// single open connection whatever maxOpen says.
func WithDatabasePool(maxOpen, maxIdle int, maxLifetime time.Duration) Option {
	return func(c *clientConfig) {
		c.dbPool = c.dbPool.
			WithMaxOpen(maxOpen).
			WithMaxIdle(maxIdle).
			WithMaxLifetime(maxLifetime)
	}
}

// WithConfig applies an application configuration loaded from the
// environment.
func WithConfig(cfg config.AppConfig) Option {
	return func(c *clientConfig) {
		retry := cfg.PersistenceRetry()
		c.dbURL = cfg.DBURL()
		c.dbPool = cfg.DBPool()
		c.dataDir = cfg.DataDir()
		c.workspaceDir = cfg.WorkspaceDir()
		c.cacheCapacity = cfg.CacheCapacity()
		c.remoteTTL = cfg.RemoteCacheTTL()
		c.gitBinary = cfg.GitBinary()
		c.analyzerBinary = cfg.Analyzer().Binary()
		c.analyzerArgs = cfg.Analyzer().Args()
		c.trackStatistics = cfg.TrackStatistics()
		c.streamInterval = cfg.StreamInterval()
		c.retry = service.RetryPolicy{
			MaxRetries:   uint(retry.MaxRetries()),
			InitialDelay: retry.InitialDelay(),
			MaxDelay:     retry.MaxDelay(),
		}
	}
}

// WithDataDir sets the data directory for materialized branches.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.dataDir = dir
	}
}

// WithWorkspaceDir sets where branches are materialized.
// If not specified, defaults to {dataDir}/repos. The directory is emptied
// when the client starts.
func WithWorkspaceDir(dir string) Option {
	return func(c *clientConfig) {
		c.workspaceDir = dir
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithMetrics shares a metrics registry with the client.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *clientConfig) {
		c.metrics = m
	}
}

// WithCacheCapacity sets the byte budget for cached default-branch trees.
func WithCacheCapacity(bytes uint64) Option {
	return func(c *clientConfig) {
		c.cacheCapacity = bytes
	}
}

// WithRemoteCacheTTL sets how long ls-remote answers are reused.
func WithRemoteCacheTTL(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.remoteTTL = d
		}
	}
}

// WithGitBinary sets the git executable.
func WithGitBinary(binary string) Option {
	return func(c *clientConfig) {
		if binary != "" {
			c.gitBinary = binary
		}
	}
}

// WithAnalyzer sets the report tool and the arguments placed before the
// directory.
func WithAnalyzer(binary string, args ...string) Option {
	return func(c *clientConfig) {
		if binary != "" {
			c.analyzerBinary = binary
		}
		c.analyzerArgs = args
	}
}

// WithTrackStatistics toggles recording a statistic per analysis.
func WithTrackStatistics(track bool) Option {
	return func(c *clientConfig) {
		c.trackStatistics = track
	}
}

// WithStreamInterval sets how often subscribers sample statuses.
func WithStreamInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.streamInterval = d
		}
	}
}

// WithAwait configures the bounded wait used by Await.
// Defaults to 5 samples one second apart within nine seconds.
func WithAwait(samples int, every, bound time.Duration) Option {
	return func(c *clientConfig) {
		c.awaitSamples = samples
		c.awaitEvery = every
		c.awaitBound = bound
	}
}

// WithRetryPolicy sets the backoff around persistence writes.
func WithRetryPolicy(p service.RetryPolicy) Option {
	return func(c *clientConfig) {
		c.retry = p
	}
}

// WithCloser registers a resource to be closed when the Client shuts down.
func WithCloser(closer io.Closer) Option {
	return func(c *clientConfig) {
		c.closers = append(c.closers, closer)
	}
}
