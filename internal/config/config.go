// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Default configuration values.
const (
	DefaultHost                       = "0.0.0.0"
	DefaultPort                       = 8080
	DefaultLogLevel                   = "INFO"
	DefaultWorkspaceSubdir            = "repos"
	DefaultDatabaseFile               = "branchscope.db"
	DefaultCacheCapacity       uint64 = 2_000_000_000
	DefaultRemoteCacheTTL             = 60 * time.Second
	DefaultGitBinary                  = "git"
	DefaultAnalyzerBinary             = "scc"
	DefaultAnalyzerArgs               = "--ci"
	DefaultStreamInterval             = 500 * time.Millisecond
	DefaultPersistenceMaxRetries      = 5
	DefaultPersistenceInitialDelay    = 100 * time.Millisecond
	DefaultPersistenceMaxDelay        = 5 * time.Second
	DefaultDBMaxOpenConns             = 10
	DefaultDBMaxIdleConns             = 5
	DefaultDBConnMaxLifetime          = 30 * time.Minute
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// AnalyzerConfig configures the external report tool.
type AnalyzerConfig struct {
	binary string
	args   []string
}

// NewAnalyzerConfig creates an AnalyzerConfig with defaults.
func NewAnalyzerConfig() AnalyzerConfig {
	return AnalyzerConfig{
		binary: DefaultAnalyzerBinary,
		args:   ParseArgs(DefaultAnalyzerArgs),
	}
}

// Binary returns the executable name or path.
func (a AnalyzerConfig) Binary() string { return a.binary }

// Args returns the arguments passed before the directory.
func (a AnalyzerConfig) Args() []string {
	out := make([]string, len(a.args))
	copy(out, a.args)
	return out
}

// WithBinary returns a copy with another executable.
func (a AnalyzerConfig) WithBinary(binary string) AnalyzerConfig {
	a.binary = binary
	return a
}

// WithArgs returns a copy with other arguments.
func (a AnalyzerConfig) WithArgs(args []string) AnalyzerConfig {
	a.args = make([]string, len(args))
	copy(a.args, args)
	return a
}

// RetryConfig bounds the exponential backoff around persistence writes.
type RetryConfig struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewRetryConfig creates a RetryConfig with defaults.
func NewRetryConfig() RetryConfig {
	return RetryConfig{
		maxRetries:   DefaultPersistenceMaxRetries,
		initialDelay: DefaultPersistenceInitialDelay,
		maxDelay:     DefaultPersistenceMaxDelay,
	}
}

// MaxRetries returns the number of attempts.
func (r RetryConfig) MaxRetries() int { return r.maxRetries }

// InitialDelay returns the first backoff interval.
func (r RetryConfig) InitialDelay() time.Duration { return r.initialDelay }

// MaxDelay returns the largest backoff interval.
func (r RetryConfig) MaxDelay() time.Duration { return r.maxDelay }

// WithMaxRetries returns a copy with another attempt count.
func (r RetryConfig) WithMaxRetries(n int) RetryConfig {
	if n > 0 {
		r.maxRetries = n
	}
	return r
}

// WithInitialDelay returns a copy with another first interval.
func (r RetryConfig) WithInitialDelay(d time.Duration) RetryConfig {
	if d > 0 {
		r.initialDelay = d
	}
	return r
}

// PoolConfig sizes the database connection pool. SQLite ignores MaxOpen
// and keeps a single connection.
type PoolConfig struct {
	maxOpen     int
	maxIdle     int
	maxLifetime time.Duration
}

// NewPoolConfig creates a PoolConfig with defaults.
func NewPoolConfig() PoolConfig {
	return PoolConfig{
		maxOpen:     DefaultDBMaxOpenConns,
		maxIdle:     DefaultDBMaxIdleConns,
		maxLifetime: DefaultDBConnMaxLifetime,
	}
}

// MaxOpen returns the open connection limit.
func (p PoolConfig) MaxOpen() int { return p.maxOpen }

// MaxIdle returns the idle connection limit.
func (p PoolConfig) MaxIdle() int { return p.maxIdle }

// MaxLifetime returns how long a connection may be reused.
func (p PoolConfig) MaxLifetime() time.Duration { return p.maxLifetime }

// WithMaxOpen returns a copy with another open connection limit.
func (p PoolConfig) WithMaxOpen(n int) PoolConfig {
	if n > 0 {
		p.maxOpen = n
	}
	return p
}

// WithMaxIdle returns a copy with another idle connection limit.
func (p PoolConfig) WithMaxIdle(n int) PoolConfig {
	if n >= 0 {
		p.maxIdle = n
	}
	return p
}

// WithMaxLifetime returns a copy with another connection lifetime.
func (p PoolConfig) WithMaxLifetime(d time.Duration) PoolConfig {
	if d > 0 {
		p.maxLifetime = d
	}
	return p
}

// AppConfig holds the main application configuration.
type AppConfig struct {
	host             string
	port             int
	dataDir          string
	dbURL            string
	dbPool           PoolConfig
	logLevel         string
	logFormat        LogFormat
	cacheCapacity    uint64
	remoteCacheTTL   time.Duration
	gitBinary        string
	analyzer         AnalyzerConfig
	trackStatistics  bool
	streamInterval   time.Duration
	persistenceRetry RetryConfig
	corsOrigins      []string
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".branchscope"
	}
	return filepath.Join(home, ".branchscope")
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() AppConfig {
	dataDir := DefaultDataDir()
	return AppConfig{
		host:             DefaultHost,
		port:             DefaultPort,
		dataDir:          dataDir,
		dbURL:            "sqlite:///" + filepath.Join(dataDir, DefaultDatabaseFile),
		dbPool:           NewPoolConfig(),
		logLevel:         DefaultLogLevel,
		logFormat:        LogFormatPretty,
		cacheCapacity:    DefaultCacheCapacity,
		remoteCacheTTL:   DefaultRemoteCacheTTL,
		gitBinary:        DefaultGitBinary,
		analyzer:         NewAnalyzerConfig(),
		trackStatistics:  true,
		streamInterval:   DefaultStreamInterval,
		persistenceRetry: NewRetryConfig(),
		corsOrigins:      []string{},
	}
}

// Host returns the server host to bind to.
func (c AppConfig) Host() string { return c.host }

// Port returns the server port to listen on.
func (c AppConfig) Port() int { return c.port }

// Addr returns the combined host:port address.
func (c AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.port)
}

// DataDir returns the data directory path.
func (c AppConfig) DataDir() string { return c.dataDir }

// DBURL returns the database connection URL.
func (c AppConfig) DBURL() string { return c.dbURL }

// DBPool returns the connection pool config.
func (c AppConfig) DBPool() PoolConfig { return c.dbPool }

// LogLevel returns the log level.
func (c AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c AppConfig) LogFormat() LogFormat { return c.logFormat }

// CacheCapacity returns the disk cache budget in bytes.
func (c AppConfig) CacheCapacity() uint64 { return c.cacheCapacity }

// RemoteCacheTTL returns how long ls-remote results are reused.
func (c AppConfig) RemoteCacheTTL() time.Duration { return c.remoteCacheTTL }

// GitBinary returns the git executable.
func (c AppConfig) GitBinary() string { return c.gitBinary }

// Analyzer returns the analyzer config.
func (c AppConfig) Analyzer() AnalyzerConfig { return c.analyzer }

// TrackStatistics returns whether usage statistics are recorded.
func (c AppConfig) TrackStatistics() bool { return c.trackStatistics }

// StreamInterval returns the status polling interval for subscribers.
func (c AppConfig) StreamInterval() time.Duration { return c.streamInterval }

// PersistenceRetry returns the persistence retry config.
func (c AppConfig) PersistenceRetry() RetryConfig { return c.persistenceRetry }

// CORSOrigins returns the allowed CORS origins.
func (c AppConfig) CORSOrigins() []string {
	out := make([]string, len(c.corsOrigins))
	copy(out, c.corsOrigins)
	return out
}

// WorkspaceDir returns where branches are materialized.
func (c AppConfig) WorkspaceDir() string {
	return filepath.Join(c.dataDir, DefaultWorkspaceSubdir)
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c AppConfig) EnsureDataDir() error {
	return os.MkdirAll(c.dataDir, 0o755)
}

// EnsureWorkspaceDir creates the workspace directory if it doesn't exist.
func (c AppConfig) EnsureWorkspaceDir() error {
	return os.MkdirAll(c.WorkspaceDir(), 0o755)
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithHost sets the server host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithPort sets the server port.
func WithPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.port = port }
}

// WithDataDir sets the data directory. A default SQLite URL follows it.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) {
		c.dataDir = dir
		if c.dbURL == "" || strings.HasSuffix(c.dbURL, DefaultDatabaseFile) {
			c.dbURL = "sqlite:///" + filepath.Join(dir, DefaultDatabaseFile)
		}
	}
}

// WithDBURL sets the database URL.
func WithDBURL(url string) AppConfigOption {
	return func(c *AppConfig) { c.dbURL = url }
}

// WithDBPool sets the connection pool config.
func WithDBPool(p PoolConfig) AppConfigOption {
	return func(c *AppConfig) { c.dbPool = p }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// WithCacheCapacity sets the disk cache budget in bytes.
func WithCacheCapacity(bytes uint64) AppConfigOption {
	return func(c *AppConfig) { c.cacheCapacity = bytes }
}

// WithRemoteCacheTTL sets the ls-remote cache lifetime.
func WithRemoteCacheTTL(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.remoteCacheTTL = d
		}
	}
}

// WithGitBinary sets the git executable.
func WithGitBinary(binary string) AppConfigOption {
	return func(c *AppConfig) { c.gitBinary = binary }
}

// WithAnalyzer sets the analyzer config.
func WithAnalyzer(a AnalyzerConfig) AppConfigOption {
	return func(c *AppConfig) { c.analyzer = a }
}

// WithTrackStatistics toggles usage statistics.
func WithTrackStatistics(track bool) AppConfigOption {
	return func(c *AppConfig) { c.trackStatistics = track }
}

// WithStreamInterval sets the subscriber polling interval.
func WithStreamInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.streamInterval = d
		}
	}
}

// WithPersistenceRetry sets the persistence retry config.
func WithPersistenceRetry(r RetryConfig) AppConfigOption {
	return func(c *AppConfig) { c.persistenceRetry = r }
}

// WithCORSOrigins sets the allowed CORS origins.
func WithCORSOrigins(origins []string) AppConfigOption {
	return func(c *AppConfig) {
		c.corsOrigins = make([]string, len(origins))
		copy(c.corsOrigins, origins)
	}
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) AppConfig {
	return NewAppConfig().Apply(opts...)
}

// Apply returns a new AppConfig with the given options applied.
func (c AppConfig) Apply(opts ...AppConfigOption) AppConfig {
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// LogAttrs returns slog attributes describing the configuration.
func (c AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("data_dir", c.dataDir),
		slog.String("workspace_dir", c.WorkspaceDir()),
		slog.String("log_level", c.logLevel),
		slog.String("db_url", c.maskedDBURL()),
		slog.Int("db_max_open_conns", c.dbPool.MaxOpen()),
		slog.Int("db_max_idle_conns", c.dbPool.MaxIdle()),
		slog.Duration("db_conn_max_lifetime", c.dbPool.MaxLifetime()),
		slog.String("cache_capacity", humanize.Bytes(c.cacheCapacity)),
		slog.Duration("remote_cache_ttl", c.remoteCacheTTL),
		slog.String("git", c.gitBinary),
		slog.String("analyzer", strings.TrimSpace(c.analyzer.Binary()+" "+strings.Join(c.analyzer.Args(), " "))),
		slog.Bool("track_statistics", c.trackStatistics),
		slog.Int("persistence_max_retries", c.persistenceRetry.MaxRetries()),
	}
}

func (c AppConfig) maskedDBURL() string {
	if c.dbURL == "" {
		return "(default)"
	}
	if strings.HasPrefix(c.dbURL, "sqlite:") {
		return c.dbURL
	}
	return "postgres://***@***"
}

// ParseArgs splits a whitespace-separated argument list.
func ParseArgs(s string) []string {
	return strings.Fields(s)
}

// ParseList parses a comma-separated list, dropping empty items.
func ParseList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
