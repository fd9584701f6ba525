package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/kelseyhightower/envconfig"
)

// ByteSize is a byte count parsed from a human-readable value such as
// "2GB" or "512 MiB".
type ByteSize uint64

// Decode implements envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	n, err := humanize.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("parse byte size %q: %w", value, err)
	}
	*b = ByteSize(n)
	return nil
}

// EnvConfig holds all environment-based configuration. Variables carry no
// prefix.
type EnvConfig struct {
	// Env: HOST (default: 0.0.0.0)
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// Env: PORT (default: 8080)
	Port int `envconfig:"PORT" default:"8080"`

	// DataDir holds the database file and materialized branches.
	// Env: DATA_DIR (default: ~/.branchscope)
	DataDir string `envconfig:"DATA_DIR"`

	// DBURL is the database connection URL.
	// Env: DB_URL (default: sqlite:///{data_dir}/branchscope.db)
	DBURL string `envconfig:"DB_URL"`

	// Pool sizes the database connection pool.
	Pool PoolEnv `envconfig:"DB"`

	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is pretty or json.
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	// CacheCapacity is the total size of cached default-branch checkouts.
	// Env: CACHE_CAPACITY (default: 2GB)
	CacheCapacity ByteSize `envconfig:"CACHE_CAPACITY" default:"2GB"`

	// Env: REMOTE_CACHE_TTL_SECONDS (default: 60)
	RemoteCacheTTLSeconds float64 `envconfig:"REMOTE_CACHE_TTL_SECONDS" default:"60"`

	// Env: GIT_BINARY (default: git)
	GitBinary string `envconfig:"GIT_BINARY" default:"git"`

	// Env: ANALYZER_BINARY (default: scc)
	AnalyzerBinary string `envconfig:"ANALYZER_BINARY" default:"scc"`

	// AnalyzerArgs are whitespace separated and precede the directory.
	// Env: ANALYZER_ARGS (default: --ci)
	AnalyzerArgs string `envconfig:"ANALYZER_ARGS" default:"--ci"`

	// Env: TRACK_STATISTICS (default: true)
	TrackStatistics bool `envconfig:"TRACK_STATISTICS" default:"true"`

	// StreamIntervalMS is how often subscribers poll for status changes.
	// Env: STREAM_INTERVAL_MS (default: 500)
	StreamIntervalMS int `envconfig:"STREAM_INTERVAL_MS" default:"500"`

	// Persistence configures retries around database writes.
	Persistence PersistenceEnv `envconfig:"PERSISTENCE"`

	// CORSOrigins is a comma-separated list of allowed origins.
	// Env: CORS_ORIGINS
	CORSOrigins string `envconfig:"CORS_ORIGINS"`
}

// PersistenceEnv holds the retry settings for persistence writes.
type PersistenceEnv struct {
	// Env: PERSISTENCE_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// Env: PERSISTENCE_INITIAL_DELAY_MS (default: 100)
	InitialDelayMS int `envconfig:"INITIAL_DELAY_MS" default:"100"`
}

// PoolEnv holds the database connection pool settings.
type PoolEnv struct {
	// Env: DB_MAX_OPEN_CONNS (default: 10)
	MaxOpenConns int `envconfig:"MAX_OPEN_CONNS" default:"10"`

	// Env: DB_MAX_IDLE_CONNS (default: 5)
	MaxIdleConns int `envconfig:"MAX_IDLE_CONNS" default:"5"`

	// Env: DB_CONN_MAX_LIFETIME_SECONDS (default: 1800)
	ConnMaxLifetimeSeconds int `envconfig:"CONN_MAX_LIFETIME_SECONDS" default:"1800"`
}

// ToPoolConfig converts PoolEnv to PoolConfig.
func (p PoolEnv) ToPoolConfig() PoolConfig {
	return NewPoolConfig().
		WithMaxOpen(p.MaxOpenConns).
		WithMaxIdle(p.MaxIdleConns).
		WithMaxLifetime(time.Duration(p.ConnMaxLifetimeSeconds) * time.Second)
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// Normalize returns a copy with legacy or sloppy values cleaned up.
func (e EnvConfig) Normalize() EnvConfig {
	e.DBURL = normalizeDBURL(strings.TrimSpace(e.DBURL))
	e.LogFormat = strings.ToLower(strings.TrimSpace(e.LogFormat))
	e.GitBinary = strings.TrimSpace(e.GitBinary)
	e.AnalyzerBinary = strings.TrimSpace(e.AnalyzerBinary)
	return e
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() AppConfig {
	cfg := NewAppConfig()

	if e.Host != "" {
		cfg = applyOption(cfg, WithHost(e.Host))
	}
	if e.Port != 0 {
		cfg = applyOption(cfg, WithPort(e.Port))
	}
	if e.DataDir != "" {
		cfg = applyOption(cfg, WithDataDir(e.DataDir))
	}
	if e.DBURL != "" {
		cfg = applyOption(cfg, WithDBURL(e.DBURL))
	}
	cfg = applyOption(cfg, WithDBPool(e.Pool.ToPoolConfig()))
	if e.LogLevel != "" {
		cfg = applyOption(cfg, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		cfg = applyOption(cfg, WithLogFormat(parseLogFormat(e.LogFormat)))
	}
	if e.CacheCapacity > 0 {
		cfg = applyOption(cfg, WithCacheCapacity(uint64(e.CacheCapacity)))
	}
	cfg = applyOption(cfg, WithRemoteCacheTTL(time.Duration(e.RemoteCacheTTLSeconds*float64(time.Second))))
	if e.GitBinary != "" {
		cfg = applyOption(cfg, WithGitBinary(e.GitBinary))
	}

	analyzer := cfg.Analyzer()
	if e.AnalyzerBinary != "" {
		analyzer = analyzer.WithBinary(e.AnalyzerBinary)
	}
	analyzer = analyzer.WithArgs(ParseArgs(e.AnalyzerArgs))
	cfg = applyOption(cfg, WithAnalyzer(analyzer))

	cfg = applyOption(cfg, WithTrackStatistics(e.TrackStatistics))
	cfg = applyOption(cfg, WithStreamInterval(time.Duration(e.StreamIntervalMS)*time.Millisecond))
	cfg = applyOption(cfg, WithPersistenceRetry(e.Persistence.ToRetryConfig()))

	if e.CORSOrigins != "" {
		cfg = applyOption(cfg, WithCORSOrigins(ParseList(e.CORSOrigins)))
	}

	return cfg
}

// ToRetryConfig converts PersistenceEnv to RetryConfig.
func (p PersistenceEnv) ToRetryConfig() RetryConfig {
	return NewRetryConfig().
		WithMaxRetries(p.MaxRetries).
		WithInitialDelay(time.Duration(p.InitialDelayMS) * time.Millisecond)
}

func applyOption(cfg AppConfig, opt AppConfigOption) AppConfig {
	opt(&cfg)
	return cfg
}

func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

// normalizeDBURL strips driver suffixes such as postgresql+asyncpg:// and
// maps sqlite://relative paths onto the sqlite:/// form.
func normalizeDBURL(raw string) string {
	if raw == "" {
		return raw
	}
	normalized := raw
	if plus := strings.Index(raw, "+"); plus >= 0 {
		if sep := strings.Index(raw, "://"); sep > plus {
			normalized = raw[:plus] + raw[sep:]
		}
	}
	if strings.HasPrefix(normalized, "sqlite://") && !strings.HasPrefix(normalized, "sqlite:///") {
		normalized = "sqlite:///" + strings.TrimPrefix(normalized, "sqlite://")
	}
	if normalized != raw {
		slog.Warn("normalized DB_URL", "original", raw, "normalized", normalized)
	}
	return normalized
}
