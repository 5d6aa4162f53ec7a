package config

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	API         APIConfig         `mapstructure:"api"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Dispatch    DispatchConfig    `mapstructure:"dispatch"`
	Transport   TransportConfig   `mapstructure:"transport"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Snapshots   SnapshotsConfig   `mapstructure:"snapshots"`
	Stream      StreamConfig      `mapstructure:"stream"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout bounds graceful shutdown; open streams are cut after it.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection configuration. An empty URL
// runs every store in memory.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig enables the cross-process dispatch lock and event relay when
// Addr is set.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
	LockRetry    time.Duration `mapstructure:"lock_retry"`
	EventChannel string        `mapstructure:"event_channel"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxFiles   int    `mapstructure:"max_files"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AuthConfig holds access token validation settings.
type AuthConfig struct {
	SigningKey        string        `mapstructure:"signing_key"`
	AccessTokenExpiry time.Duration `mapstructure:"access_token_expiry"`
	Issuer            string        `mapstructure:"issuer"`
	Audience          string        `mapstructure:"audience"`
}

// DispatchConfig holds quota and batch limits.
type DispatchConfig struct {
	DefaultDailyQuota  int    `mapstructure:"default_daily_quota"`
	MaxAttachmentBytes int64  `mapstructure:"max_attachment_bytes"`
	Timezone           string `mapstructure:"timezone"`
	FromFallback       string `mapstructure:"from_fallback"`
}

// TransportConfig holds defaults applied beneath every user credential.
type TransportConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	HeloName           string        `mapstructure:"helo_name"`
	SendGridEndpoint   string        `mapstructure:"sendgrid_endpoint"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// CredentialsConfig holds the secret sealing key and resolver cache TTL.
type CredentialsConfig struct {
	SealingKey string        `mapstructure:"sealing_key"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// SnapshotsConfig selects the attachment snapshot backend.
type SnapshotsConfig struct {
	Type       string `mapstructure:"type"`
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// StreamConfig holds live event stream settings.
type StreamConfig struct {
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	Buffer    int           `mapstructure:"buffer"`
}

// Location resolves Timezone, falling back to the process local zone.
func (d DispatchConfig) Location() (*time.Location, error) {
	if d.Timezone == "" || d.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(d.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", d.Timezone, err)
	}
	return loc, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 15*time.Second)
	// send requests wait on the whole batch
	v.SetDefault("api.write_timeout", 0)
	v.SetDefault("api.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.url", "")
	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.lock_ttl", 2*time.Minute)
	v.SetDefault("redis.lock_retry", 50*time.Millisecond)
	v.SetDefault("redis.event_channel", "request-mailer:delivery-events")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_files", 5)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.access_token_expiry", 15*time.Minute)
	v.SetDefault("auth.issuer", "")
	v.SetDefault("auth.audience", "")

	v.SetDefault("dispatch.default_daily_quota", 100)
	v.SetDefault("dispatch.max_attachment_bytes", 2<<20)
	v.SetDefault("dispatch.timezone", "Local")
	v.SetDefault("dispatch.from_fallback", "")

	v.SetDefault("transport.timeout", 30*time.Second)
	v.SetDefault("transport.helo_name", "localhost")
	v.SetDefault("transport.sendgrid_endpoint", "")
	v.SetDefault("transport.insecure_skip_verify", false)

	v.SetDefault("credentials.sealing_key", "")
	v.SetDefault("credentials.cache_ttl", 5*time.Minute)

	v.SetDefault("snapshots.type", "local")
	v.SetDefault("snapshots.path", "/data/snapshots")
	v.SetDefault("snapshots.s3_bucket", "")
	v.SetDefault("snapshots.s3_prefix", "")
	v.SetDefault("snapshots.s3_endpoint", "")
	v.SetDefault("snapshots.s3_region", "us-east-1")

	v.SetDefault("stream.heartbeat", 25*time.Second)
	v.SetDefault("stream.buffer", 64)
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix REQUEST_MAILER_ override file values.
// For example, REQUEST_MAILER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("REQUEST_MAILER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c *Config) Validate() error {
	if c.Auth.SigningKey == "" {
		return fmt.Errorf("auth.signing_key is required")
	}
	if c.Database.URL != "" && c.Credentials.SealingKey == "" {
		return fmt.Errorf("credentials.sealing_key is required with a database")
	}
	if c.Dispatch.DefaultDailyQuota < 0 || c.Dispatch.DefaultDailyQuota > math.MaxInt32 {
		return fmt.Errorf("dispatch.default_daily_quota must be between 0 and %d", math.MaxInt32)
	}
	if _, err := c.Dispatch.Location(); err != nil {
		return err
	}
	return nil
}
