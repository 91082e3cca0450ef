package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	NATS      NATSConfig
	JWT       JWTConfig
	Log       LogConfig
	HTTP      HTTPConfig
	Outbox    OutboxConfig
	Storage   StorageConfig
	Telemetry TelemetryConfig
	Workflow  WorkflowConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string // silent, error, warn, info
	SlowThreshold   time.Duration
}

// RedisConfig holds Redis connection settings. An empty Host disables Redis.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	StepTTL  time.Duration
}

// NATSConfig holds the notification broker settings. An empty URL disables NATS.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
	Name          string
}

// JWTConfig holds JWT settings
type JWTConfig struct {
	Secret                string
	Issuer                string
	AccessTokenExpiration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxUploadSize    int64
	CORSAllowOrigins []string
	// RateLimitRequests per RateLimitWindow per tenant; zero disables rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// OutboxConfig holds outbox processor configuration
type OutboxConfig struct {
	Enabled          bool
	BatchSize        int
	PollInterval     time.Duration
	CleanupRetention time.Duration
}

// StorageConfig holds object storage settings for payment proofs.
// An empty Bucket selects the in-memory stub.
type StorageConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
	PresignExpiry   time.Duration
}

// TelemetryConfig holds OpenTelemetry and profiling configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsInterval   time.Duration
	ProfilingEnabled  bool
	ProfilingServer   string
}

// WorkflowConfig holds fund request workflow settings
type WorkflowConfig struct {
	RetryOnConflict bool
	DefaultLanguage string
}

// Load loads configuration from an optional TOML file and environment variables.
// Environment variables use the FUNDFLOW_ prefix, e.g. FUNDFLOW_DATABASE_PASSWORD.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/fundflow")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("FUNDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := fromViper(v)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fundflow")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "fundflow")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.slow_threshold", 200*time.Millisecond)

	v.SetDefault("redis.host", "")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.step_ttl", 5*time.Minute)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "fundflow")
	v.SetDefault("nats.name", "fundflow-outbox")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.issuer", "fundflow")
	v.SetDefault("jwt.access_token_expiration", 15*time.Minute)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)
	v.SetDefault("http.max_upload_size", 10<<20)
	v.SetDefault("http.cors_allow_origins", []string{"*"})
	v.SetDefault("http.rate_limit_requests", 300)
	v.SetDefault("http.rate_limit_window", time.Minute)

	v.SetDefault("outbox.enabled", true)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("outbox.poll_interval", 2*time.Second)
	v.SetDefault("outbox.cleanup_retention", 7*24*time.Hour)

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.presign_expiry", 15*time.Minute)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "fundflow")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.metrics_interval", 30*time.Second)
	v.SetDefault("telemetry.profiling_enabled", false)
	v.SetDefault("telemetry.profiling_server", "http://localhost:4040")

	v.SetDefault("workflow.retry_on_conflict", true)
	v.SetDefault("workflow.default_language", "fr")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			StepTTL:  v.GetDuration("redis.step_ttl"),
		},
		NATS: NATSConfig{
			URL:           v.GetString("nats.url"),
			SubjectPrefix: v.GetString("nats.subject_prefix"),
			Name:          v.GetString("nats.name"),
		},
		JWT: JWTConfig{
			Secret:                v.GetString("jwt.secret"),
			Issuer:                v.GetString("jwt.issuer"),
			AccessTokenExpiration: v.GetDuration("jwt.access_token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:       v.GetDuration("http.read_timeout"),
			WriteTimeout:      v.GetDuration("http.write_timeout"),
			IdleTimeout:       v.GetDuration("http.idle_timeout"),
			MaxUploadSize:     v.GetInt64("http.max_upload_size"),
			CORSAllowOrigins:  v.GetStringSlice("http.cors_allow_origins"),
			RateLimitRequests: v.GetInt("http.rate_limit_requests"),
			RateLimitWindow:   v.GetDuration("http.rate_limit_window"),
		},
		Outbox: OutboxConfig{
			Enabled:          v.GetBool("outbox.enabled"),
			BatchSize:        v.GetInt("outbox.batch_size"),
			PollInterval:     v.GetDuration("outbox.poll_interval"),
			CleanupRetention: v.GetDuration("outbox.cleanup_retention"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
			PresignExpiry:   v.GetDuration("storage.presign_expiry"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			ProfilingEnabled:  v.GetBool("telemetry.profiling_enabled"),
			ProfilingServer:   v.GetString("telemetry.profiling_server"),
		},
		Workflow: WorkflowConfig{
			RetryOnConflict: v.GetBool("workflow.retry_on_conflict"),
			DefaultLanguage: v.GetString("workflow.default_language"),
		},
	}
}

func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}
	if c.Outbox.BatchSize <= 0 {
		return fmt.Errorf("outbox.batch_size must be positive")
	}
	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	if c.IsProduction() {
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		for _, origin := range c.HTTP.CORSAllowOrigins {
			if origin == "*" {
				return fmt.Errorf("http.cors_allow_origins cannot be '*' in production")
			}
		}
	}
	return nil
}

// IsProduction reports whether the app runs in the production environment
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// DSN returns the PostgreSQL connection URL
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis host:port address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
