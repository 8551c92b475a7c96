package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	Cache        CacheConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Channel      ChannelConfig
	Classifier   ClassifierConfig
	Payments     PaymentsConfig
	Notification NotificationConfig
	Telemetry    TelemetryConfig
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// AppConfig holds application configuration
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string // postgres, sqlite
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	SQLitePath      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// CacheConfig selects where dedup records and sessions live
type CacheConfig struct {
	Backend            string        // memory, redis
	DedupTTL           time.Duration // retention window for inbound message ids
	SessionTTL         time.Duration // lifetime of a conversation session
	NotifyTTL          time.Duration // retention window for notified event ids
	CompactionInterval time.Duration // sweep interval for the in-memory stores
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string

	// CORSOrigins may read the public invoice view from a browser
	CORSOrigins      []string
	PublicRateLimit  int // lookups per client per PublicRateWindow
	PublicRateWindow time.Duration
}

// ChannelConfig holds the messaging channel settings
type ChannelConfig struct {
	Sender             string // cloud, log
	GraphBaseURL       string
	PhoneNumberID      string
	AccessToken        string
	VerifyToken        string
	AppSecret          string // enables X-Hub-Signature-256 verification when set
	DefaultCountryCode string
	SendTimeout        time.Duration
}

// ClassifierConfig holds the intent classifier settings
type ClassifierConfig struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	MinConfidence float64
	MaxContext    int // open-balance lines sent with each request
}

// PaymentsConfig holds payment provider webhook settings
type PaymentsConfig struct {
	WebhookSecret   string
	SignatureHeader string
}

// NotificationConfig holds fan-out settings
type NotificationConfig struct {
	QueueSize int
	Timeout   time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricsEnabled    bool
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool
	DBSlowQueryThresh time.Duration
}

// Load reads configuration from config.toml and TALLY_* environment variables
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TALLY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			SQLitePath:      v.GetString("database.sqlite_path"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Cache: CacheConfig{
			Backend:            v.GetString("cache.backend"),
			DedupTTL:           v.GetDuration("cache.dedup_ttl"),
			SessionTTL:         v.GetDuration("cache.session_ttl"),
			NotifyTTL:          v.GetDuration("cache.notify_ttl"),
			CompactionInterval: v.GetDuration("cache.compaction_interval"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes:   v.GetInt("http.max_header_bytes"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			TrustedProxies:   v.GetStringSlice("http.trusted_proxies"),
			CORSOrigins:      v.GetStringSlice("http.cors_origins"),
			PublicRateLimit:  v.GetInt("http.public_rate_limit"),
			PublicRateWindow: v.GetDuration("http.public_rate_window"),
		},
		Channel: ChannelConfig{
			Sender:             v.GetString("channel.sender"),
			GraphBaseURL:       v.GetString("channel.graph_base_url"),
			PhoneNumberID:      v.GetString("channel.phone_number_id"),
			AccessToken:        v.GetString("channel.access_token"),
			VerifyToken:        v.GetString("channel.verify_token"),
			AppSecret:          v.GetString("channel.app_secret"),
			DefaultCountryCode: v.GetString("channel.default_country_code"),
			SendTimeout:        v.GetDuration("channel.send_timeout"),
		},
		Classifier: ClassifierConfig{
			BaseURL:       v.GetString("classifier.base_url"),
			APIKey:        v.GetString("classifier.api_key"),
			Model:         v.GetString("classifier.model"),
			Timeout:       v.GetDuration("classifier.timeout"),
			MinConfidence: v.GetFloat64("classifier.min_confidence"),
			MaxContext:    v.GetInt("classifier.max_context"),
		},
		Payments: PaymentsConfig{
			WebhookSecret:   v.GetString("payments.webhook_secret"),
			SignatureHeader: v.GetString("payments.signature_header"),
		},
		Notification: NotificationConfig{
			QueueSize: v.GetInt("notification.queue_size"),
			Timeout:   v.GetDuration("notification.timeout"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsEnabled:    v.GetBool("telemetry.metrics_enabled"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
			DBSlowQueryThresh: v.GetDuration("telemetry.db_slow_query_threshold"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "tallyline-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "tallyline"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "tallyline.db"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}

	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = "memory"
	}
	if cfg.Cache.DedupTTL == 0 {
		cfg.Cache.DedupTTL = 10 * time.Minute
	}
	if cfg.Cache.SessionTTL == 0 {
		cfg.Cache.SessionTTL = 15 * time.Minute
	}
	if cfg.Cache.NotifyTTL == 0 {
		cfg.Cache.NotifyTTL = 24 * time.Hour
	}
	if cfg.Cache.CompactionInterval == 0 {
		cfg.Cache.CompactionInterval = 5 * time.Minute
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}

	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 30 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 30 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 120 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.PublicRateLimit == 0 {
		cfg.HTTP.PublicRateLimit = 60
	}
	if cfg.HTTP.PublicRateWindow == 0 {
		cfg.HTTP.PublicRateWindow = time.Minute
	}

	if cfg.Channel.Sender == "" {
		cfg.Channel.Sender = "log"
	}
	if cfg.Channel.GraphBaseURL == "" {
		cfg.Channel.GraphBaseURL = "https://graph.facebook.com/v21.0"
	}
	if cfg.Channel.DefaultCountryCode == "" {
		cfg.Channel.DefaultCountryCode = "234"
	}
	if cfg.Channel.SendTimeout == 0 {
		cfg.Channel.SendTimeout = 10 * time.Second
	}

	if cfg.Classifier.BaseURL == "" {
		cfg.Classifier.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o-mini"
	}
	if cfg.Classifier.Timeout == 0 {
		cfg.Classifier.Timeout = 8 * time.Second
	}
	if cfg.Classifier.MinConfidence == 0 {
		cfg.Classifier.MinConfidence = 0.35
	}
	if cfg.Classifier.MaxContext == 0 {
		cfg.Classifier.MaxContext = 10
	}

	if cfg.Payments.SignatureHeader == "" {
		cfg.Payments.SignatureHeader = "X-Paystack-Signature"
	}

	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 256
	}
	if cfg.Notification.Timeout == 0 {
		cfg.Notification.Timeout = 5 * time.Second
	}

	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "tallyline-backend"
	}
	if cfg.Telemetry.DBSlowQueryThresh == 0 {
		cfg.Telemetry.DBSlowQueryThresh = 200 * time.Millisecond
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("cache.backend must be memory or redis, got %q", c.Cache.Backend)
	}
	switch c.Channel.Sender {
	case "cloud", "log":
	default:
		return fmt.Errorf("channel.sender must be cloud or log, got %q", c.Channel.Sender)
	}
	if c.Channel.Sender == "cloud" && (c.Channel.AccessToken == "" || c.Channel.PhoneNumberID == "") {
		return fmt.Errorf("channel.access_token and channel.phone_number_id are required for the cloud sender")
	}
	if c.Classifier.MinConfidence < 0 || c.Classifier.MinConfidence > 1 {
		return fmt.Errorf("classifier.min_confidence must be between 0.0 and 1.0, got %f", c.Classifier.MinConfidence)
	}

	if c.App.Env == "production" {
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.Driver == "postgres" && c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.Payments.WebhookSecret == "" {
			return fmt.Errorf("payments.webhook_secret is required in production")
		}
		if c.Channel.AppSecret == "" {
			return fmt.Errorf("channel.app_secret is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}

	return nil
}

// DSN returns the postgres connection string with properly escaped values
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

// Addr returns host:port for the redis client
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
