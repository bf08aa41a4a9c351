package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values for the server configuration.
const (
	DefaultGRPCPort            = 50051
	DefaultHTTPPort            = 8080
	DefaultLogLevel            = "info"
	DefaultLifeExpectancyYears = 75
	DefaultStorageDriver       = "memory"
	DefaultStoragePath         = "clientledger.db"
	DefaultCacheSize           = 256
	DefaultTokenTTL            = 24 * time.Hour
	DefaultIssuer              = "clientledger"
	DefaultAdminEmail          = "admin@challenge.com"
	DefaultNotifyWorkers       = 2
	DefaultNotifyQueueSize     = 100
	DefaultNotifyMaxAttempts   = 3
	DefaultSMTPPort            = 587
	DefaultStreamInterval      = 5 * time.Second
	DefaultArchiveDriver       = "none"
	DefaultArchivePath         = "archive"
)

// Config holds the server-side configuration parsed from the `server:` section
// of config.yaml.
type Config struct {
	Server ServerConfig `yaml:"server"`
}

// ServerConfig holds all server-side settings.
type ServerConfig struct {
	// GRPCPort is the port of the operations gRPC endpoint (default 50051).
	GRPCPort int `yaml:"grpc_port"`

	// HTTPPort is the port the REST API, WebSocket stream and /metrics listen on (default 8080).
	HTTPPort int `yaml:"http_port"`

	// LogLevel is one of: debug | info | warn | error. Applied again on hot reload.
	LogLevel string `yaml:"log_level"`

	// LifeExpectancyYears drives every customer projection. Read once at startup.
	LifeExpectancyYears int `yaml:"life_expectancy_years"`

	CORS    CORSConfig    `yaml:"cors"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	Auth    AuthConfig    `yaml:"auth"`
	Notify  NotifyConfig  `yaml:"notify"`
	Stream  StreamConfig  `yaml:"stream"`
	Archive ArchiveConfig `yaml:"archive"`
}

// CORSConfig lists the origins allowed to call the REST API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// StorageConfig selects the record store backend.
type StorageConfig struct {
	// Driver is one of: memory | sqlite | postgres.
	Driver string `yaml:"driver"`

	// Path is the SQLite database file. Used when Driver == "sqlite".
	Path string `yaml:"path"`

	// DSNEnv names the environment variable holding the Postgres DSN.
	DSNEnv string `yaml:"dsn_env"`
}

// DSN returns the Postgres connection string resolved from the environment.
func (s StorageConfig) DSN() string {
	return env(s.DSNEnv)
}

// CacheConfig sizes the customer read cache. Size 0 disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// AuthConfig controls token issuing and the bootstrap administrator.
type AuthConfig struct {
	// SecretEnv names the environment variable holding the base64 HMAC key.
	SecretEnv string `yaml:"secret_env"`

	// TokenTTL is the lifetime of issued tokens (default 24h).
	TokenTTL time.Duration `yaml:"token_ttl"`

	// Issuer is written to and required in the "iss" claim.
	Issuer string `yaml:"issuer"`

	Admin AdminConfig `yaml:"admin"`
}

// Secret decodes the signing key from the environment. A nil key with a nil
// error means no key is configured.
func (a AuthConfig) Secret() ([]byte, error) {
	raw := env(a.SecretEnv)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("server.auth.secret_env %s: not valid base64: %w", a.SecretEnv, err)
	}
	return key, nil
}

// AdminConfig describes the administrator seeded at startup.
type AdminConfig struct {
	Email string `yaml:"email"`

	// PasswordEnv names the environment variable holding the admin password.
	// When empty or unset the administrator is not seeded.
	PasswordEnv string `yaml:"password_env"`
}

// Password returns the admin password resolved from the environment.
func (a AdminConfig) Password() string {
	return env(a.PasswordEnv)
}

// NotifyConfig configures asynchronous notification delivery.
type NotifyConfig struct {
	Workers     int `yaml:"workers"`
	QueueSize   int `yaml:"queue_size"`
	MaxAttempts int `yaml:"max_attempts"`

	// AdminEmail receives the "customer created" and batch summary notifications.
	// Applied again on hot reload.
	AdminEmail string `yaml:"admin_email"`

	SMTP     SMTPConfig      `yaml:"smtp"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// SMTPConfig configures the email sink. An empty Host disables it.
type SMTPConfig struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	PasswordEnv string `yaml:"password_env"`
	From        string `yaml:"from"`
}

// Password returns the SMTP password resolved from the environment.
func (s SMTPConfig) Password() string {
	return env(s.PasswordEnv)
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	return env(w.URLEnv)
}

// StreamConfig controls the live KPI WebSocket stream.
type StreamConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ArchiveConfig selects where statistics snapshots are archived.
type ArchiveConfig struct {
	// Driver is one of: none | fs | s3.
	Driver string `yaml:"driver"`

	// Path is the root directory for the fs driver.
	Path string `yaml:"path"`

	S3 S3Config `yaml:"s3"`
}

// S3Config configures the s3 archive driver. Endpoint and PathStyle target
// S3-compatible stores such as MinIO.
type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	PathStyle bool   `yaml:"path_style"`

	// AccessKeyEnv and SecretKeyEnv name variables holding static
	// credentials. When unset the default AWS credential chain is used.
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
}

// Credentials returns the static key pair, or empty strings.
func (s S3Config) Credentials() (accessKey, secretKey string) {
	return env(s.AccessKeyEnv), env(s.SecretKeyEnv)
}

// Load reads and parses the config file at path, returning the server configuration.
// Missing fields are filled with sensible defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("server config: read %q: %w", path, err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("server config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("server config: %w", err)
	}

	return cfg, nil
}

// Default returns the configuration used when no config file is given.
func Default() *Config {
	return defaults()
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			GRPCPort:            DefaultGRPCPort,
			HTTPPort:            DefaultHTTPPort,
			LogLevel:            DefaultLogLevel,
			LifeExpectancyYears: DefaultLifeExpectancyYears,
			CORS:                CORSConfig{AllowedOrigins: []string{"*"}},
			Storage: StorageConfig{
				Driver: DefaultStorageDriver,
				Path:   DefaultStoragePath,
			},
			Cache: CacheConfig{Size: DefaultCacheSize},
			Auth: AuthConfig{
				TokenTTL: DefaultTokenTTL,
				Issuer:   DefaultIssuer,
				Admin:    AdminConfig{Email: DefaultAdminEmail},
			},
			Notify: NotifyConfig{
				Workers:     DefaultNotifyWorkers,
				QueueSize:   DefaultNotifyQueueSize,
				MaxAttempts: DefaultNotifyMaxAttempts,
				SMTP:        SMTPConfig{Port: DefaultSMTPPort},
			},
			Stream: StreamConfig{Interval: DefaultStreamInterval},
			Archive: ArchiveConfig{
				Driver: DefaultArchiveDriver,
				Path:   DefaultArchivePath,
			},
		},
	}
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	s := &cfg.Server
	if s.GRPCPort <= 0 || s.GRPCPort > 65535 {
		return fmt.Errorf("server.grpc_port %d is out of range [1, 65535]", s.GRPCPort)
	}
	if s.HTTPPort <= 0 || s.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", s.HTTPPort)
	}
	if _, err := ParseLevel(s.LogLevel); err != nil {
		return err
	}
	if s.LifeExpectancyYears <= 0 {
		return fmt.Errorf("server.life_expectancy_years must be positive, got %d", s.LifeExpectancyYears)
	}
	switch s.Storage.Driver {
	case "memory", "sqlite":
	case "postgres":
		if s.Storage.DSNEnv == "" {
			return fmt.Errorf("server.storage.dsn_env is required for the postgres driver")
		}
	default:
		return fmt.Errorf("server.storage.driver %q unknown: want memory|sqlite|postgres", s.Storage.Driver)
	}
	if s.Cache.Size < 0 {
		return fmt.Errorf("server.cache.size must not be negative")
	}
	if s.Auth.TokenTTL <= 0 {
		return fmt.Errorf("server.auth.token_ttl must be positive")
	}
	if s.Notify.Workers < 1 {
		return fmt.Errorf("server.notify.workers must be at least 1")
	}
	if s.Notify.QueueSize < 1 {
		return fmt.Errorf("server.notify.queue_size must be at least 1")
	}
	if s.Notify.MaxAttempts < 1 {
		return fmt.Errorf("server.notify.max_attempts must be at least 1")
	}
	for i, w := range s.Notify.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("server.notify.webhooks[%d].type %q unknown: want slack|teams|http", i, w.Type)
		}
	}
	if s.Stream.Interval <= 0 {
		return fmt.Errorf("server.stream.interval must be positive")
	}
	switch s.Archive.Driver {
	case "none", "fs":
	case "s3":
		if s.Archive.S3.Bucket == "" {
			return fmt.Errorf("server.archive.s3.bucket is required for the s3 driver")
		}
	default:
		return fmt.Errorf("server.archive.driver %q unknown: want none|fs|s3", s.Archive.Driver)
	}
	return nil
}

func env(name string) string {
	if name == "" {
		return ""
	}
	return os.Getenv(name)
}
