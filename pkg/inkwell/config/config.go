// Package config loads application configuration from file, .env and environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret is only acceptable outside production
const DefaultJWTSecret = "inkwell-dev-secret-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	Env      string `mapstructure:"APP_ENV"`
	Port     string `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	DBDriver   string `mapstructure:"DB_DRIVER"`
	DBPath     string `mapstructure:"DB_PATH"`
	DBHost     string `mapstructure:"DB_HOST"`
	DBPort     string `mapstructure:"DB_PORT"`
	DBUser     string `mapstructure:"DB_USER"`
	DBPassword string `mapstructure:"DB_PASSWORD"`
	DBName     string `mapstructure:"DB_NAME"`
	DBSSLMode  string `mapstructure:"DB_SSLMODE"`

	JWTSecret     string `mapstructure:"JWT_SECRET"`
	TokenType     string `mapstructure:"TOKEN_TYPE"`
	TokenTTLHours int    `mapstructure:"TOKEN_TTL_HOURS"`

	MediaRoot            string `mapstructure:"MEDIA_ROOT"`
	MediaURL             string `mapstructure:"MEDIA_URL"`
	ImageMaxUploadSizeMB int    `mapstructure:"IMAGE_MAX_UPLOAD_MB"`
	ImageMaxPixels       int64  `mapstructure:"IMAGE_MAX_PIXELS"`

	RedisURL           string `mapstructure:"REDIS_URL"`
	RateLimitPerMinute int    `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	// TrustedProxies is a comma separated list of proxy IPs or CIDRs whose
	// X-Forwarded-For header is honoured. Empty trusts no proxy.
	TrustedProxies string `mapstructure:"TRUSTED_PROXIES"`

	TracingEnabled     bool   `mapstructure:"TRACING_ENABLED"`
	TracingServiceName string `mapstructure:"TRACING_SERVICE_NAME"`
}

// Token types accepted by TOKEN_TYPE
const (
	TokenTypeOpaque = "opaque"
	TokenTypeJWT    = "jwt"
)

// Database drivers accepted by DB_DRIVER
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var keys = map[string]interface{}{
	"APP_ENV":               "development",
	"PORT":                  "8000",
	"LOG_LEVEL":             "info",
	"DB_DRIVER":             DriverSQLite,
	"DB_PATH":               "inkwell.db",
	"DB_HOST":               "localhost",
	"DB_PORT":               "5432",
	"DB_USER":               "inkwell",
	"DB_PASSWORD":           "",
	"DB_NAME":               "inkwell",
	"DB_SSLMODE":            "disable",
	"JWT_SECRET":            DefaultJWTSecret,
	"TOKEN_TYPE":            TokenTypeOpaque,
	"TOKEN_TTL_HOURS":       24,
	"MEDIA_ROOT":            "media",
	"MEDIA_URL":             "/media",
	"IMAGE_MAX_UPLOAD_MB":   10,
	"IMAGE_MAX_PIXELS":      40_000_000,
	"REDIS_URL":             "",
	"RATE_LIMIT_PER_MINUTE": 20,
	"TRUSTED_PROXIES":       "",
	"TRACING_ENABLED":       false,
	"TRACING_SERVICE_NAME":  "inkwell",
}

// Load reads configuration from an optional config file, a .env file and the
// environment, in increasing order of precedence. An empty path searches for
// config.yml in the working directory.
func Load(path string) (*Config, error) {
	// A missing .env file is fine
	_ = godotenv.Load()

	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yml")
	}

	for key, def := range keys {
		v.SetDefault(key, def)
		// AutomaticEnv only covers keys viper already knows about when unmarshalling
		_ = v.BindEnv(key)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.TokenType = strings.ToLower(strings.TrimSpace(c.TokenType))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.MediaURL = "/" + strings.Trim(c.MediaURL, "/")
}

// IsProduction reports whether APP_ENV names a production environment
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return errors.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return errors.New("DB_HOST and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.DBDriver)
	}
	switch c.TokenType {
	case TokenTypeOpaque, TokenTypeJWT:
	default:
		return fmt.Errorf("unknown TOKEN_TYPE %q", c.TokenType)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.TokenTTLHours <= 0 {
		return errors.New("TOKEN_TTL_HOURS must be positive")
	}
	if c.ImageMaxUploadSizeMB <= 0 {
		return errors.New("IMAGE_MAX_UPLOAD_MB must be positive")
	}
	if c.ImageMaxPixels <= 0 {
		return errors.New("IMAGE_MAX_PIXELS must be positive")
	}
	if c.MediaRoot == "" {
		return errors.New("MEDIA_ROOT is required")
	}
	if c.RateLimitPerMinute < 0 {
		return errors.New("RATE_LIMIT_PER_MINUTE must not be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == DefaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBDriver == DriverPostgres && c.DBSSLMode == "disable" {
			slog.Warn("DB_SSLMODE is 'disable' in production")
		}
	}

	return nil
}

// PostgresDSN builds the connection string for the postgres driver
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// TrustedProxyList splits TRUSTED_PROXIES into entries for gin. Nil means
// the client address is always the socket peer.
func (c *Config) TrustedProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
