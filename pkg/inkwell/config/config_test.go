package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Env:                  "development",
		Port:                 "8000",
		DBDriver:             DriverSQLite,
		DBPath:               "inkwell.db",
		JWTSecret:            DefaultJWTSecret,
		TokenType:            TokenTypeOpaque,
		TokenTTLHours:        24,
		MediaRoot:            "media",
		MediaURL:             "/media",
		ImageMaxUploadSizeMB: 10,
		ImageMaxPixels:       40_000_000,
	}
}

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, TokenTypeOpaque, cfg.TokenType)
	assert.Equal(t, "/media", cfg.MediaURL)
	assert.Equal(t, 10, cfg.ImageMaxUploadSizeMB)
	assert.Equal(t, int64(40_000_000), cfg.ImageMaxPixels)
	assert.Empty(t, cfg.TrustedProxyList())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("PORT", "9090")
	t.Setenv("TOKEN_TYPE", "  JWT ")
	t.Setenv("MEDIA_URL", "files/")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, TokenTypeJWT, cfg.TokenType)
	assert.Equal(t, "/files", cfg.MediaURL)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("PORT: \"7070\"\nDB_PATH: blog.db\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "blog.db", cfg.DBPath)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid development config", func(c *Config) {}, false},
		{"missing port", func(c *Config) { c.Port = "" }, true},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, true},
		{"postgres without host", func(c *Config) { c.DBDriver = DriverPostgres; c.DBHost = "" }, true},
		{"unknown token type", func(c *Config) { c.TokenType = "cookie" }, true},
		{"zero upload limit", func(c *Config) { c.ImageMaxUploadSizeMB = 0 }, true},
		{"zero pixel limit", func(c *Config) { c.ImageMaxPixels = 0 }, true},
		{"production with default secret", func(c *Config) { c.Env = "production" }, true},
		{"production with short secret", func(c *Config) { c.Env = "production"; c.JWTSecret = "short" }, true},
		{"production with strong secret", func(c *Config) {
			c.Env = "production"
			c.JWTSecret = "a-very-long-production-secret-value-0123456789"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConfig()
			tt.mutate(c)
			err := c.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := validConfig()
	c.DBHost = "db"
	c.DBPort = "5432"
	c.DBUser = "blog"
	c.DBPassword = "pw"
	c.DBName = "blog"
	c.DBSSLMode = "require"

	assert.Equal(t, "host=db port=5432 user=blog password=pw dbname=blog sslmode=require", c.PostgresDSN())
}

func TestTrustedProxyList(t *testing.T) {
	c := validConfig()
	assert.Nil(t, c.TrustedProxyList())

	c.TrustedProxies = " 10.0.0.1, ,172.16.0.0/12 "
	assert.Equal(t, []string{"10.0.0.1", "172.16.0.0/12"}, c.TrustedProxyList())
}

// chdir changes the working directory for the duration of the test and
// restores it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
