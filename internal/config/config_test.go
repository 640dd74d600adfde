package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, defaultPort, cfg.Port)
	assert.True(t, cfg.IsDev())
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, "root:password@tcp(127.0.0.1:3306)/inkwell?charset=utf8mb4&loc=Local&parseTime=true", cfg.DSN)
	assert.Empty(t, cfg.RedisURL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes())
	assert.Equal(t, StorageLocal, cfg.Storage.Driver)
	assert.Equal(t, "story-assets", cfg.Storage.S3.Bucket)
}

func TestParsePostgresAndRedis(t *testing.T) {
	cfg, err := Parse([]byte(`
port: 8080
env: production
database:
  driver: postgres
  host: db
  user: ink
  password: secret
  name: stories
redis:
  enable: true
  host: cache
  db: 2
auth:
  write_password: hunter2
  token_ttl: 12h
`))
	require.NoError(t, err)

	assert.False(t, cfg.IsDev())
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "host=db port=5432 user=ink password=secret dbname=stories sslmode=disable", cfg.DSN)
	assert.Equal(t, "redis://cache:6379/2", cfg.RedisURL)
	assert.Equal(t, "hunter2", cfg.Auth.WritePassword)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
}

func TestParseSQLite(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  driver: sqlite\n  file: ':memory:'\n"))
	require.NoError(t, err)
	assert.Equal(t, ":memory:", cfg.DSN)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte("prot: 80\n"))
	assert.Error(t, err)
}

func TestParseValidation(t *testing.T) {
	cases := map[string]string{
		"bad port":      "port: 70000\n",
		"bad driver":    "database:\n  driver: oracle\n",
		"bad ttl":       "auth:\n  token_ttl: forever\n",
		"bad storage":   "storage:\n  driver: ftp\n",
		"bad mysql dsn": "dsn: 'not a dsn'\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(EnvWritePassword, "from-env")
	t.Setenv(EnvJWTSecret, "env-secret")
	t.Setenv(EnvBaseURL, "https://stories.example.com/")

	cfg, err := Parse([]byte("auth:\n  write_password: from-file\n"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.WritePassword)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "https://stories.example.com", cfg.Site.BaseURL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte("port: 9000\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
