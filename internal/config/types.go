package config

import (
	"strings"
	"time"
)

// AppConfig holds runtime startup configuration loaded from YAML.
type AppConfig struct {
	Port           int                   `yaml:"port"`
	Env            string                `yaml:"env"` // "development" | "production"
	Timezone       string                `yaml:"timezone"`
	AllowedOrigins []string              `yaml:"allowed_origins"`
	Database       DatabaseRuntimeConfig `yaml:"database"`
	Redis          RedisRuntimeConfig    `yaml:"redis"`
	Auth           AuthConfig            `yaml:"auth"`
	Storage        StorageConfig         `yaml:"storage"`
	Site           SiteConfig            `yaml:"site"`
	Search         SearchConfig          `yaml:"search"`
	Paths          RuntimePathsConfig    `yaml:"paths"`

	// DSN is the resolved driver-specific connection string.
	DSN string `yaml:"-"`
	// RedisURL is the resolved redis:// URL, empty when redis is disabled.
	RedisURL string `yaml:"-"`
}

type DatabaseRuntimeConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	Charset   string            `yaml:"charset"`
	ParseTime bool              `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	SSLMode   string            `yaml:"sslmode"`
	File      string            `yaml:"file"`
	Params    map[string]string `yaml:"params"`
}

type RedisRuntimeConfig struct {
	Enable   bool              `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       int               `yaml:"db"`
	TLS      bool              `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

// AuthConfig configures the shared write password gate.
type AuthConfig struct {
	JWTSecret         string        `yaml:"jwt_secret"`
	WritePassword     string        `yaml:"write_password"`
	WritePasswordHash string        `yaml:"write_password_hash"`
	TokenTTL          time.Duration `yaml:"token_ttl"`
}

type StorageConfig struct {
	Driver      string             `yaml:"driver"` // "local" | "s3"
	MaxUploadMB int                `yaml:"max_upload_mb"`
	Local       LocalStorageConfig `yaml:"local"`
	S3          S3StorageConfig    `yaml:"s3"`
}

type LocalStorageConfig struct {
	Dir        string `yaml:"dir"`
	PublicPath string `yaml:"public_path"`
}

type S3StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
	PublicURL       string `yaml:"public_url"`
}

type SiteConfig struct {
	BaseURL string `yaml:"base_url"`
}

type SearchConfig struct {
	Enable          bool          `yaml:"enable"`
	ReindexInterval time.Duration `yaml:"reindex_interval"`
}

type RuntimePathsConfig struct {
	Logs   string `yaml:"logs"`
	Static string `yaml:"static"`
}

func (c *AppConfig) IsDev() bool {
	return strings.EqualFold(c.Env, defaultEnv)
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(c.Paths.Logs, "logs")
}

// StaticDir is where the local object bucket writes uploads.
func (c *AppConfig) StaticDir() string {
	if c == nil {
		return ResolveRuntimePath("", "static")
	}
	if v := strings.TrimSpace(c.Storage.Local.Dir); v != "" {
		return ResolveRuntimePath(v, "static")
	}
	return ResolveRuntimePath(c.Paths.Static, "static")
}

// MaxUploadBytes returns the upload ceiling in bytes.
func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.Storage.MaxUploadMB) << 20
}
