package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

type rawAppConfig struct {
	Port               int                `yaml:"port"`
	Env                string             `yaml:"env"`
	Timezone           string             `yaml:"timezone"`
	TZ                 string             `yaml:"tz"`
	AllowedOrigins     []string           `yaml:"allowed_origins"`
	CORSAllowedOrigins []string           `yaml:"cors_allowed_origins"`
	DSN                string             `yaml:"dsn"`
	DatabaseURL        string             `yaml:"database_url"`
	RedisURL           string             `yaml:"redis_url"`
	JWTSecret          string             `yaml:"jwt_secret"`
	LogDir             string             `yaml:"log_dir"`
	Database           rawDatabaseConfig  `yaml:"database"`
	Redis              rawRedisConfig     `yaml:"redis"`
	Auth               rawAuthConfig      `yaml:"auth"`
	Storage            rawStorageConfig   `yaml:"storage"`
	Site               SiteConfig         `yaml:"site"`
	Search             rawSearchConfig    `yaml:"search"`
	Paths              RuntimePathsConfig `yaml:"paths"`
}

type rawDatabaseConfig struct {
	Driver    string            `yaml:"driver"`
	DSN       string            `yaml:"dsn"`
	URL       string            `yaml:"url"`
	Host      string            `yaml:"host"`
	Port      int               `yaml:"port"`
	User      string            `yaml:"user"`
	Username  string            `yaml:"username"`
	Password  string            `yaml:"password"`
	Name      string            `yaml:"name"`
	DBName    string            `yaml:"db_name"`
	Charset   string            `yaml:"charset"`
	ParseTime *bool             `yaml:"parse_time"`
	Loc       string            `yaml:"loc"`
	SSLMode   string            `yaml:"sslmode"`
	File      string            `yaml:"file"`
	Params    map[string]string `yaml:"params"`
}

type rawRedisConfig struct {
	Enable   *bool             `yaml:"enable"`
	URL      string            `yaml:"url"`
	Host     string            `yaml:"host"`
	Port     int               `yaml:"port"`
	Username string            `yaml:"username"`
	Password string            `yaml:"password"`
	DB       *int              `yaml:"db"`
	TLS      *bool             `yaml:"tls"`
	Params   map[string]string `yaml:"params"`
}

type rawAuthConfig struct {
	JWTSecret         string `yaml:"jwt_secret"`
	WritePassword     string `yaml:"write_password"`
	WritePasswordHash string `yaml:"write_password_hash"`
	TokenTTL          string `yaml:"token_ttl"`
}

type rawStorageConfig struct {
	Driver      string             `yaml:"driver"`
	MaxUploadMB int                `yaml:"max_upload_mb"`
	Local       LocalStorageConfig `yaml:"local"`
	S3          S3StorageConfig    `yaml:"s3"`
}

type rawSearchConfig struct {
	Enable          *bool  `yaml:"enable"`
	ReindexInterval string `yaml:"reindex_interval"`
}

// Load reads the YAML config at configPath, applies defaults and environment
// overrides, and validates the result.
func Load(configPath string) (*AppConfig, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = DefaultConfigPath
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %q: %w", path, err)
	}
	cfg, err := Parse(content)
	if err != nil {
		return nil, fmt.Errorf("config file %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML content into a validated AppConfig.
func Parse(content []byte) (*AppConfig, error) {
	cfg := defaultAppConfig()
	raw := rawAppConfig{}
	if len(bytes.TrimSpace(content)) > 0 {
		decoder := yaml.NewDecoder(bytes.NewReader(content))
		decoder.KnownFields(true)
		if err := decoder.Decode(&raw); err != nil {
			return nil, fmt.Errorf("parse: %w", err)
		}
	}

	if err := applyRawAppConfig(&cfg, raw); err != nil {
		return nil, err
	}
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultAppConfig() AppConfig {
	cfg := AppConfig{
		Port: defaultPort,
		Env:  defaultEnv,
		Database: DatabaseRuntimeConfig{
			Driver:    defaultDBDriver,
			ParseTime: true,
		},
		Redis: RedisRuntimeConfig{
			Host: defaultRedisHost,
			Port: defaultRedisPort,
			DB:   defaultRedisDB,
		},
		Auth: AuthConfig{
			TokenTTL: defaultTokenTTL,
		},
		Storage: StorageConfig{
			Driver:      StorageLocal,
			MaxUploadMB: defaultMaxUploadMB,
			Local:       LocalStorageConfig{PublicPath: defaultLocalPublicPath},
			S3:          S3StorageConfig{Region: defaultS3Region, Bucket: defaultS3Bucket},
		},
		Site: SiteConfig{BaseURL: defaultBaseURL},
		Search: SearchConfig{
			Enable:          true,
			ReindexInterval: defaultReindexInterval,
		},
	}
	cfg.Database = normalizeDatabaseConfig(cfg.Database)
	cfg.Redis = normalizeRedisConfig(cfg.Redis)
	cfg.DSN = cfg.Database.DSNValue()
	return cfg
}

func applyRawAppConfig(cfg *AppConfig, raw rawAppConfig) error {
	if raw.Port != 0 {
		cfg.Port = raw.Port
	}
	if v := strings.TrimSpace(raw.Env); v != "" {
		cfg.Env = v
	}
	if v := strings.TrimSpace(raw.Timezone); v != "" {
		cfg.Timezone = v
	}
	if v := strings.TrimSpace(raw.TZ); v != "" {
		cfg.Timezone = v
	}
	switch {
	case raw.AllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.AllowedOrigins)
	case raw.CORSAllowedOrigins != nil:
		cfg.AllowedOrigins = normalizeOrigins(raw.CORSAllowedOrigins)
	}

	cfg.Database = applyRawDatabaseConfig(cfg.Database, raw)
	cfg.Redis = applyRawRedisConfig(cfg.Redis, raw)

	auth := cfg.Auth
	if v := strings.TrimSpace(raw.JWTSecret); v != "" {
		auth.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Auth.JWTSecret); v != "" {
		auth.JWTSecret = v
	}
	if v := strings.TrimSpace(raw.Auth.WritePassword); v != "" {
		auth.WritePassword = v
	}
	if v := strings.TrimSpace(raw.Auth.WritePasswordHash); v != "" {
		auth.WritePasswordHash = v
	}
	if v := strings.TrimSpace(raw.Auth.TokenTTL); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid auth.token_ttl %q: %w", v, err)
		}
		auth.TokenTTL = ttl
	}
	cfg.Auth = auth

	storage := cfg.Storage
	if v := strings.ToLower(strings.TrimSpace(raw.Storage.Driver)); v != "" {
		storage.Driver = v
	}
	if raw.Storage.MaxUploadMB != 0 {
		storage.MaxUploadMB = raw.Storage.MaxUploadMB
	}
	if v := strings.TrimSpace(raw.Storage.Local.Dir); v != "" {
		storage.Local.Dir = v
	}
	if v := strings.TrimSpace(raw.Storage.Local.PublicPath); v != "" {
		storage.Local.PublicPath = v
	}
	storage.S3 = mergeS3Config(storage.S3, raw.Storage.S3)
	cfg.Storage = normalizeStorageConfig(storage)

	if v := strings.TrimSpace(raw.Site.BaseURL); v != "" {
		cfg.Site.BaseURL = v
	}

	if raw.Search.Enable != nil {
		cfg.Search.Enable = *raw.Search.Enable
	}
	if v := strings.TrimSpace(raw.Search.ReindexInterval); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid search.reindex_interval %q: %w", v, err)
		}
		cfg.Search.ReindexInterval = d
	}

	if v := strings.TrimSpace(raw.Paths.Logs); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.Paths.Logs = v
	}
	if v := strings.TrimSpace(raw.Paths.Static); v != "" {
		cfg.Paths.Static = v
	}

	cfg.Env = normalizeEnv(cfg.Env)
	cfg.Site.BaseURL = normalizeBaseURL(cfg.Site.BaseURL)
	cfg.Paths = normalizeRuntimePaths(cfg.Paths)
	cfg.DSN = cfg.Database.DSNValue()
	cfg.RedisURL = ""
	if cfg.Redis.Enable {
		cfg.RedisURL = cfg.Redis.URLValue()
	}
	return nil
}

func applyRawDatabaseConfig(current DatabaseRuntimeConfig, raw rawAppConfig) DatabaseRuntimeConfig {
	cfg := current

	if v := strings.ToLower(strings.TrimSpace(raw.Database.Driver)); v != "" {
		cfg.Driver = v
	}
	if v := strings.TrimSpace(raw.Database.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.URL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DSN); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.DatabaseURL); v != "" {
		cfg.DSN = v
	}
	if v := strings.TrimSpace(raw.Database.Host); v != "" {
		cfg.Host = v
	}
	if raw.Database.Port != 0 {
		cfg.Port = raw.Database.Port
	}
	if v := strings.TrimSpace(raw.Database.User); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Username); v != "" {
		cfg.User = v
	}
	if v := strings.TrimSpace(raw.Database.Password); v != "" {
		cfg.Password = v
	}
	if v := strings.TrimSpace(raw.Database.Name); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.DBName); v != "" {
		cfg.Name = v
	}
	if v := strings.TrimSpace(raw.Database.Charset); v != "" {
		cfg.Charset = v
	}
	if raw.Database.ParseTime != nil {
		cfg.ParseTime = *raw.Database.ParseTime
	}
	if v := strings.TrimSpace(raw.Database.Loc); v != "" {
		cfg.Loc = v
	}
	if v := strings.TrimSpace(raw.Database.SSLMode); v != "" {
		cfg.SSLMode = v
	}
	if v := strings.TrimSpace(raw.Database.File); v != "" {
		cfg.File = v
	}
	if raw.Database.Params != nil {
		cfg.Params = copyStringMap(raw.Database.Params)
	}

	// Driver-specific defaults depend on the final driver, so reset the port
	// when the driver changed and no explicit port was given.
	if raw.Database.Port == 0 && cfg.Driver != current.Driver {
		cfg.Port = 0
	}
	return normalizeDatabaseConfig(cfg)
}

func applyRawRedisConfig(current RedisRuntimeConfig, raw rawAppConfig) RedisRuntimeConfig {
	cfg := current

	if raw.Redis.Enable != nil {
		cfg.Enable = *raw.Redis.Enable
	}
	if v := strings.TrimSpace(raw.Redis.URL); v != "" {
		cfg.URL = v
	}
	if v := strings.TrimSpace(raw.RedisURL); v != "" {
		cfg.URL = v
		if raw.Redis.Enable == nil {
			cfg.Enable = true
		}
	}
	if v := strings.TrimSpace(raw.Redis.Host); v != "" {
		cfg.Host = v
	}
	if raw.Redis.Port != 0 {
		cfg.Port = raw.Redis.Port
	}
	if v := strings.TrimSpace(raw.Redis.Username); v != "" {
		cfg.Username = v
	}
	if v := strings.TrimSpace(raw.Redis.Password); v != "" {
		cfg.Password = v
	}
	if raw.Redis.DB != nil {
		cfg.DB = *raw.Redis.DB
	}
	if raw.Redis.TLS != nil {
		cfg.TLS = *raw.Redis.TLS
	}
	if raw.Redis.Params != nil {
		cfg.Params = copyStringMap(raw.Redis.Params)
	}

	return normalizeRedisConfig(cfg)
}

func mergeS3Config(cfg, raw S3StorageConfig) S3StorageConfig {
	if v := strings.TrimSpace(raw.Endpoint); v != "" {
		cfg.Endpoint = v
	}
	if v := strings.TrimSpace(raw.Region); v != "" {
		cfg.Region = v
	}
	if v := strings.TrimSpace(raw.Bucket); v != "" {
		cfg.Bucket = v
	}
	if v := strings.TrimSpace(raw.AccessKeyID); v != "" {
		cfg.AccessKeyID = v
	}
	if v := strings.TrimSpace(raw.SecretAccessKey); v != "" {
		cfg.SecretAccessKey = v
	}
	if raw.PathStyle {
		cfg.PathStyle = true
	}
	if v := strings.TrimSpace(raw.PublicURL); v != "" {
		cfg.PublicURL = v
	}
	return cfg
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvWritePassword)); v != "" {
		cfg.Auth.WritePassword = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvJWTSecret)); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.Site.BaseURL = normalizeBaseURL(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogDir)); v != "" {
		cfg.Paths.Logs = v
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %d, expected 1-65535", cfg.Port)
	}
	switch cfg.Database.Driver {
	case DriverMySQL:
		if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
			return fmt.Errorf("invalid mysql dsn: %w", err)
		}
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported database.driver %q, expected mysql, postgres or sqlite", cfg.Database.Driver)
	}
	if cfg.Database.Driver != DriverSQLite && (cfg.Database.Port < 1 || cfg.Database.Port > 65535) {
		return fmt.Errorf("invalid database.port %d, expected 1-65535", cfg.Database.Port)
	}
	if cfg.Redis.Enable {
		if cfg.Redis.Port < 1 || cfg.Redis.Port > 65535 {
			return fmt.Errorf("invalid redis.port %d, expected 1-65535", cfg.Redis.Port)
		}
		if cfg.Redis.DB < 0 {
			return fmt.Errorf("invalid redis.db %d, expected >= 0", cfg.Redis.DB)
		}
	}
	if cfg.Auth.TokenTTL <= 0 {
		return fmt.Errorf("invalid auth.token_ttl %s, expected > 0", cfg.Auth.TokenTTL)
	}
	switch cfg.Storage.Driver {
	case StorageLocal:
	case StorageS3:
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required")
		}
	default:
		return fmt.Errorf("unsupported storage.driver %q, expected local or s3", cfg.Storage.Driver)
	}
	if cfg.Storage.MaxUploadMB < 1 {
		return fmt.Errorf("invalid storage.max_upload_mb %d, expected >= 1", cfg.Storage.MaxUploadMB)
	}
	if cfg.Search.Enable && cfg.Search.ReindexInterval < time.Minute {
		return fmt.Errorf("invalid search.reindex_interval %s, expected >= 1m", cfg.Search.ReindexInterval)
	}
	return nil
}
