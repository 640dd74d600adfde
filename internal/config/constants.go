package config

import "time"

const (
	// DefaultConfigPath is used when --config is not provided.
	DefaultConfigPath = "config.yml"
	defaultPort       = 2333
	defaultEnv        = "development"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	StorageLocal = "local"
	StorageS3    = "s3"

	defaultDBDriver   = DriverMySQL
	defaultDBHost     = "127.0.0.1"
	defaultDBPort     = 3306
	defaultPGPort     = 5432
	defaultDBUser     = "root"
	defaultDBPassword = "password"
	defaultDBName     = "inkwell"
	defaultDBCharset  = "utf8mb4"
	defaultDBLoc      = "Local"
	defaultSQLiteFile = "inkwell.db"
	defaultRedisHost  = "localhost"
	defaultRedisPort  = 6379
	defaultRedisDB    = 0

	defaultTokenTTL        = 24 * time.Hour
	defaultMaxUploadMB     = 10
	defaultS3Region        = "us-east-1"
	defaultS3Bucket        = "story-assets"
	defaultLocalPublicPath = "/objects"
	defaultBaseURL         = "http://localhost:2333"
	defaultReindexInterval = 15 * time.Minute

	EnvWritePassword = "INKWELL_WRITE_PASSWORD"
	EnvJWTSecret     = "INKWELL_JWT_SECRET"
	EnvBaseURL       = "INKWELL_BASE_URL"
	EnvLogDir        = "INKWELL_LOG_DIR"
)
