package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds application configuration
type Config struct {
	ServerPort      string        `toml:"server_port"`
	DatabaseType    string        `toml:"database_type"` // sqlite, postgres, mysql
	DatabaseURL     string        `toml:"database_url"`
	DatabasePath    string        `toml:"database_path"`
	MigrateOnStart  bool          `toml:"migrate_on_start"`
	SessionDuration time.Duration `toml:"-"`
	UploadMaxSize   int64         `toml:"upload_max_size"`
	BcryptCost      int           `toml:"bcrypt_cost"`
	LogLevel        string        `toml:"log_level"`
	LogFormat       string        `toml:"log_format"` // json or console

	Token  TokenConfig  `toml:"token"`
	Cookie CookieConfig `toml:"cookie"`
	Blob   BlobConfig   `toml:"blob"`
}

// TokenConfig configures the session token signer.
type TokenConfig struct {
	Secret string `toml:"secret"`
	Issuer string `toml:"issuer"`
}

// CookieConfig holds the keys for the signed family-context cookie.
// Keys are hex encoded; the block key is optional (cookie is then signed but not encrypted).
type CookieConfig struct {
	HashKey  string `toml:"hash_key"`
	BlockKey string `toml:"block_key"`
}

// BlobConfig selects and configures the blob storage backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type BlobConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3", "gcs" or "gridfs"

	// FileSystem-specific fields
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields
	S3Bucket   string `toml:"s3_bucket,omitempty"`
	S3Prefix   string `toml:"s3_prefix,omitempty"`
	S3Region   string `toml:"s3_region,omitempty"`
	S3Endpoint string `toml:"s3_endpoint,omitempty"`
	// Static credentials; when empty the default AWS credential chain is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty"`

	// GCS-specific fields
	GCSBucket string `toml:"gcs_bucket,omitempty"`
	GCSPrefix string `toml:"gcs_prefix,omitempty"`
	// GCSEndpoint points at an emulator; authentication is skipped when set.
	GCSEndpoint string `toml:"gcs_endpoint,omitempty"`

	// GridFS-specific fields
	MongoURI      string `toml:"mongo_uri,omitempty"`
	MongoDatabase string `toml:"mongo_database,omitempty"`
	GridFSBucket  string `toml:"gridfs_bucket,omitempty"`

	// Optional age identity file; when set, blobs are encrypted at rest.
	AgeIdentityPath string `toml:"age_identity_path,omitempty"`
}

const (
	DefaultUploadMaxSize = 10 * 1024 * 1024 // 10MB
	DefaultBcryptCost    = 12
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		ServerPort:      "3001",
		DatabaseType:    "sqlite",
		DatabasePath:    "./family-vault.db",
		MigrateOnStart:  true,
		SessionDuration: 24 * time.Hour,
		UploadMaxSize:   DefaultUploadMaxSize,
		BcryptCost:      DefaultBcryptCost,
		LogLevel:        "info",
		LogFormat:       "json",
		Token: TokenConfig{
			Issuer: "family-vault",
		},
		Blob: BlobConfig{
			Type:         "filesystem",
			FSRoot:       "./uploads",
			GridFSBucket: "uploads",
		},
	}
}

// Load reads configuration from an optional TOML file and then from environment variables.
// Environment variables win over the file. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("FAMILYVAULT_CONFIG")
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServerPort = getEnv("PORT", cfg.ServerPort)
	cfg.DatabaseType = getEnv("DB_TYPE", cfg.DatabaseType)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.DatabasePath = getEnv("DB_PATH", cfg.DatabasePath)
	cfg.MigrateOnStart = getEnvBool("MIGRATE_ON_START", cfg.MigrateOnStart)
	cfg.UploadMaxSize = getEnvInt64("UPLOAD_MAX_SIZE", cfg.UploadMaxSize)
	cfg.BcryptCost = int(getEnvInt64("BCRYPT_COST", int64(cfg.BcryptCost)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)

	cfg.Token.Secret = getEnv("JWT_SECRET", cfg.Token.Secret)
	cfg.Token.Issuer = getEnv("JWT_ISSUER", cfg.Token.Issuer)

	cfg.Cookie.HashKey = getEnv("COOKIE_HASH_KEY", cfg.Cookie.HashKey)
	cfg.Cookie.BlockKey = getEnv("COOKIE_BLOCK_KEY", cfg.Cookie.BlockKey)

	cfg.Blob.Type = getEnv("BLOB_TYPE", cfg.Blob.Type)
	cfg.Blob.FSRoot = getEnv("BLOB_FS_ROOT", cfg.Blob.FSRoot)
	cfg.Blob.S3Bucket = getEnv("BLOB_S3_BUCKET", cfg.Blob.S3Bucket)
	cfg.Blob.S3Prefix = getEnv("BLOB_S3_PREFIX", cfg.Blob.S3Prefix)
	cfg.Blob.S3Region = getEnv("BLOB_S3_REGION", cfg.Blob.S3Region)
	cfg.Blob.S3Endpoint = getEnv("BLOB_S3_ENDPOINT", cfg.Blob.S3Endpoint)
	cfg.Blob.S3AccessKeyID = getEnv("BLOB_S3_ACCESS_KEY_ID", cfg.Blob.S3AccessKeyID)
	cfg.Blob.S3SecretAccessKey = getEnv("BLOB_S3_SECRET_ACCESS_KEY", cfg.Blob.S3SecretAccessKey)
	cfg.Blob.GCSBucket = getEnv("BLOB_GCS_BUCKET", cfg.Blob.GCSBucket)
	cfg.Blob.GCSPrefix = getEnv("BLOB_GCS_PREFIX", cfg.Blob.GCSPrefix)
	cfg.Blob.GCSEndpoint = getEnv("BLOB_GCS_ENDPOINT", cfg.Blob.GCSEndpoint)
	cfg.Blob.MongoURI = getEnv("MONGODB_URI", cfg.Blob.MongoURI)
	cfg.Blob.MongoDatabase = getEnv("MONGODB_DATABASE", cfg.Blob.MongoDatabase)
	cfg.Blob.GridFSBucket = getEnv("GRIDFS_BUCKET", cfg.Blob.GridFSBucket)
	cfg.Blob.AgeIdentityPath = getEnv("BLOB_AGE_IDENTITY", cfg.Blob.AgeIdentityPath)
}

// Validate reports configuration combinations the server cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.DatabaseType) {
	case "sqlite", "sqlite3", "":
		if c.DatabasePath == "" {
			problems = append(problems, "database_path is required for sqlite")
		}
	case "postgres", "postgresql", "mysql":
		if c.DatabaseURL == "" {
			problems = append(problems, "database_url is required for "+c.DatabaseType)
		}
	default:
		problems = append(problems, "unsupported database type: "+c.DatabaseType)
	}

	if c.UploadMaxSize <= 0 {
		problems = append(problems, "upload_max_size must be positive")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		problems = append(problems, "bcrypt_cost must be between 4 and 31")
	}
	if c.Cookie.HashKey != "" {
		if _, err := hex.DecodeString(c.Cookie.HashKey); err != nil {
			problems = append(problems, "cookie.hash_key must be hex encoded")
		}
	}
	if c.Cookie.BlockKey != "" {
		key, err := hex.DecodeString(c.Cookie.BlockKey)
		if err != nil {
			problems = append(problems, "cookie.block_key must be hex encoded")
		} else if n := len(key); n != 16 && n != 24 && n != 32 {
			problems = append(problems, "cookie.block_key must decode to 16, 24 or 32 bytes")
		}
	}

	switch c.Blob.Type {
	case "memory":
	case "filesystem":
		if c.Blob.FSRoot == "" {
			problems = append(problems, "blob.fs_root is required for filesystem blobs")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			problems = append(problems, "blob.s3_bucket is required for s3 blobs")
		}
		if (c.Blob.S3AccessKeyID == "") != (c.Blob.S3SecretAccessKey == "") {
			problems = append(problems, "blob.s3_access_key_id and blob.s3_secret_access_key must be set together")
		}
	case "gcs":
		if c.Blob.GCSBucket == "" {
			problems = append(problems, "blob.gcs_bucket is required for gcs blobs")
		}
	case "gridfs":
		if c.Blob.MongoURI == "" || c.Blob.MongoDatabase == "" {
			problems = append(problems, "blob.mongo_uri and blob.mongo_database are required for gridfs blobs")
		}
	default:
		problems = append(problems, "unknown blob type: "+c.Blob.Type)
	}

	if len(problems) > 0 {
		return errors.New("invalid config: " + strings.Join(problems, "; "))
	}
	return nil
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}
