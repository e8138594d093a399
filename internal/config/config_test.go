package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if cfg.SessionDuration != 24*time.Hour {
		t.Errorf("SessionDuration = %v, want 24h", cfg.SessionDuration)
	}
	if cfg.UploadMaxSize != 10*1024*1024 {
		t.Errorf("UploadMaxSize = %d, want 10MiB", cfg.UploadMaxSize)
	}
	if cfg.BcryptCost != 12 {
		t.Errorf("BcryptCost = %d, want 12", cfg.BcryptCost)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
server_port = "9000"
database_type = "sqlite"
database_path = "/tmp/file.db"

[token]
secret = "from-file"

[blob]
type = "s3"
s3_bucket = "family-uploads"
s3_region = "eu-west-1"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ServerPort != "9000" {
		t.Errorf("ServerPort = %q, want 9000", cfg.ServerPort)
	}
	if cfg.Token.Secret != "from-env" {
		t.Errorf("Token.Secret = %q, want env value to win", cfg.Token.Secret)
	}
	if cfg.Blob.Type != "s3" || cfg.Blob.S3Bucket != "family-uploads" {
		t.Errorf("Blob = %+v, want s3 family-uploads", cfg.Blob)
	}
	if cfg.Token.Issuer != "family-vault" {
		t.Errorf("Token.Issuer = %q, want default preserved", cfg.Token.Issuer)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid default",
			mutate: func(*Config) {},
		},
		{
			name:    "postgres without url",
			mutate:  func(c *Config) { c.DatabaseType = "postgres" },
			wantErr: "database_url",
		},
		{
			name:    "unknown database",
			mutate:  func(c *Config) { c.DatabaseType = "oracle" },
			wantErr: "unsupported database type",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Blob.Type = "s3" },
			wantErr: "s3_bucket",
		},
		{
			name:    "gridfs without uri",
			mutate:  func(c *Config) { c.Blob.Type = "gridfs" },
			wantErr: "mongo_uri",
		},
		{
			name:    "unknown blob type",
			mutate:  func(c *Config) { c.Blob.Type = "tape" },
			wantErr: "unknown blob type",
		},
		{
			name:    "bad block key length",
			mutate:  func(c *Config) { c.Cookie.BlockKey = "abcd" },
			wantErr: "block_key",
		},
		{
			name:    "bcrypt cost out of range",
			mutate:  func(c *Config) { c.BcryptCost = 40 },
			wantErr: "bcrypt_cost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
