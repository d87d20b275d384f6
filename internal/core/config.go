package core

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config carries process configuration sourced from the environment.
type Config struct {
	// StorageDriver selects the backing store: memory, sqlite or postgres.
	StorageDriver string `env:"COSTCORE_STORAGE_DRIVER" envDefault:"sqlite"`
	// SQLitePath is the database file for the embedded local store.
	SQLitePath string `env:"COSTCORE_SQLITE_PATH" envDefault:"costcore.db"`
	// PostgresDSN is the connection string for the remote store. The router
	// leaves the remote side unconfigured when empty.
	PostgresDSN string `env:"COSTCORE_POSTGRES_DSN"`
	// Backend selects the initially active router side: local or remote.
	Backend string `env:"COSTCORE_BACKEND" envDefault:"local"`

	// Document storage for vendor quote uploads.
	BlobDriver       string `env:"COSTCORE_BLOB_DRIVER" envDefault:"fs"`
	BlobFSRoot       string `env:"COSTCORE_BLOB_FS_ROOT" envDefault:"./quotedocs"`
	BlobS3Bucket     string `env:"COSTCORE_BLOB_S3_BUCKET"`
	BlobS3Region     string `env:"COSTCORE_BLOB_S3_REGION" envDefault:"us-east-1"`
	BlobS3Endpoint   string `env:"COSTCORE_BLOB_S3_ENDPOINT"`
	BlobS3AccessKey  string `env:"COSTCORE_BLOB_S3_ACCESS_KEY_ID"`
	BlobS3SecretKey  string `env:"COSTCORE_BLOB_S3_SECRET_ACCESS_KEY"`
	BlobS3PathStyle  bool   `env:"COSTCORE_BLOB_S3_PATH_STYLE" envDefault:"false"`
	LogLevel         string `env:"COSTCORE_LOG_LEVEL" envDefault:"info"`
	MetricsNamespace string `env:"COSTCORE_METRICS_NAMESPACE" envDefault:"costcore"`
}

// LoadConfig parses configuration from process environment variables.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
