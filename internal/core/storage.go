package core

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"costcore/internal/blob"
	"costcore/internal/infra/persistence/memory"
	"costcore/internal/infra/persistence/postgres"
	"costcore/internal/infra/persistence/sqlite"
	"costcore/pkg/domain"
)

// StorageDriver identifies a persistence backend implementation.
type StorageDriver string

const (
	// StorageMemory keeps all state in process memory.
	StorageMemory StorageDriver = "memory"
	// StorageSQLite persists state to an embedded SQLite file.
	StorageSQLite StorageDriver = "sqlite"
	// StoragePostgres persists state to a networked Postgres server.
	StoragePostgres StorageDriver = "postgres"
)

// OpenPersistentStore constructs a single backend selected by cfg.StorageDriver.
func OpenPersistentStore(cfg Config, engine *RulesEngine) (PersistentStore, error) {
	switch StorageDriver(cfg.StorageDriver) {
	case StorageMemory, "":
		return memory.NewStore(engine), nil
	case StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine)
	case StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// OpenRouter constructs the dual-backend router: the embedded SQLite store on
// the local side and, when a DSN is configured, the Postgres store on the
// remote side. Remote construction failures are returned, never masked by a
// fallback to local.
func OpenRouter(cfg Config, engine *RulesEngine) (*Router, error) {
	local, err := sqlite.NewStore(cfg.SQLitePath, engine)
	if err != nil {
		return nil, err
	}
	var remote domain.PersistentStore
	if cfg.PostgresDSN != "" {
		pg, err := postgres.NewStore(cfg.PostgresDSN, engine)
		if err != nil {
			return nil, err
		}
		remote = pg
	}
	mode := BackendMode(cfg.Backend)
	if mode == "" {
		mode = BackendLocal
	}
	return NewRouter(local, remote, mode)
}

// OpenLogger constructs the service logger at the configured level.
func OpenLogger(cfg Config, component string) (*LogrusLogger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.LogLevel, err)
	}
	base := logrus.New()
	base.SetLevel(level)
	return NewLogrusLogger(base, component), nil
}

// OpenMetricsRecorder constructs the prometheus recorder under the configured
// namespace. A nil registerer falls back to the default registry.
func OpenMetricsRecorder(cfg Config, reg prometheus.Registerer) (*PrometheusMetricsRecorder, error) {
	return NewPrometheusMetricsRecorder(cfg.MetricsNamespace, reg)
}

// OpenDocumentStore constructs the blob store for vendor quote documents.
func OpenDocumentStore(ctx context.Context, cfg Config) (blob.Store, error) {
	return blob.Open(ctx, blob.Settings{
		Driver:         cfg.BlobDriver,
		FSRoot:         cfg.BlobFSRoot,
		S3Bucket:       cfg.BlobS3Bucket,
		S3Region:       cfg.BlobS3Region,
		S3Endpoint:     cfg.BlobS3Endpoint,
		S3AccessKeyID:  cfg.BlobS3AccessKey,
		S3SecretKey:    cfg.BlobS3SecretKey,
		S3UsePathStyle: cfg.BlobS3PathStyle,
	})
}
