// Package sqlite provides the embedded Local Store: in-memory transaction
// semantics with a full-state JSON snapshot written to a single SQLite table
// after every committed transaction.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"costcore/internal/infra/persistence/memory"
	"costcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// BackendName identifies this store in BackendUnavailableError reports.
const BackendName = "sqlite"

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "costcore.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("open sqlite: %w", err)}
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("create state table: %w", err)}
	}
	s := &Store{Store: memory.NewStore(engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{"projects", "estimates", "trades", "sub_items", "templates", "categories"}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("select state: %w", err)}
	}
	defer func() { _ = rows.Close() }()
	type raw struct {
		bucket  string
		payload []byte
	}
	var raws []raw
	for rows.Next() {
		var r raw
		if err := rows.Scan(&r.bucket, &r.payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		raws = append(raws, r)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(raws) == 0 {
		return nil
	}
	snapshot := memory.Snapshot{}
	for _, r := range raws {
		if len(r.payload) == 0 {
			continue
		}
		target, ok := snapshotBucketTarget(&snapshot, r.bucket)
		if !ok {
			continue
		}
		if err := json.Unmarshal(r.payload, target); err != nil {
			return fmt.Errorf("decode %s: %w", r.bucket, err)
		}
	}
	s.ImportState(snapshot)
	return nil
}

func snapshotBucketTarget(snapshot *memory.Snapshot, bucket string) (any, bool) {
	switch bucket {
	case "projects":
		return &snapshot.Projects, true
	case "estimates":
		return &snapshot.Estimates, true
	case "trades":
		return &snapshot.Trades, true
	case "sub_items":
		return &snapshot.SubItems, true
	case "templates":
		return &snapshot.Templates, true
	case "categories":
		return &snapshot.Categories, true
	}
	return nil, false
}

func snapshotBucketPayload(snapshot memory.Snapshot, bucket string) ([]byte, error) {
	switch bucket {
	case "projects":
		return json.Marshal(snapshot.Projects)
	case "estimates":
		return json.Marshal(snapshot.Estimates)
	case "trades":
		return json.Marshal(snapshot.Trades)
	case "sub_items":
		return json.Marshal(snapshot.SubItems)
	case "templates":
		return json.Marshal(snapshot.Templates)
	case "categories":
		return json.Marshal(snapshot.Categories)
	}
	return nil, fmt.Errorf("unknown bucket %s", bucket)
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("begin tx: %w", err)}
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range sqliteBuckets {
		data, err := snapshotBucketPayload(snapshot, bucket)
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err := tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("upsert %s: %w", bucket, err)}
			return retErr
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.BackendUnavailableError{Backend: BackendName, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite if successful.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }
