// Package sqlite provides an embedded persistent store. It reuses the
// in-memory transactional semantics and snapshots the full state to a single
// SQLite table as JSON blobs after every successful commit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"trackcore/internal/infra/persistence/memory"
	"trackcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
// It snapshots the full state after every successful transaction.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store.
func NewStore(path string, registry *domain.Registry, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "trackcore.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(registry, engine)
	s := &Store{Store: mem, db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

var sqliteBuckets = []string{
	"tenants",
	"users",
	"clients",
	"projects",
	"technologies",
	"time_entries",
	"project_technologies",
	"time_entry_technologies",
}

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return classifyErr(fmt.Errorf("select state: %w", err))
	}
	defer func() { _ = rows.Close() }()

	snapshot := memory.Snapshot{}
	targets := map[string]any{
		"tenants":                 &snapshot.Tenants,
		"users":                   &snapshot.Users,
		"clients":                 &snapshot.Clients,
		"projects":                &snapshot.Projects,
		"technologies":            &snapshot.Technologies,
		"time_entries":            &snapshot.TimeEntries,
		"project_technologies":    &snapshot.ProjectTech,
		"time_entry_technologies": &snapshot.EntryTech,
	}
	loaded := false
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := targets[bucket]; ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return fmt.Errorf("decode %s: %w", bucket, err)
			}
			loaded = true
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if !loaded {
		return nil
	}
	s.ImportState(snapshot)
	return nil
}

// persist snapshots the full state to the database. Caller holds s.mu.
func (s *Store) persist() (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return classifyErr(err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	payloads := map[string]any{
		"tenants":                 snapshot.Tenants,
		"users":                   snapshot.Users,
		"clients":                 snapshot.Clients,
		"projects":                snapshot.Projects,
		"technologies":            snapshot.Technologies,
		"time_entries":            snapshot.TimeEntries,
		"project_technologies":    snapshot.ProjectTech,
		"time_entry_technologies": snapshot.EntryTech,
	}
	for _, bucket := range sqliteBuckets {
		data, err := json.Marshal(payloads[bucket])
		if err != nil {
			retErr = err
			return retErr
		}
		if _, err = tx.Exec(`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			retErr = classifyErr(fmt.Errorf("upsert %s: %w", bucket, err))
			return retErr
		}
	}
	if err = tx.Commit(); err != nil {
		return classifyErr(err)
	}
	return nil
}

// classifyErr wraps storage errors for the write coordinator: lock contention
// is a retryable conflict, anything else from the driver is transient
// unavailability.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "table is locked") ||
		strings.Contains(msg, "busy") {
		return domain.ConflictError{Err: err}
	}
	return domain.UnavailableError{Err: err}
}

// RunInTransaction applies the provided function within a transaction, then
// snapshots state to SQLite if successful. A failed snapshot rolls the
// in-memory commit back so a reported failure never leaves the mutation
// visible; the caller may safely retry the whole cycle.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.ExportState()
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if pErr := s.persist(); pErr != nil {
		s.ImportState(before)
		return res, pErr
	}
	return res, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
