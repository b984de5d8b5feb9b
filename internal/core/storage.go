package core

import (
	"fmt"
	"os"

	"trackcore/internal/infra/persistence/memory"
	"trackcore/internal/infra/persistence/postgres"
	"trackcore/internal/infra/persistence/sqlite"
	"trackcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

// Supported storage drivers.
const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	TRACKCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	TRACKCORE_SQLITE_PATH: path to sqlite file (default ./trackcore.db)
//	TRACKCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(registry *domain.Registry, engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("TRACKCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(registry, engine), nil
	case StorageSQLite:
		path := os.Getenv("TRACKCORE_SQLITE_PATH")
		return sqlite.NewStore(path, registry, engine)
	case StoragePostgres:
		dsn := os.Getenv("TRACKCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, registry, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
