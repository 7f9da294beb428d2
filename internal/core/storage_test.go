package core

import (
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"samplecore/internal/infra/persistence/memory"
	"samplecore/internal/infra/persistence/postgres"
	"samplecore/internal/infra/persistence/sqlite"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	t.Setenv("SAMPLECORE_STORAGE_DRIVER", "memory")
	store, err := OpenPersistentStore(NewDefaultRulesEngine(0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	t.Setenv("SAMPLECORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("SAMPLECORE_SQLITE_PATH", path)

	store, err := OpenPersistentStore(NewDefaultRulesEngine(0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	if sq.Path() != path {
		t.Fatalf("expected path %s, got %s", path, sq.Path())
	}
}

func TestOpenPersistentStoreDefaultsToSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	t.Setenv("SAMPLECORE_STORAGE_DRIVER", "")
	t.Setenv("SAMPLECORE_SQLITE_PATH", path)

	store, err := OpenPersistentStore(NewDefaultRulesEngine(0))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*sqlite.Store); !ok {
		t.Fatalf("expected sqlite store by default, got %T", store)
	}
}

func TestOpenPersistentStoreUnknownDriver(t *testing.T) {
	t.Setenv("SAMPLECORE_STORAGE_DRIVER", "etcd")
	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestOpenPersistentStorePostgresOpenFailure(t *testing.T) {
	t.Setenv("SAMPLECORE_STORAGE_DRIVER", "postgres")
	t.Setenv("SAMPLECORE_POSTGRES_DSN", "postgres://localhost/samplecore")

	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) {
		return nil, errors.New("refused")
	})
	defer restore()

	if _, err := OpenPersistentStore(nil); err == nil {
		t.Fatal("expected open failure to propagate")
	}
}
