package postgres

import (
	"database/sql"
	"errors"
	"strings"
	"testing"
)

func TestNewStorePropagatesOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver {
			t.Fatalf("expected driver %s, got %s", defaultDriver, driver)
		}
		if dsn != "postgres://example/db" {
			t.Fatalf("unexpected dsn %s", dsn)
		}
		return nil, errors.New("refused")
	})
	defer restore()

	_, err := NewStore("postgres://example/db", nil)
	if err == nil || !strings.Contains(err.Error(), "open postgres") {
		t.Fatalf("expected wrapped open error, got %v", err)
	}
}

func TestNewStoreFallsBackToDefaultDSN(t *testing.T) {
	var seen string
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		seen = dsn
		return nil, errors.New("refused")
	})
	defer restore()

	if _, err := NewStore("", nil); err == nil {
		t.Fatal("expected error")
	}
	if seen != defaultDSN {
		t.Fatalf("expected default dsn, got %s", seen)
	}
}
