package postgres

import (
	"io/fs"
	"strings"
	"testing"
)

func TestEmbeddedMigrationsAreWellFormed(t *testing.T) {
	if err := ValidateMigrations(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestInitMigrationEnforcesSingleOpenSession(t *testing.T) {
	body, err := fs.ReadFile(migrationFS, "migrations/20260301090000_init_pos.sql")
	if err != nil {
		t.Fatalf("read init migration: %v", err)
	}
	if !strings.Contains(string(body), "ON register_sessions ((true)) WHERE is_open") {
		t.Fatalf("expected partial unique index on open register sessions")
	}
}
