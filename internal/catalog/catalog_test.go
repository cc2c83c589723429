package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected catalog file to exist: %v", err)
	}

	var version int
	if err := store.DB().QueryRow(`SELECT version FROM schema_meta WHERE id = 1`).Scan(&version); err != nil {
		t.Fatalf("read schema version: %v", err)
	}
	if version != CurrentSchemaVersion {
		t.Errorf("expected schema version %d, got %d", CurrentSchemaVersion, version)
	}
}

func TestOpen_ReopenPreservesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	ctx := context.Background()
	r, err := store.CreateRule(ctx, RuleInput{Name: strp("Persisted"), Enabled: boolp(false)})
	if err != nil {
		t.Fatalf("CreateRule: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetRuleByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetRuleByID after reopen: %v", err)
	}
	if got.Name != "Persisted" {
		t.Errorf("expected rule to survive reopen, got %q", got.Name)
	}
}

func TestOpen_RecreatesIncompatibleSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")

	// Seed a database, then drop a table a later migration step depends on
	// (addColumnIfMissing targets "commands") and roll schema_meta back, so
	// the next Open's migration run fails with "no such table" and exercises
	// the delete-and-recreate recovery path.
	seed, err := Open(path)
	if err != nil {
		t.Fatalf("seed Open: %v", err)
	}
	if _, err := seed.DB().Exec(`DROP TABLE commands`); err != nil {
		t.Fatalf("drop commands: %v", err)
	}
	if _, err := seed.DB().Exec(`UPDATE schema_meta SET version = 12 WHERE id = 1`); err != nil {
		t.Fatalf("reset schema version: %v", err)
	}
	if err := seed.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("expected recovery from an incompatible schema, got: %v", err)
	}
	defer reopened.Close()

	if _, err := reopened.CreateRule(context.Background(), RuleInput{Name: strp("Fresh"), Enabled: boolp(false)}); err != nil {
		t.Fatalf("expected a usable catalog after recovery, got: %v", err)
	}
}
