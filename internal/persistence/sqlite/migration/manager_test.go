package migration

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Open(InMemorySQLiteConfig())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerAppliesPendingMigrationsOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_create_items.sql": {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY, name TEXT NOT NULL);")},
		"m/002_index_items.sql":  {Data: []byte("CREATE INDEX idx_items_name ON items(name);")},
	}
	manager := NewManager(NewFileScanner(), NewSQLiteExecutor(db), fsys, "m", quietLogger())

	applied, err := manager.RunMigrations(ctx)
	if err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}
	if applied != 2 {
		t.Fatalf("expected 2 migrations applied, got %d", applied)
	}

	if _, err := db.ExecContext(ctx, `INSERT INTO items (id, name) VALUES ('a', 'first')`); err != nil {
		t.Fatalf("expected items table to exist: %v", err)
	}

	applied, err = manager.RunMigrations(ctx)
	if err != nil {
		t.Fatalf("second RunMigrations failed: %v", err)
	}
	if applied != 0 {
		t.Fatalf("expected no migrations on second run, got %d", applied)
	}

	status, err := manager.Status(ctx)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.CurrentVersion != "002" || len(status.Pending) != 0 || len(status.Applied) != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestManagerRollsBackFailedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_broken.sql": {Data: []byte("CREATE TABLE ok (id TEXT);\nINSERT INTO missing_table VALUES (1);")},
	}
	manager := NewManager(NewFileScanner(), NewSQLiteExecutor(db), fsys, "m", quietLogger())

	_, err := manager.RunMigrations(ctx)
	if !errors.Is(err, ErrMigrationFailed) {
		t.Fatalf("expected ErrMigrationFailed, got %v", err)
	}
	var dbErr *DatabaseError
	if !errors.As(err, &dbErr) {
		t.Fatalf("expected DatabaseError in chain, got %T", err)
	}

	var name string
	err = db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'ok'`).Scan(&name)
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("expected table creation to be rolled back, got %v (%q)", err, name)
	}
}

func TestManagerDetectsEditedMigration(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	original := fstest.MapFS{"m/001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT);")}}
	if _, err := NewManager(NewFileScanner(), NewSQLiteExecutor(db), original, "m", quietLogger()).RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations failed: %v", err)
	}

	edited := fstest.MapFS{"m/001_create.sql": {Data: []byte("CREATE TABLE a (id TEXT, extra TEXT);")}}
	_, err := NewManager(NewFileScanner(), NewSQLiteExecutor(db), edited, "m", quietLogger()).RunMigrations(ctx)
	if !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestManagerRejectsGaps(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	fsys := fstest.MapFS{
		"m/001_a.sql": {Data: []byte("CREATE TABLE a (id TEXT);")},
		"m/003_c.sql": {Data: []byte("CREATE TABLE c (id TEXT);")},
	}
	_, err := NewManager(NewFileScanner(), NewSQLiteExecutor(db), fsys, "m", quietLogger()).RunMigrations(context.Background())
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestSQLiteConfigValidate(t *testing.T) {
	t.Parallel()

	if err := DefaultSQLiteConfig("file:reminders.db").Validate(); err != nil {
		t.Fatalf("expected default config to be valid, got %v", err)
	}
	bad := DefaultSQLiteConfig("reminders.db")
	bad.JournalMode = "sideways"
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected invalid journal mode to fail")
	}
	if err := (SQLiteConfig{}).Validate(); err == nil {
		t.Fatalf("expected empty DSN to fail")
	}
}
