package migration

import (
	"errors"
	"testing"
	"testing/fstest"
)

func TestScanMigrationsOrdersByVersion(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/010_add_index.sql":        {Data: []byte("CREATE INDEX idx ON t(a);")},
		"sql/002_create_table.sql":     {Data: []byte("-- Description: create t\nCREATE TABLE t (a TEXT);")},
		"sql/README.md":                {Data: []byte("ignored")},
		"sql/001_bootstrap_pragma.sql": {Data: []byte("-- leading comment\nCREATE TABLE meta (k TEXT);\n")},
	}

	migrations, err := NewFileScanner().ScanMigrations(fsys, "sql")
	if err != nil {
		t.Fatalf("ScanMigrations failed: %v", err)
	}
	if len(migrations) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migrations))
	}
	got := []string{migrations[0].Version, migrations[1].Version, migrations[2].Version}
	if got[0] != "001" || got[1] != "002" || got[2] != "010" {
		t.Fatalf("expected numeric ordering, got %v", got)
	}
	if migrations[1].Description != "create t" {
		t.Fatalf("expected description from content, got %q", migrations[1].Description)
	}
	if migrations[0].Description != "bootstrap pragma" {
		t.Fatalf("expected description from filename, got %q", migrations[0].Description)
	}
	if migrations[0].Checksum == "" || migrations[0].Checksum == migrations[1].Checksum {
		t.Fatalf("expected distinct checksums, got %q and %q", migrations[0].Checksum, migrations[1].Checksum)
	}
}

func TestScanMigrationsRejectsBadFiles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fsys fstest.MapFS
		want error
	}{
		{
			name: "bad filename",
			fsys: fstest.MapFS{"sql/create.sql": {Data: []byte("CREATE TABLE t (a TEXT);")}},
			want: ErrInvalidMigrationFile,
		},
		{
			name: "duplicate version",
			fsys: fstest.MapFS{
				"sql/001_a.sql": {Data: []byte("CREATE TABLE a (x TEXT);")},
				"sql/001_b.sql": {Data: []byte("CREATE TABLE b (x TEXT);")},
			},
			want: ErrDuplicateVersion,
		},
		{
			name: "comment only",
			fsys: fstest.MapFS{"sql/001_empty.sql": {Data: []byte("-- nothing here\n")}},
			want: ErrInvalidMigrationFile,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewFileScanner().ScanMigrations(tc.fsys, "sql"); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSplitStatementsDropsComments(t *testing.T) {
	t.Parallel()

	stmts := splitStatements("-- header\nCREATE TABLE a (x TEXT);\n\n-- trailing\nCREATE INDEX i ON a(x);\n")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if stmts[0] != "CREATE TABLE a (x TEXT)" {
		t.Fatalf("unexpected first statement %q", stmts[0])
	}
}
