// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migration files are read from an fs.FS, usually an embed.FS compiled into
// the binary, and must be named {version}_{description}.sql (for example
// "001_create_reminders.sql"). Each file runs inside its own transaction and
// is recorded in the schema_migrations table together with its checksum, so
// a file is never applied twice.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewFileScanner(), migration.NewSQLiteExecutor(db), migrations, ".", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
