// Package migration applies versioned SQL files to a SQLite database.
//
// Migration files are read from an fs.FS, usually an embedded directory, and
// must be named {version}_{description}.sql (e.g. "001_timetable_slots.sql").
// Applied versions are tracked in a schema_migrations table so each file runs
// exactly once. Every file runs inside its own transaction.
//
// Statements are split on ';', so comments inside migration files must not
// contain semicolons.
//
// Example usage:
//
//	manager := migration.NewManager(migration.NewScanner(fsys, "migrations"), migration.NewSQLiteExecutor(db), logger)
//	if _, err := manager.Run(ctx); err != nil {
//		return err
//	}
package migration
