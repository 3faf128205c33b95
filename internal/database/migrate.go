package database

import (
	"context"
	"embed"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/tern/v2/migrate"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const versionTable = "statuslog_schema_version"

// EnsureSchema applies the embedded migrations on a pooled connection.
// All DDL is conditional (IF NOT EXISTS), so repeated or concurrent
// callers never error and never duplicate tables or indexes.
func (m *Manager) EnsureSchema(ctx context.Context) error {
	return m.AcquireFunc(ctx, func(conn *pgxpool.Conn) error {
		migrator, err := migrate.NewMigrator(ctx, conn.Conn(), versionTable)
		if err != nil {
			return err
		}
		sub, err := fs.Sub(migrationsFS, "migrations")
		if err != nil {
			return err
		}
		if err := migrator.LoadMigrations(sub); err != nil {
			return err
		}
		return migrator.Migrate(ctx)
	})
}
