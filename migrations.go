package podauth

import (
	"context"
	"embed"
	"io/fs"

	"github.com/goliatone/go-errors"
	"github.com/pressly/goose/v3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// Migrate applies every pending migration for the dialect db runs on
func Migrate(ctx context.Context, db *bun.DB) ([]*goose.MigrationResult, error) {
	var (
		gooseDialect goose.Dialect
		dir          string
	)

	switch db.Dialect().Name() {
	case dialect.PG:
		gooseDialect, dir = goose.DialectPostgres, "data/sql/migrations/postgres"
	case dialect.SQLite:
		gooseDialect, dir = goose.DialectSQLite3, "data/sql/migrations/sqlite"
	default:
		return nil, errors.New("unsupported database dialect", errors.CategoryInternal).
			WithMetadata(map[string]any{
				"dialect": db.Dialect().Name().String(),
			})
	}

	fsys, err := fs.Sub(migrationsFS, dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to open migrations")
	}

	provider, err := goose.NewProvider(gooseDialect, db.DB, fsys)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create migration provider")
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return results, errors.Wrap(err, errors.CategoryInternal, "failed to apply migrations")
	}

	return results, nil
}
