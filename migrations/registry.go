// Package migrations exposes the embedded todo schema migrations, one tree
// per supported dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	todoclient "github.com/todotomorrow/go-client"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	// SourceLabel identifies this module's migrations to a shared runner.
	SourceLabel = "todoclient"
)

// Source is one dialect's migration filesystem.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Sources returns the embedded migration trees. The postgres tree is the
// root; the sqlite variants live in a subdirectory. Each tree must carry at
// least one up migration.
func Sources() ([]Source, error) {
	root := todoclient.GetCoreMigrationsFS()

	base, err := fs.Sub(root, "data/sql/migrations")
	if err != nil {
		return nil, fmt.Errorf("migrations: data/sql/migrations not found: %w", err)
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite filesystem: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: "data/sql/migrations", FS: base},
		{Dialect: DialectSQLite, Path: "data/sql/migrations/sqlite", FS: sqliteFS},
	}
	for _, src := range sources {
		matches, globErr := fs.Glob(src.FS, "*.up.sql")
		if globErr != nil {
			return nil, fmt.Errorf("migrations: glob %s %s: %w", src.Dialect, src.Path, globErr)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("migrations: %s filesystem %q has no *.up.sql files", src.Dialect, src.Path)
		}
	}
	return sources, nil
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

// Register feeds the embedded trees to a migration runner. With no dialects
// given, both trees register.
func Register(ctx context.Context, registerFn RegisterFunc, dialects ...string) error {
	if registerFn == nil {
		return fmt.Errorf("migrations: register function is required")
	}
	sources, err := Sources()
	if err != nil {
		return err
	}

	wanted := map[string]bool{}
	for _, dialect := range dialects {
		dialect = strings.TrimSpace(strings.ToLower(dialect))
		if dialect != "" {
			wanted[dialect] = true
		}
	}

	for _, src := range sources {
		if len(wanted) > 0 && !wanted[src.Dialect] {
			continue
		}
		if err := registerFn(ctx, src.Dialect, SourceLabel, src.FS); err != nil {
			return fmt.Errorf("migrations: register %s (%s): %w", src.Dialect, src.Path, err)
		}
	}
	return nil
}
