// Package repostore resolves the --db-driver flag shared by cmd/vstate
// and cmd/vstate-server into a concrete pkg/store.Repository, opening
// and schema-checking a *sql.DB for the relational drivers.
package repostore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/chartlylabs/vstate/pkg/store"
)

// Driver names accepted by --db-driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open resolves driver into a ready Repository. dsn is ignored for
// "memory". For "sqlite" a sensible default DSN is used if dsn is empty.
func Open(ctx context.Context, driver, dsn string) (store.Repository, func() error, error) {
	switch driver {
	case "", DriverMemory:
		return store.NewMemoryRepository(), func() error { return nil }, nil
	case DriverSQLite:
		if dsn == "" {
			dsn = "file:vstate.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=ON"
		}
		db, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open sqlite: %w", err)
		}
		repo := store.NewSQLiteRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	case DriverPostgres:
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres driver requires --db-dsn")
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		repo := store.NewPostgresRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, db.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown --db-driver %q (want memory|sqlite|postgres)", driver)
	}
}
