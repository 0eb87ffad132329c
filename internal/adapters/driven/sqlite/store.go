// Package sqlite implements the relational store contract over a single
// SQLite file. All writers serialize through one connection; each upsert
// batch is one transaction.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

// Store is an explicit store handle. It is passed into the engine and
// never held as ambient state, so tests can substitute an in-memory file.
type Store struct {
	db  *sqlx.DB
	log *zap.Logger
}

// Open opens (creating if needed) the store at path. Pass ":memory:" for
// an in-memory store in tests.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	// One logical connection: writers serialize, and an in-memory store
	// keeps a single coherent database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// EnsureSchema creates the canonical tables when absent. Idempotent; it
// performs no migrations.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// ReadAllByTenant returns every row of a table for one tenant, as column
// name to value maps.
func (s *Store) ReadAllByTenant(ctx context.Context, spec domain.TableSpec, tenantID string) ([]map[string]any, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE tenant_id = ?", spec.Name)

	rows, err := s.db.QueryxContext(ctx, query, tenantID)
	if err != nil {
		return nil, &domain.StoreError{Table: spec.Name, Err: err}
	}
	defer rows.Close()

	var out []map[string]any
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, &domain.StoreError{Table: spec.Name, Err: err}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Table: spec.Name, Err: err}
	}

	return out, nil
}

// Close releases the store handle.
func (s *Store) Close() error {
	return s.db.Close()
}
