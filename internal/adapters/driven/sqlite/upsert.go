package sqlite

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

// batchSize bounds rows per transaction, balancing atomicity against
// write-lock duration.
const batchSize = 256

// queryCache memoizes generated upsert statements per table.
var queryCache sync.Map

// Upsert writes rows with insert-or-update semantics keyed by the
// table's composite primary key. On conflict every non-key column except
// created_at is overwritten, so created_at survives from the first
// insert while last_updated tracks the latest write.
//
// Rows are grouped into transactions of batchSize. A failing batch rolls
// back atomically and surfaces a *domain.StoreError; rows committed by
// earlier batches remain. The engine never deletes.
func (s *Store) Upsert(ctx context.Context, spec domain.TableSpec, rows []any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	query := upsertQuery(spec)
	written := 0

	for start := 0; start < len(rows); start += batchSize {
		end := min(start+batchSize, len(rows))

		if err := s.upsertBatch(ctx, query, rows[start:end]); err != nil {
			return written, &domain.StoreError{Table: spec.Name, Err: err}
		}
		written += end - start
	}

	s.log.Debug("upsert complete",
		zap.String("table", spec.Name),
		zap.Int("rows", written))
	return written, nil
}

// upsertBatch writes one batch inside a single transaction.
func (s *Store) upsertBatch(ctx context.Context, query string, rows []any) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}

	stmt, err := tx.PrepareNamedContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare upsert: %w", err)
	}

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row); err != nil {
			stmt.Close()
			tx.Rollback()
			return fmt.Errorf("exec upsert: %w", err)
		}
	}

	stmt.Close()
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// upsertQuery builds (and caches) the named upsert statement for a table.
func upsertQuery(spec domain.TableSpec) string {
	if cached, ok := queryCache.Load(spec.Name); ok {
		return cached.(string)
	}

	placeholders := make([]string, len(spec.Cols))
	for i, col := range spec.Cols {
		placeholders[i] = ":" + col
	}

	key := make(map[string]bool, len(spec.Key))
	for _, k := range spec.Key {
		key[k] = true
	}

	var updates []string
	for _, col := range spec.Cols {
		// Key columns identify the row; created_at is set once at first
		// insert and never modified.
		if key[col] || col == domain.CreatedAtCol {
			continue
		}
		updates = append(updates, fmt.Sprintf("%s = excluded.%s", col, col))
	}

	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		spec.Name,
		strings.Join(spec.Cols, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(spec.Key, ", "),
		strings.Join(updates, ", "),
	)

	queryCache.Store(spec.Name, query)
	return query
}
