// Package driven defines the narrow contracts the sync engine consumes
// from its environment: token acquisition and the relational store.
package driven

import (
	"context"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
)

// TokenProvider supplies a valid bearer token for one tenant, refreshing
// transparently ahead of expiry.
type TokenProvider interface {
	// GetToken returns a bearer token valid for at least the safety margin.
	GetToken(ctx context.Context) (string, error)
}

// UpsertStore is the write side of the relational store contract.
type UpsertStore interface {
	// Upsert durably writes rows with insert-or-update semantics keyed by
	// the table's composite primary key. Returns the number of rows written.
	// Batches are transactional: a failing batch rolls back atomically and
	// surfaces a *domain.StoreError.
	Upsert(ctx context.Context, spec domain.TableSpec, rows []any) (int, error)
}

// ReadStore is the narrow read side used by callers and tests.
type ReadStore interface {
	// ReadAllByTenant returns every row of a table for one tenant.
	ReadAllByTenant(ctx context.Context, spec domain.TableSpec, tenantID string) ([]map[string]any, error)
}

// Store combines the read and write contracts.
type Store interface {
	UpsertStore
	ReadStore
}
