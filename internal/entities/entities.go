// Package entities wires the per-family transformers to the sync engine.
// Each family lives in its own subpackage with the same shape: raw Graph
// record structs, a $select field list, a Transform to the canonical row,
// and a Syncer that drains the paginated client into the upsert engine.
package entities

import (
	"context"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/entities/applications"
	"github.com/custodia-labs/tenantsync/internal/entities/devices"
	"github.com/custodia-labs/tenantsync/internal/entities/groups"
	"github.com/custodia-labs/tenantsync/internal/entities/policies"
	"github.com/custodia-labs/tenantsync/internal/entities/subscriptions"
	"github.com/custodia-labs/tenantsync/internal/entities/users"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// Syncer syncs one entity family for one tenant.
type Syncer interface {
	// Sync fetches, transforms and upserts the family's records. A failure
	// aborts this family for this tenant only.
	Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error)
}

// Builder constructs a family Syncer bound to one tenant's client.
type Builder func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer

// Builders maps every entity family to its constructor.
func Builders() map[domain.Family]Builder {
	return map[domain.Family]Builder{
		domain.FamilyUsers: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return users.New(c, store, log)
		},
		domain.FamilyDevices: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return devices.New(c, store, log)
		},
		domain.FamilyApplications: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return applications.New(c, store, log)
		},
		domain.FamilyPolicies: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return policies.New(c, store, log)
		},
		domain.FamilySubscriptions: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return subscriptions.New(c, store, log)
		},
		domain.FamilyGroups: func(c *graph.Client, store driven.UpsertStore, log *zap.Logger) Syncer {
			return groups.New(c, store, log)
		},
	}
}
