package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/entities"
)

// Orchestrator runs sync passes: resolve tenants, then fan out over a
// bounded tenant worker pool, each tenant running its entity families
// concurrently. Tenants are isolated: an error in one is recorded in the
// result and never stops a sibling.
type Orchestrator struct {
	resolver *Resolver
	clients  ClientFactory
	store    driven.UpsertStore
	builders map[domain.Family]entities.Builder
	log      *zap.Logger

	tenantWorkers int
	familyWorkers int
}

// NewOrchestrator creates an orchestrator. Worker bounds below one are
// raised to one.
func NewOrchestrator(resolver *Resolver, clients ClientFactory, store driven.UpsertStore, tenantWorkers, familyWorkers int, log *zap.Logger) *Orchestrator {
	if tenantWorkers < 1 {
		tenantWorkers = 1
	}
	if familyWorkers < 1 {
		familyWorkers = 1
	}
	return &Orchestrator{
		resolver:      resolver,
		clients:       clients,
		store:         store,
		builders:      entities.Builders(),
		log:           log.Named("sync"),
		tenantWorkers: tenantWorkers,
		familyWorkers: familyWorkers,
	}
}

// Sync runs one pass over the requested families and tenant scope. An
// empty family list means every family; an empty scope means every
// resolved tenant. The returned result is complete even when individual
// tenants failed; only tenant resolution itself is run-fatal.
func (o *Orchestrator) Sync(ctx context.Context, families []domain.Family, scope domain.TenantScope) (*domain.SyncResult, error) {
	start := time.Now()
	result := domain.NewSyncResult(uuid.NewString(), start)

	if len(families) == 0 {
		families = domain.AllFamilies()
	}

	tenants, err := o.resolver.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve tenants: %w", err)
	}

	o.log.Info("sync starting",
		zap.String("run_id", result.RunID),
		zap.Int("tenants", len(tenants)),
		zap.Int("families", len(families)))

	sem := make(chan struct{}, o.tenantWorkers)
	var wg sync.WaitGroup
	for _, tc := range tenants {
		if !scope.Includes(tc.TenantID) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(tc domain.TenantContext) {
			defer wg.Done()
			defer func() { <-sem }()
			o.syncTenant(ctx, tc, families, result)
		}(tc)
	}
	wg.Wait()

	result.Duration = time.Since(start)
	o.log.Info("sync finished",
		zap.String("run_id", result.RunID),
		zap.Int("rows", result.RowsWritten),
		zap.Int("tenants_synced", result.TenantsSynced),
		zap.Duration("duration", result.Duration))
	return result, nil
}

// syncTenant runs the requested families for one tenant, bounded by the
// family worker pool. Family errors are recorded and do not stop the
// tenant's other families.
func (o *Orchestrator) syncTenant(ctx context.Context, tc domain.TenantContext, families []domain.Family, result *domain.SyncResult) {
	log := o.log.With(zap.String("tenant_id", tc.TenantID))
	log.Info("tenant sync starting", zap.Bool("premium", tc.Premium))

	client := o.clients(tc.TenantID)

	sem := make(chan struct{}, o.familyWorkers)
	var wg sync.WaitGroup
	for _, family := range families {
		builder, ok := o.builders[family]
		if !ok {
			result.RecordError(tc.TenantID, fmt.Errorf("no syncer for family %q", family))
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(family domain.Family, builder entities.Builder) {
			defer wg.Done()
			defer func() { <-sem }()

			stats, err := builder(client, o.store, log).Sync(ctx, tc)
			result.RecordStats(family, stats)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrPermissionDenied):
				// The grant does not cover this family; skip it and let the
				// tenant's other families continue.
				result.RecordSkip(tc.TenantID, family)
				log.Info("family skipped, permission not granted",
					zap.String("family", string(family)),
					zap.Error(err))
			default:
				result.RecordError(tc.TenantID, fmt.Errorf("%s: %w", family, err))
				log.Warn("family failed",
					zap.String("family", string(family)),
					zap.Error(err))
			}
		}(family, builder)
	}
	wg.Wait()

	if len(result.TenantErrors(tc.TenantID)) == 0 {
		result.RecordTenantDone()
	}
	log.Info("tenant sync finished")
}
