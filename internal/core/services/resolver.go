// Package services holds the engine's use cases: tenant resolution and
// the sync orchestrator.
package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/config"
	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// ClientFactory builds a Graph client bound to one tenant.
type ClientFactory func(tenantID string) *graph.Client

// ResolverConfig selects how the run's tenant set is determined.
type ResolverConfig struct {
	// Mode is one of config.ModeSingle, ModePartner, ModeRoster.
	Mode string
	// TenantID and TenantName describe the fixed tenant in single mode.
	TenantID   string
	TenantName string
	// PartnerTenantID is the tenant whose contracts are enumerated in
	// partner mode.
	PartnerTenantID string
	// RosterPath is the TOML roster file in roster mode.
	RosterPath string
}

// Resolver yields the tenant contexts a sync run operates on. Each
// context carries a premium flag resolved by probing the tenant's
// licensing tier; a failed probe degrades to non-premium, never fails
// the run.
type Resolver struct {
	cfg     ResolverConfig
	clients ClientFactory
	log     *zap.Logger
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig, clients ClientFactory, log *zap.Logger) *Resolver {
	return &Resolver{cfg: cfg, clients: clients, log: log.Named("resolver")}
}

// Resolve determines the tenant set for a run.
func (r *Resolver) Resolve(ctx context.Context) ([]domain.TenantContext, error) {
	var (
		tenants []domain.TenantContext
		err     error
	)

	switch r.cfg.Mode {
	case config.ModeSingle:
		tenants = []domain.TenantContext{{
			TenantID:    r.cfg.TenantID,
			DisplayName: r.cfg.TenantName,
		}}
	case config.ModePartner:
		tenants, err = r.resolvePartner(ctx)
	case config.ModeRoster:
		tenants, err = r.resolveRoster()
	default:
		err = fmt.Errorf("unknown tenant mode %q", r.cfg.Mode)
	}
	if err != nil {
		return nil, err
	}

	for i := range tenants {
		tenants[i].Premium = r.probePremium(ctx, tenants[i].TenantID)
	}

	r.log.Info("tenants resolved",
		zap.String("mode", r.cfg.Mode),
		zap.Int("count", len(tenants)))
	return tenants, nil
}

// resolvePartner enumerates the customer tenants under the partner
// relationship. A failure here is run-fatal: without the contract list
// there is nothing to sync.
func (r *Resolver) resolvePartner(ctx context.Context) ([]domain.TenantContext, error) {
	client := r.clients(r.cfg.PartnerTenantID)

	items, err := client.ListAll(ctx, "/contracts", graph.Query{
		Select: []string{"customerId", "displayName"},
		Top:    999,
	})
	if err != nil {
		return nil, fmt.Errorf("list partner contracts: %w", err)
	}

	tenants := make([]domain.TenantContext, 0, len(items))
	for _, item := range items {
		var contract struct {
			CustomerID  string `json:"customerId"`
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(item, &contract); err != nil || contract.CustomerID == "" {
			continue
		}
		tenants = append(tenants, domain.TenantContext{
			TenantID:    contract.CustomerID,
			DisplayName: contract.DisplayName,
		})
	}
	return tenants, nil
}

// resolveRoster reads the static tenant roster file.
func (r *Resolver) resolveRoster() ([]domain.TenantContext, error) {
	roster, err := config.LoadRoster(r.cfg.RosterPath)
	if err != nil {
		return nil, err
	}

	tenants := make([]domain.TenantContext, 0, len(roster.Tenants))
	for _, t := range roster.Tenants {
		tenants = append(tenants, domain.TenantContext{
			TenantID:    t.TenantID,
			DisplayName: t.DisplayName,
		})
	}
	return tenants, nil
}

// probePremium tests whether the tenant's licensing tier exposes sign-in
// activity. Any failure, auth included, reads as non-premium.
func (r *Resolver) probePremium(ctx context.Context, tenantID string) bool {
	client := r.clients(tenantID)

	_, err := client.Get(ctx, "/users", graph.Query{
		Select: []string{"id", "signInActivity"},
		Top:    1,
		Beta:   true,
	})
	if err != nil {
		r.log.Debug("premium probe negative",
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return false
	}
	return true
}
