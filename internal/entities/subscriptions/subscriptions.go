// Package subscriptions syncs commerce subscriptions. The upstream
// status string is collapsed to a single boolean: "Enabled" is active,
// everything else (Warning, Suspended, Deleted, LockedOut) is not, and
// the original string is discarded.
package subscriptions

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// Table describes the canonical subscriptions table.
var Table = domain.TableSpec{
	Name: "subscriptions",
	Key:  []string{"subscription_id", "tenant_id"},
	Cols: []string{
		"subscription_id", "tenant_id", "commerce_subscription_id",
		"sku_id", "sku_part_number", "is_active", "is_trial",
		"total_licenses", "purchased_at", "next_lifecycle_at",
		"created_at", "last_updated",
	},
}

// Record is the canonical subscription row.
type Record struct {
	SubscriptionID         string  `db:"subscription_id"`
	TenantID               string  `db:"tenant_id"`
	CommerceSubscriptionID string  `db:"commerce_subscription_id"`
	SkuID                  string  `db:"sku_id"`
	SkuPartNumber          string  `db:"sku_part_number"`
	IsActive               bool    `db:"is_active"`
	IsTrial                bool    `db:"is_trial"`
	TotalLicenses          int     `db:"total_licenses"`
	PurchasedAt            *string `db:"purchased_at"`
	NextLifecycleAt        *string `db:"next_lifecycle_at"`
	CreatedAt              string  `db:"created_at"`
	LastUpdated            string  `db:"last_updated"`
}

// Raw is the Graph company subscription shape.
type Raw struct {
	ID                     string `json:"id"`
	CommerceSubscriptionID string `json:"commerceSubscriptionId"`
	SkuID                  string `json:"skuId"`
	SkuPartNumber          string `json:"skuPartNumber"`
	Status                 string `json:"status"`
	IsTrial                bool   `json:"isTrial"`
	TotalLicenses          int    `json:"totalLicenses"`
	CreatedDateTime        string `json:"createdDateTime"`
	NextLifecycleDateTime  string `json:"nextLifecycleDateTime"`
}

// Transform maps a raw subscription onto the canonical row.
func Transform(tc domain.TenantContext, raw Raw, now time.Time) (Record, error) {
	if raw.ID == "" {
		return Record{}, domain.ErrInvalidRecord
	}

	stamp := domain.Stamp(now)
	return Record{
		SubscriptionID:         raw.ID,
		TenantID:               tc.TenantID,
		CommerceSubscriptionID: raw.CommerceSubscriptionID,
		SkuID:                  raw.SkuID,
		SkuPartNumber:          raw.SkuPartNumber,
		IsActive:               raw.Status == "Enabled",
		IsTrial:                raw.IsTrial,
		TotalLicenses:          raw.TotalLicenses,
		PurchasedAt:            optional(raw.CreatedDateTime),
		NextLifecycleAt:        optional(raw.NextLifecycleDateTime),
		CreatedAt:              stamp,
		LastUpdated:            stamp,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs the subscriptions family for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates a subscriptions syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("subscriptions")}
}

// Sync lists the tenant's subscriptions and upserts the canonical rows.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	pager := s.client.List("/directory/subscriptions", graph.Query{Beta: true})

	now := time.Now()
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return stats, err
		}

		rows := make([]any, 0, len(page))
		for _, item := range page {
			var raw Raw
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.Skipped++
				continue
			}
			rec, err := Transform(tc, raw, now)
			if err != nil {
				stats.Skipped++
				continue
			}
			rows = append(rows, rec)
		}

		written, err := s.store.Upsert(ctx, Table, rows)
		stats.Rows += written
		if err != nil {
			return stats, err
		}
	}

	s.log.Info("family synced",
		zap.String("tenant_id", tc.TenantID),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}
