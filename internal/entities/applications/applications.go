// Package applications syncs service principals: the enterprise
// applications registered in the tenant, their owners and their earliest
// credential expiries. Sign-in activity comes from the beta reports
// surface and degrades to null when unavailable.
package applications

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// inactivityWindow is the sign-in age beyond which an application counts
// as inactive.
const inactivityWindow = 90 * 24 * time.Hour

// Table describes the canonical service principals table.
var Table = domain.TableSpec{
	Name: "service_principals",
	Key:  []string{"sp_id", "tenant_id"},
	Cols: []string{
		"sp_id", "tenant_id", "app_id", "display_name", "publisher",
		"sp_type", "account_enabled", "sign_in_audience", "owners",
		"key_credential_expiry", "password_credential_expiry",
		"last_sign_in", "created_at", "last_updated",
	},
}

// Record is the canonical service principal row.
type Record struct {
	SPID                     string  `db:"sp_id"`
	TenantID                 string  `db:"tenant_id"`
	AppID                    string  `db:"app_id"`
	DisplayName              string  `db:"display_name"`
	Publisher                string  `db:"publisher"`
	SPType                   string  `db:"sp_type"`
	AccountEnabled           bool    `db:"account_enabled"`
	SignInAudience           string  `db:"sign_in_audience"`
	Owners                   *string `db:"owners"`
	KeyCredentialExpiry      *string `db:"key_credential_expiry"`
	PasswordCredentialExpiry *string `db:"password_credential_expiry"`
	LastSignIn               *string `db:"last_sign_in"`
	CreatedAt                string  `db:"created_at"`
	LastUpdated              string  `db:"last_updated"`
}

type credential struct {
	EndDateTime string `json:"endDateTime"`
}

// Raw is the Graph service principal shape this family consumes.
type Raw struct {
	ID                  string       `json:"id"`
	AppID               string       `json:"appId"`
	DisplayName         string       `json:"displayName"`
	PublisherName       string       `json:"publisherName"`
	Type                string       `json:"servicePrincipalType"`
	AccountEnabled      bool         `json:"accountEnabled"`
	SignInAudience      string       `json:"signInAudience"`
	KeyCredentials      []credential `json:"keyCredentials"`
	PasswordCredentials []credential `json:"passwordCredentials"`
}

// Fields is the $select list for a service principal listing.
func Fields() []string {
	return []string{
		"id", "appId", "displayName", "publisherName",
		"servicePrincipalType", "accountEnabled", "signInAudience",
		"keyCredentials", "passwordCredentials",
	}
}

// IsInactive reports whether an application's last sign-in is absent or
// older than the inactivity window. Pure; never persisted.
func IsInactive(now time.Time, lastSignIn *time.Time) bool {
	if lastSignIn == nil || lastSignIn.IsZero() {
		return true
	}
	return now.Sub(*lastSignIn) > inactivityWindow
}

// earliestExpiry returns the earliest parseable end date among the
// credentials, or nil when there is none.
func earliestExpiry(creds []credential) *string {
	var earliest time.Time
	var out *string
	for _, c := range creds {
		t, err := time.Parse(time.RFC3339, c.EndDateTime)
		if err != nil {
			continue
		}
		if out == nil || t.Before(earliest) {
			earliest = t
			s := c.EndDateTime
			out = &s
		}
	}
	return out
}

// Transform maps a raw service principal onto the canonical row.
func Transform(tc domain.TenantContext, raw Raw, owners []string, lastSignIn string, now time.Time) (Record, error) {
	if raw.ID == "" {
		return Record{}, domain.ErrInvalidRecord
	}

	var ownerList *string
	if len(owners) > 0 {
		joined := strings.Join(owners, ", ")
		ownerList = &joined
	}

	stamp := domain.Stamp(now)
	return Record{
		SPID:                     raw.ID,
		TenantID:                 tc.TenantID,
		AppID:                    raw.AppID,
		DisplayName:              raw.DisplayName,
		Publisher:                raw.PublisherName,
		SPType:                   raw.Type,
		AccountEnabled:           raw.AccountEnabled,
		SignInAudience:           raw.SignInAudience,
		Owners:                   ownerList,
		KeyCredentialExpiry:      earliestExpiry(raw.KeyCredentials),
		PasswordCredentialExpiry: earliestExpiry(raw.PasswordCredentials),
		LastSignIn:               optional(lastSignIn),
		CreatedAt:                stamp,
		LastUpdated:              stamp,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs the applications family for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates an applications syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("applications")}
}

// Sync lists service principals, joins in owners and sign-in activity,
// and upserts the canonical rows.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	signIns := s.fetchSignInActivity(ctx, tc)

	pager := s.client.List("/servicePrincipals", graph.Query{
		Select: Fields(),
		Top:    999,
	})

	now := time.Now()
	inactive := 0
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

			rec, err := Transform(tc, raw, s.fetchOwners(ctx, raw.ID), signIns[raw.AppID], now)
			if err != nil {
				stats.Skipped++
				continue
			}
			rows = append(rows, rec)

			var last *time.Time
			if t, perr := time.Parse(time.RFC3339, signIns[raw.AppID]); perr == nil {
				last = &t
			}
			if IsInactive(now, last) {
				inactive++
			}
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
		zap.Int("inactive", inactive),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// fetchSignInActivity loads the service principal sign-in report into an
// appId to last-sign-in map. Any failure degrades to an empty map.
func (s *Syncer) fetchSignInActivity(ctx context.Context, tc domain.TenantContext) map[string]string {
	items, err := s.client.ListAll(ctx, "/reports/servicePrincipalSignInActivities", graph.Query{
		Beta: true,
	})
	if err != nil {
		s.log.Warn("sign-in activity report unavailable",
			zap.String("tenant_id", tc.TenantID),
			zap.Error(err))
		return nil
	}

	activity := make(map[string]string, len(items))
	for _, item := range items {
		var row struct {
			AppID      string `json:"appId"`
			LastSignIn string `json:"lastSignInDateTime"`
		}
		if err := json.Unmarshal(item, &row); err != nil || row.AppID == "" {
			continue
		}
		activity[row.AppID] = row.LastSignIn
	}
	return activity
}

// fetchOwners returns the owners' display names. Lookup failures degrade
// to no owners.
func (s *Syncer) fetchOwners(ctx context.Context, spID string) []string {
	items, err := s.client.ListAll(ctx, "/servicePrincipals/"+spID+"/owners", graph.Query{
		Select: []string{"displayName"},
	})
	if err != nil {
		s.log.Debug("owner lookup failed",
			zap.String("sp_id", spID),
			zap.Error(err))
		return nil
	}

	var owners []string
	for _, item := range items {
		var owner struct {
			DisplayName string `json:"displayName"`
		}
		if err := json.Unmarshal(item, &owner); err != nil || owner.DisplayName == "" {
			continue
		}
		owners = append(owners, owner.DisplayName)
	}
	return owners
}
