// Package policies syncs conditional-access policies and resolves their
// user and application targets into junction rows. Targets are resolved
// at sync time: the special include markers ("All",
// "GuestsOrExternalUsers") expand against the tenant's directory, then
// explicit exclusions are subtracted.
package policies

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// Include markers recognized in policy conditions.
const (
	markerAll    = "All"
	markerGuests = "GuestsOrExternalUsers"
)

// Table describes the canonical policies table.
var Table = domain.TableSpec{
	Name: "policies",
	Key:  []string{"policy_id", "tenant_id"},
	Cols: []string{
		"policy_id", "tenant_id", "display_name", "state", "is_active",
		"policy_created_at", "policy_modified_at",
		"created_at", "last_updated",
	},
}

// UsersTable describes the policy-to-user junction.
var UsersTable = domain.TableSpec{
	Name: "policy_users",
	Key:  []string{"tenant_id", "user_id", "policy_id"},
	Cols: []string{
		"tenant_id", "user_id", "policy_id", "user_principal_name",
		"policy_name", "created_at", "last_updated",
	},
}

// ApplicationsTable describes the policy-to-application junction.
var ApplicationsTable = domain.TableSpec{
	Name: "policy_applications",
	Key:  []string{"tenant_id", "application_id", "policy_id"},
	Cols: []string{
		"tenant_id", "application_id", "policy_id", "application_name",
		"policy_name", "created_at", "last_updated",
	},
}

// Record is the canonical policy row.
type Record struct {
	PolicyID         string  `db:"policy_id"`
	TenantID         string  `db:"tenant_id"`
	DisplayName      string  `db:"display_name"`
	State            string  `db:"state"`
	IsActive         bool    `db:"is_active"`
	PolicyCreatedAt  *string `db:"policy_created_at"`
	PolicyModifiedAt *string `db:"policy_modified_at"`
	CreatedAt        string  `db:"created_at"`
	LastUpdated      string  `db:"last_updated"`
}

// UserLink is a policy-to-user junction row.
type UserLink struct {
	TenantID          string `db:"tenant_id"`
	UserID            string `db:"user_id"`
	PolicyID          string `db:"policy_id"`
	UserPrincipalName string `db:"user_principal_name"`
	PolicyName        string `db:"policy_name"`
	CreatedAt         string `db:"created_at"`
	LastUpdated       string `db:"last_updated"`
}

// ApplicationLink is a policy-to-application junction row.
type ApplicationLink struct {
	TenantID        string `db:"tenant_id"`
	ApplicationID   string `db:"application_id"`
	PolicyID        string `db:"policy_id"`
	ApplicationName string `db:"application_name"`
	PolicyName      string `db:"policy_name"`
	CreatedAt       string `db:"created_at"`
	LastUpdated     string `db:"last_updated"`
}

// Raw is the Graph conditional-access policy shape.
type Raw struct {
	ID               string `json:"id"`
	DisplayName      string `json:"displayName"`
	State            string `json:"state"`
	CreatedDateTime  string `json:"createdDateTime"`
	ModifiedDateTime string `json:"modifiedDateTime"`
	Conditions       struct {
		Users struct {
			IncludeUsers []string `json:"includeUsers"`
			ExcludeUsers []string `json:"excludeUsers"`
		} `json:"users"`
		Applications struct {
			IncludeApplications []string `json:"includeApplications"`
			ExcludeApplications []string `json:"excludeApplications"`
		} `json:"applications"`
	} `json:"conditions"`
}

// directoryUser is the minimal user shape needed for target resolution.
type directoryUser struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	UserType          string `json:"userType"`
}

// directoryApp is the minimal service principal shape needed for target
// resolution.
type directoryApp struct {
	AppID       string `json:"appId"`
	DisplayName string `json:"displayName"`
}

// Transform maps a raw policy onto the canonical row. A policy is active
// exactly when its state is "enabled".
func Transform(tc domain.TenantContext, raw Raw, now time.Time) (Record, error) {
	if raw.ID == "" {
		return Record{}, domain.ErrInvalidRecord
	}

	stamp := domain.Stamp(now)
	return Record{
		PolicyID:         raw.ID,
		TenantID:         tc.TenantID,
		DisplayName:      raw.DisplayName,
		State:            raw.State,
		IsActive:         raw.State == "enabled",
		PolicyCreatedAt:  optional(raw.CreatedDateTime),
		PolicyModifiedAt: optional(raw.ModifiedDateTime),
		CreatedAt:        stamp,
		LastUpdated:      stamp,
	}, nil
}

// ResolveUserTargets expands a policy's user conditions against the
// directory: "All" selects everyone, "GuestsOrExternalUsers" selects
// guest accounts, other entries select by id. Exclusions are subtracted
// afterwards.
func ResolveUserTargets(raw Raw, directory []directoryUser) []directoryUser {
	excluded := make(map[string]bool, len(raw.Conditions.Users.ExcludeUsers))
	for _, id := range raw.Conditions.Users.ExcludeUsers {
		excluded[id] = true
	}

	included := make(map[string]bool)
	for _, entry := range raw.Conditions.Users.IncludeUsers {
		switch entry {
		case markerAll:
			for _, u := range directory {
				included[u.ID] = true
			}
		case markerGuests:
			for _, u := range directory {
				if u.UserType == "Guest" {
					included[u.ID] = true
				}
			}
		default:
			included[entry] = true
		}
	}

	var targets []directoryUser
	for _, u := range directory {
		if included[u.ID] && !excluded[u.ID] {
			targets = append(targets, u)
		}
	}
	return targets
}

// ResolveApplicationTargets expands a policy's application conditions:
// "All" selects every service principal, other entries select by appId.
func ResolveApplicationTargets(raw Raw, directory []directoryApp) []directoryApp {
	excluded := make(map[string]bool, len(raw.Conditions.Applications.ExcludeApplications))
	for _, id := range raw.Conditions.Applications.ExcludeApplications {
		excluded[id] = true
	}

	included := make(map[string]bool)
	for _, entry := range raw.Conditions.Applications.IncludeApplications {
		if entry == markerAll {
			for _, a := range directory {
				included[a.AppID] = true
			}
			continue
		}
		included[entry] = true
	}

	var targets []directoryApp
	for _, a := range directory {
		if included[a.AppID] && !excluded[a.AppID] {
			targets = append(targets, a)
		}
	}
	return targets
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs the policies family for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates a policies syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("policies")}
}

// Sync lists conditional-access policies, resolves their targets against
// the directory, and upserts the policy and junction rows.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	items, err := s.client.ListAll(ctx, "/identity/conditionalAccess/policies", graph.Query{})
	if err != nil {
		return stats, err
	}
	if len(items) == 0 {
		return stats, nil
	}

	userDir, err := s.listUsers(ctx)
	if err != nil {
		return stats, err
	}
	appDir, err := s.listApplications(ctx)
	if err != nil {
		return stats, err
	}

	now := time.Now()
	stamp := domain.Stamp(now)

	var policyRows, userRows, appRows []any
	for _, item := range items {
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
		policyRows = append(policyRows, rec)

		for _, u := range ResolveUserTargets(raw, userDir) {
			userRows = append(userRows, UserLink{
				TenantID:          tc.TenantID,
				UserID:            u.ID,
				PolicyID:          raw.ID,
				UserPrincipalName: u.UserPrincipalName,
				PolicyName:        raw.DisplayName,
				CreatedAt:         stamp,
				LastUpdated:       stamp,
			})
		}
		for _, a := range ResolveApplicationTargets(raw, appDir) {
			appRows = append(appRows, ApplicationLink{
				TenantID:        tc.TenantID,
				ApplicationID:   a.AppID,
				PolicyID:        raw.ID,
				ApplicationName: a.DisplayName,
				PolicyName:      raw.DisplayName,
				CreatedAt:       stamp,
				LastUpdated:     stamp,
			})
		}
	}

	for _, batch := range []struct {
		table domain.TableSpec
		rows  []any
	}{
		{Table, policyRows},
		{UsersTable, userRows},
		{ApplicationsTable, appRows},
	} {
		written, err := s.store.Upsert(ctx, batch.table, batch.rows)
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

func (s *Syncer) listUsers(ctx context.Context) ([]directoryUser, error) {
	items, err := s.client.ListAll(ctx, "/users", graph.Query{
		Select: []string{"id", "userPrincipalName", "userType"},
		Top:    999,
	})
	if err != nil {
		return nil, err
	}

	users := make([]directoryUser, 0, len(items))
	for _, item := range items {
		var u directoryUser
		if err := json.Unmarshal(item, &u); err != nil || u.ID == "" {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

func (s *Syncer) listApplications(ctx context.Context) ([]directoryApp, error) {
	items, err := s.client.ListAll(ctx, "/servicePrincipals", graph.Query{
		Select: []string{"appId", "displayName"},
		Top:    999,
	})
	if err != nil {
		return nil, err
	}

	apps := make([]directoryApp, 0, len(items))
	for _, item := range items {
		var a directoryApp
		if err := json.Unmarshal(item, &a); err != nil || a.AppID == "" {
			continue
		}
		apps = append(apps, a)
	}
	return apps, nil
}
