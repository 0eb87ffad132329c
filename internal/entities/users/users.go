// Package users syncs directory users. Sign-in activity and the MFA
// registration report are premium-only signals: non-premium tenants get
// plain v1.0 listings and a null is_mfa_registered column.
package users

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// Table describes the canonical users table.
var Table = domain.TableSpec{
	Name: "users",
	Key:  []string{"user_id", "tenant_id"},
	Cols: []string{
		"user_id", "tenant_id", "user_principal_name", "primary_email",
		"display_name", "department", "job_title", "office_location",
		"mobile_phone", "account_type", "account_enabled", "is_admin",
		"is_mfa_registered", "license_count", "group_count",
		"last_sign_in", "last_password_change",
		"created_at", "last_updated",
	},
}

// Record is the canonical users row.
type Record struct {
	UserID             string  `db:"user_id"`
	TenantID           string  `db:"tenant_id"`
	UserPrincipalName  string  `db:"user_principal_name"`
	PrimaryEmail       string  `db:"primary_email"`
	DisplayName        string  `db:"display_name"`
	Department         string  `db:"department"`
	JobTitle           string  `db:"job_title"`
	OfficeLocation     string  `db:"office_location"`
	MobilePhone        string  `db:"mobile_phone"`
	AccountType        string  `db:"account_type"`
	AccountEnabled     bool    `db:"account_enabled"`
	IsAdmin            bool    `db:"is_admin"`
	IsMFARegistered    *bool   `db:"is_mfa_registered"`
	LicenseCount       int     `db:"license_count"`
	GroupCount         int     `db:"group_count"`
	LastSignIn         *string `db:"last_sign_in"`
	LastPasswordChange *string `db:"last_password_change"`
	CreatedAt          string  `db:"created_at"`
	LastUpdated        string  `db:"last_updated"`
}

// Raw is the Graph user shape this family consumes.
type Raw struct {
	ID                string `json:"id"`
	UserPrincipalName string `json:"userPrincipalName"`
	Mail              string `json:"mail"`
	DisplayName       string `json:"displayName"`
	Department        string `json:"department"`
	JobTitle          string `json:"jobTitle"`
	OfficeLocation    string `json:"officeLocation"`
	MobilePhone       string `json:"mobilePhone"`
	UserType          string `json:"userType"`
	AccountEnabled    bool   `json:"accountEnabled"`
	AssignedLicenses  []struct {
		SkuID string `json:"skuId"`
	} `json:"assignedLicenses"`
	LastPasswordChangeDateTime string `json:"lastPasswordChangeDateTime"`
	SignInActivity             struct {
		LastSignInDateTime string `json:"lastSignInDateTime"`
	} `json:"signInActivity"`
}

// Fields is the $select list for a user listing. Sign-in activity is only
// requestable on premium tenants.
func Fields(premium bool) []string {
	fields := []string{
		"id", "userPrincipalName", "mail", "displayName", "department",
		"jobTitle", "officeLocation", "mobilePhone", "userType",
		"accountEnabled", "assignedLicenses", "lastPasswordChangeDateTime",
	}
	if premium {
		fields = append(fields, "signInActivity")
	}
	return fields
}

// Enrichment carries the per-user signals gathered outside the listing.
type Enrichment struct {
	// MFARegistered is nil when the tenant is not premium or the report
	// did not cover the user.
	MFARegistered *bool
	// GroupCount is the number of group memberships.
	GroupCount int
	// IsAdmin reports membership in any directory role.
	IsAdmin bool
}

// Transform maps a raw user onto the canonical row. An empty id fails
// validation.
func Transform(tc domain.TenantContext, raw Raw, enrich Enrichment, now time.Time) (Record, error) {
	if raw.ID == "" {
		return Record{}, domain.ErrInvalidRecord
	}

	mfa := enrich.MFARegistered
	if !tc.Premium {
		mfa = nil
	}

	stamp := domain.Stamp(now)
	return Record{
		UserID:             raw.ID,
		TenantID:           tc.TenantID,
		UserPrincipalName:  raw.UserPrincipalName,
		PrimaryEmail:       raw.Mail,
		DisplayName:        raw.DisplayName,
		Department:         raw.Department,
		JobTitle:           raw.JobTitle,
		OfficeLocation:     raw.OfficeLocation,
		MobilePhone:        raw.MobilePhone,
		AccountType:        raw.UserType,
		AccountEnabled:     raw.AccountEnabled,
		IsAdmin:            enrich.IsAdmin,
		IsMFARegistered:    mfa,
		LicenseCount:       len(raw.AssignedLicenses),
		GroupCount:         enrich.GroupCount,
		LastSignIn:         optional(raw.SignInActivity.LastSignInDateTime),
		LastPasswordChange: optional(raw.LastPasswordChangeDateTime),
		CreatedAt:          stamp,
		LastUpdated:        stamp,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs the users family for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates a users syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("users")}
}

// Sync lists users, enriches each with membership and MFA signals, and
// upserts the canonical rows.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	mfa := s.fetchMFAReport(ctx, tc)

	q := graph.Query{Select: Fields(tc.Premium), Top: 999, Beta: tc.Premium}
	pager := s.client.List("/users", q)

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

			enrich := s.enrich(ctx, raw.ID, mfa)
			rec, err := Transform(tc, raw, enrich, now)
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

// fetchMFAReport loads the registration details report into a user id to
// registered map. Only attempted on premium tenants; any failure degrades
// to an empty map and null columns.
func (s *Syncer) fetchMFAReport(ctx context.Context, tc domain.TenantContext) map[string]bool {
	if !tc.Premium {
		return nil
	}

	items, err := s.client.ListAll(ctx, "/reports/authenticationMethods/userRegistrationDetails", graph.Query{
		Select: []string{"id", "isMfaRegistered"},
		Beta:   true,
	})
	if err != nil {
		s.log.Warn("mfa registration report unavailable",
			zap.String("tenant_id", tc.TenantID),
			zap.Error(err))
		return nil
	}

	report := make(map[string]bool, len(items))
	for _, item := range items {
		var row struct {
			ID              string `json:"id"`
			IsMFARegistered bool   `json:"isMfaRegistered"`
		}
		if err := json.Unmarshal(item, &row); err != nil || row.ID == "" {
			continue
		}
		report[row.ID] = row.IsMFARegistered
	}
	return report
}

// enrich gathers a single user's membership signals. Lookup failures
// degrade to zero values rather than aborting the family.
func (s *Syncer) enrich(ctx context.Context, userID string, mfa map[string]bool) Enrichment {
	var enrich Enrichment

	if registered, ok := mfa[userID]; ok {
		enrich.MFARegistered = &registered
	}

	items, err := s.client.ListAll(ctx, "/users/"+userID+"/memberOf", graph.Query{
		Select: []string{"id"},
	})
	if err != nil {
		s.log.Debug("memberOf lookup failed",
			zap.String("user_id", userID),
			zap.Error(err))
		return enrich
	}

	for _, item := range items {
		var member struct {
			Type string `json:"@odata.type"`
		}
		if err := json.Unmarshal(item, &member); err != nil {
			continue
		}
		switch member.Type {
		case "#microsoft.graph.directoryRole":
			enrich.IsAdmin = true
		case "#microsoft.graph.group":
			enrich.GroupCount++
		}
	}
	return enrich
}
