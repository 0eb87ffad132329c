// Package groups syncs directory groups and their memberships. The group
// kind is derived from the groupTypes / mailEnabled / securityEnabled
// combination the directory exposes.
package groups

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

// Table describes the canonical groups table.
var Table = domain.TableSpec{
	Name: "groups",
	Key:  []string{"group_id", "tenant_id"},
	Cols: []string{
		"group_id", "tenant_id", "display_name", "description",
		"group_type", "mail_enabled", "security_enabled", "visibility",
		"member_count", "created_at", "last_updated",
	},
}

// MembersTable describes the group membership junction.
var MembersTable = domain.TableSpec{
	Name: "group_members",
	Key:  []string{"tenant_id", "group_id", "member_id"},
	Cols: []string{
		"tenant_id", "group_id", "member_id", "member_type",
		"member_display_name", "created_at", "last_updated",
	},
}

// Record is the canonical group row.
type Record struct {
	GroupID         string  `db:"group_id"`
	TenantID        string  `db:"tenant_id"`
	DisplayName     string  `db:"display_name"`
	Description     *string `db:"description"`
	GroupType       string  `db:"group_type"`
	MailEnabled     bool    `db:"mail_enabled"`
	SecurityEnabled bool    `db:"security_enabled"`
	Visibility      *string `db:"visibility"`
	MemberCount     int     `db:"member_count"`
	CreatedAt       string  `db:"created_at"`
	LastUpdated     string  `db:"last_updated"`
}

// MemberLink is a group membership junction row.
type MemberLink struct {
	TenantID          string `db:"tenant_id"`
	GroupID           string `db:"group_id"`
	MemberID          string `db:"member_id"`
	MemberType        string `db:"member_type"`
	MemberDisplayName string `db:"member_display_name"`
	CreatedAt         string `db:"created_at"`
	LastUpdated       string `db:"last_updated"`
}

// Raw is the Graph group shape this family consumes.
type Raw struct {
	ID              string   `json:"id"`
	DisplayName     string   `json:"displayName"`
	Description     string   `json:"description"`
	GroupTypes      []string `json:"groupTypes"`
	MailEnabled     bool     `json:"mailEnabled"`
	SecurityEnabled bool     `json:"securityEnabled"`
	Visibility      string   `json:"visibility"`
}

// Fields is the $select list for a group listing.
func Fields() []string {
	return []string{
		"id", "displayName", "description", "groupTypes",
		"mailEnabled", "securityEnabled", "visibility",
	}
}

// Kind derives the human-readable group kind.
func Kind(raw Raw) string {
	for _, t := range raw.GroupTypes {
		if t == "Unified" {
			return "Microsoft 365"
		}
	}
	for _, t := range raw.GroupTypes {
		if t == "DynamicMembership" {
			return "Dynamic"
		}
	}
	switch {
	case raw.MailEnabled && raw.SecurityEnabled:
		return "Mail-Enabled Security"
	case raw.MailEnabled:
		return "Mail-Enabled"
	default:
		return "Security"
	}
}

// Transform maps a raw group onto the canonical row.
func Transform(tc domain.TenantContext, raw Raw, memberCount int, now time.Time) (Record, error) {
	if raw.ID == "" {
		return Record{}, domain.ErrInvalidRecord
	}

	stamp := domain.Stamp(now)
	return Record{
		GroupID:         raw.ID,
		TenantID:        tc.TenantID,
		DisplayName:     raw.DisplayName,
		Description:     optional(raw.Description),
		GroupType:       Kind(raw),
		MailEnabled:     raw.MailEnabled,
		SecurityEnabled: raw.SecurityEnabled,
		Visibility:      optional(raw.Visibility),
		MemberCount:     memberCount,
		CreatedAt:       stamp,
		LastUpdated:     stamp,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs the groups family for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates a groups syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("groups")}
}

// Sync lists groups, fans out per group for members, and upserts both the
// group rows and the membership junction.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	pager := s.client.List("/groups", graph.Query{Select: Fields(), Top: 999})

	now := time.Now()
	stamp := domain.Stamp(now)
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return stats, err
		}

		var groupRows, memberRows []any
		for _, item := range page {
			var raw Raw
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.Skipped++
				continue
			}

			members := s.fetchMembers(ctx, raw.ID)
			rec, err := Transform(tc, raw, len(members), now)
			if err != nil {
				stats.Skipped++
				continue
			}
			groupRows = append(groupRows, rec)

			for _, m := range members {
				memberRows = append(memberRows, MemberLink{
					TenantID:          tc.TenantID,
					GroupID:           raw.ID,
					MemberID:          m.ID,
					MemberType:        m.Type,
					MemberDisplayName: m.DisplayName,
					CreatedAt:         stamp,
					LastUpdated:       stamp,
				})
			}
		}

		for _, batch := range []struct {
			table domain.TableSpec
			rows  []any
		}{
			{Table, groupRows},
			{MembersTable, memberRows},
		} {
			written, err := s.store.Upsert(ctx, batch.table, batch.rows)
			stats.Rows += written
			if err != nil {
				return stats, err
			}
		}
	}

	s.log.Info("family synced",
		zap.String("tenant_id", tc.TenantID),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped))
	return stats, nil
}

// member is one entry of a group's member listing.
type member struct {
	ID          string
	Type        string
	DisplayName string
}

// fetchMembers lists one group's members. Lookup failures degrade to an
// empty membership rather than aborting the family.
func (s *Syncer) fetchMembers(ctx context.Context, groupID string) []member {
	items, err := s.client.ListAll(ctx, "/groups/"+groupID+"/members", graph.Query{
		Select: []string{"id", "displayName"},
		Top:    999,
	})
	if err != nil {
		s.log.Debug("member lookup failed",
			zap.String("group_id", groupID),
			zap.Error(err))
		return nil
	}

	members := make([]member, 0, len(items))
	for _, item := range items {
		var raw struct {
			ID          string `json:"id"`
			DisplayName string `json:"displayName"`
			Type        string `json:"@odata.type"`
		}
		if err := json.Unmarshal(item, &raw); err != nil || raw.ID == "" {
			continue
		}
		members = append(members, member{
			ID:          raw.ID,
			Type:        strings.TrimPrefix(raw.Type, "#microsoft.graph."),
			DisplayName: raw.DisplayName,
		})
	}
	return members
}
