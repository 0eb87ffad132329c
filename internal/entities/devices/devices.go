// Package devices syncs the two device inventories. The management
// platform and the directory registration are distinct provenances with
// their own tables; they share the (tenant_id, device_id) key but are
// never merged and never fill each other's fields.
package devices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/custodia-labs/tenantsync/internal/core/domain"
	"github.com/custodia-labs/tenantsync/internal/core/ports/driven"
	"github.com/custodia-labs/tenantsync/internal/graph"
)

// IntuneTable describes the management-platform device table.
var IntuneTable = domain.TableSpec{
	Name: "devices_intune",
	Key:  []string{"device_id", "tenant_id"},
	Cols: []string{
		"device_id", "tenant_id", "device_name", "model", "manufacturer",
		"serial_number", "operating_system", "os_version", "ownership",
		"compliance_state", "is_compliant", "is_encrypted",
		"total_storage_gb", "free_storage_gb", "physical_memory_gb",
		"enrolled_at", "last_seen", "created_at", "last_updated",
	},
}

// EntraTable describes the directory-registration device table.
var EntraTable = domain.TableSpec{
	Name: "devices_entra",
	Key:  []string{"device_id", "tenant_id"},
	Cols: []string{
		"device_id", "tenant_id", "display_name", "model", "manufacturer",
		"operating_system", "os_version", "trust_type", "is_rooted",
		"is_compliant", "is_managed", "on_prem_sync_enabled",
		"registered_at", "last_sign_in", "created_at", "last_updated",
	},
}

// IntuneRecord is the canonical managed-device row.
type IntuneRecord struct {
	DeviceID         string   `db:"device_id"`
	TenantID         string   `db:"tenant_id"`
	DeviceName       string   `db:"device_name"`
	Model            string   `db:"model"`
	Manufacturer     string   `db:"manufacturer"`
	SerialNumber     string   `db:"serial_number"`
	OperatingSystem  string   `db:"operating_system"`
	OSVersion        string   `db:"os_version"`
	Ownership        string   `db:"ownership"`
	ComplianceState  string   `db:"compliance_state"`
	IsCompliant      bool     `db:"is_compliant"`
	IsEncrypted      bool     `db:"is_encrypted"`
	TotalStorageGB   *float64 `db:"total_storage_gb"`
	FreeStorageGB    *float64 `db:"free_storage_gb"`
	PhysicalMemoryGB *float64 `db:"physical_memory_gb"`
	EnrolledAt       *string  `db:"enrolled_at"`
	LastSeen         *string  `db:"last_seen"`
	CreatedAt        string   `db:"created_at"`
	LastUpdated      string   `db:"last_updated"`
}

// EntraRecord is the canonical registered-device row. The nullable
// booleans reflect fields the directory itself reports as unknown.
type EntraRecord struct {
	DeviceID          string  `db:"device_id"`
	TenantID          string  `db:"tenant_id"`
	DisplayName       string  `db:"display_name"`
	Model             string  `db:"model"`
	Manufacturer      string  `db:"manufacturer"`
	OperatingSystem   string  `db:"operating_system"`
	OSVersion         string  `db:"os_version"`
	TrustType         string  `db:"trust_type"`
	IsRooted          *bool   `db:"is_rooted"`
	IsCompliant       *bool   `db:"is_compliant"`
	IsManaged         *bool   `db:"is_managed"`
	OnPremSyncEnabled *bool   `db:"on_prem_sync_enabled"`
	RegisteredAt      *string `db:"registered_at"`
	LastSignIn        *string `db:"last_sign_in"`
	CreatedAt         string  `db:"created_at"`
	LastUpdated       string  `db:"last_updated"`
}

// RawIntune is the management-platform device shape. Storage sizes arrive
// as human-readable unit strings and are normalized to gigabytes.
type RawIntune struct {
	ID              string `json:"id"`
	DeviceName      string `json:"deviceName"`
	Model           string `json:"model"`
	Manufacturer    string `json:"manufacturer"`
	SerialNumber    string `json:"serialNumber"`
	OperatingSystem string `json:"operatingSystem"`
	OSVersion       string `json:"osVersion"`
	Ownership       string `json:"managedDeviceOwnerType"`
	ComplianceState string `json:"complianceState"`
	IsEncrypted     bool   `json:"isEncrypted"`
	TotalStorage    string `json:"totalStorage"`
	FreeStorage     string `json:"freeStorage"`
	PhysicalMemory  string `json:"physicalMemory"`
	EnrolledAt      string `json:"enrolledDateTime"`
	LastSeen        string `json:"lastSyncDateTime"`
}

// RawEntra is the directory-registration device shape.
type RawEntra struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Model             string `json:"model"`
	Manufacturer      string `json:"manufacturer"`
	OperatingSystem   string `json:"operatingSystem"`
	OSVersion         string `json:"operatingSystemVersion"`
	TrustType         string `json:"trustType"`
	IsRooted          *bool  `json:"isRooted"`
	IsCompliant       *bool  `json:"isCompliant"`
	IsManaged         *bool  `json:"isManaged"`
	OnPremSyncEnabled *bool  `json:"onPremisesSyncEnabled"`
	RegisteredAt      string `json:"registrationDateTime"`
	LastSignIn        string `json:"approximateLastSignInDateTime"`
}

// IntuneFields is the $select list for managed devices.
func IntuneFields() []string {
	return []string{
		"id", "deviceName", "model", "manufacturer", "serialNumber",
		"operatingSystem", "osVersion", "managedDeviceOwnerType",
		"complianceState", "isEncrypted", "totalStorage", "freeStorage",
		"physicalMemory", "enrolledDateTime", "lastSyncDateTime",
	}
}

// EntraFields is the $select list for registered devices.
func EntraFields() []string {
	return []string{
		"id", "displayName", "model", "manufacturer", "operatingSystem",
		"operatingSystemVersion", "trustType", "isRooted", "isCompliant",
		"isManaged", "onPremisesSyncEnabled", "registrationDateTime",
		"approximateLastSignInDateTime",
	}
}

// TransformIntune maps a raw managed device onto its canonical row.
func TransformIntune(tc domain.TenantContext, raw RawIntune, now time.Time) (IntuneRecord, error) {
	if raw.ID == "" {
		return IntuneRecord{}, domain.ErrInvalidRecord
	}

	stamp := domain.Stamp(now)
	return IntuneRecord{
		DeviceID:         raw.ID,
		TenantID:         tc.TenantID,
		DeviceName:       raw.DeviceName,
		Model:            raw.Model,
		Manufacturer:     raw.Manufacturer,
		SerialNumber:     raw.SerialNumber,
		OperatingSystem:  raw.OperatingSystem,
		OSVersion:        raw.OSVersion,
		Ownership:        raw.Ownership,
		ComplianceState:  raw.ComplianceState,
		IsCompliant:      raw.ComplianceState == "compliant",
		IsEncrypted:      raw.IsEncrypted,
		TotalStorageGB:   ParseStorageGB(raw.TotalStorage),
		FreeStorageGB:    ParseStorageGB(raw.FreeStorage),
		PhysicalMemoryGB: ParseStorageGB(raw.PhysicalMemory),
		EnrolledAt:       optional(raw.EnrolledAt),
		LastSeen:         optional(raw.LastSeen),
		CreatedAt:        stamp,
		LastUpdated:      stamp,
	}, nil
}

// TransformEntra maps a raw registered device onto its canonical row.
func TransformEntra(tc domain.TenantContext, raw RawEntra, now time.Time) (EntraRecord, error) {
	if raw.ID == "" {
		return EntraRecord{}, domain.ErrInvalidRecord
	}

	stamp := domain.Stamp(now)
	return EntraRecord{
		DeviceID:          raw.ID,
		TenantID:          tc.TenantID,
		DisplayName:       raw.DisplayName,
		Model:             raw.Model,
		Manufacturer:      raw.Manufacturer,
		OperatingSystem:   raw.OperatingSystem,
		OSVersion:         raw.OSVersion,
		TrustType:         raw.TrustType,
		IsRooted:          raw.IsRooted,
		IsCompliant:       raw.IsCompliant,
		IsManaged:         raw.IsManaged,
		OnPremSyncEnabled: raw.OnPremSyncEnabled,
		RegisteredAt:      optional(raw.RegisteredAt),
		LastSignIn:        optional(raw.LastSignIn),
		CreatedAt:         stamp,
		LastUpdated:       stamp,
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Syncer syncs both device provenances for one tenant.
type Syncer struct {
	client *graph.Client
	store  driven.UpsertStore
	log    *zap.Logger
}

// New creates a devices syncer.
func New(c *graph.Client, store driven.UpsertStore, log *zap.Logger) *Syncer {
	return &Syncer{client: c, store: store, log: log.Named("devices")}
}

// Sync runs the management-platform inventory (premium tenants only) and
// the directory registration inventory, each into its own table. The two
// inventories are independent upstreams: a failure in one is recorded and
// the other still runs, with the failures joined in the returned error.
func (s *Syncer) Sync(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats
	var errs []error

	if tc.Premium {
		intune, err := s.syncIntune(ctx, tc)
		stats.Add(intune)
		if err != nil {
			s.log.Warn("managed inventory failed, continuing with directory inventory",
				zap.String("tenant_id", tc.TenantID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("managed devices: %w", err))
		}
	}

	entra, err := s.syncEntra(ctx, tc)
	stats.Add(entra)
	if err != nil {
		errs = append(errs, fmt.Errorf("registered devices: %w", err))
	}

	s.log.Info("family synced",
		zap.String("tenant_id", tc.TenantID),
		zap.Int("rows", stats.Rows),
		zap.Int("skipped", stats.Skipped))
	return stats, errors.Join(errs...)
}

func (s *Syncer) syncIntune(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	pager := s.client.List("/deviceManagement/managedDevices", graph.Query{
		Select: IntuneFields(),
		Top:    999,
		Beta:   true,
	})

	now := time.Now()
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return stats, err
		}

		rows := make([]any, 0, len(page))
		for _, item := range page {
			var raw RawIntune
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.Skipped++
				continue
			}
			rec, err := TransformIntune(tc, raw, now)
			if err != nil {
				stats.Skipped++
				continue
			}
			rows = append(rows, rec)
		}

		written, err := s.store.Upsert(ctx, IntuneTable, rows)
		stats.Rows += written
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}

func (s *Syncer) syncEntra(ctx context.Context, tc domain.TenantContext) (domain.FamilyStats, error) {
	var stats domain.FamilyStats

	pager := s.client.List("/devices", graph.Query{
		Select: EntraFields(),
		Top:    999,
	})

	now := time.Now()
	for pager.More() {
		page, err := pager.Next(ctx)
		if err != nil {
			return stats, err
		}

		rows := make([]any, 0, len(page))
		for _, item := range page {
			var raw RawEntra
			if err := json.Unmarshal(item, &raw); err != nil {
				stats.Skipped++
				continue
			}
			rec, err := TransformEntra(tc, raw, now)
			if err != nil {
				stats.Skipped++
				continue
			}
			rows = append(rows, rec)
		}

		written, err := s.store.Upsert(ctx, EntraTable, rows)
		stats.Rows += written
		if err != nil {
			return stats, err
		}
	}
	return stats, nil
}
