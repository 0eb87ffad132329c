package domain

import (
	"sync"
	"time"
)

// SyncResult is the structured outcome of one sync run. It is the only
// failure surface exposed to callers: per-tenant errors are accumulated
// here, never raised past the run boundary.
type SyncResult struct {
	mu sync.Mutex

	// RunID uniquely identifies the run.
	RunID string `json:"run_id"`
	// StartedAt is the run start time.
	StartedAt time.Time `json:"started_at"`
	// Duration is the total wall time of the run.
	Duration time.Duration `json:"duration"`
	// RowsWritten is the total row count across all tenants and families.
	RowsWritten int `json:"rows_written"`
	// RowsByFamily breaks RowsWritten down per entity family.
	RowsByFamily map[Family]int `json:"rows_by_family"`
	// SkippedRecords counts upstream records dropped during normalisation.
	SkippedRecords int `json:"skipped_records"`
	// TenantsSynced counts tenants that completed without a fatal error.
	TenantsSynced int `json:"tenants_synced"`
	// ErrorsByTenant maps tenant id to the errors recorded for it.
	ErrorsByTenant map[string][]string `json:"errors_by_tenant"`
	// SkippedFamilies maps tenant id to families skipped because the
	// upstream grant does not cover them. A skip is not a failure: the
	// tenant's other families continue and the run stays healthy.
	SkippedFamilies map[string][]string `json:"skipped_families"`
}

// NewSyncResult creates an empty result for a run.
func NewSyncResult(runID string, startedAt time.Time) *SyncResult {
	return &SyncResult{
		RunID:           runID,
		StartedAt:       startedAt,
		RowsByFamily:    make(map[Family]int),
		ErrorsByTenant:  make(map[string][]string),
		SkippedFamilies: make(map[string][]string),
	}
}

// RecordStats accumulates one family's stats for one tenant.
func (r *SyncResult) RecordStats(family Family, stats FamilyStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.RowsWritten += stats.Rows
	r.RowsByFamily[family] += stats.Rows
	r.SkippedRecords += stats.Skipped
}

// RecordError records a tenant-scoped error without failing the run.
func (r *SyncResult) RecordError(tenantID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ErrorsByTenant[tenantID] = append(r.ErrorsByTenant[tenantID], err.Error())
}

// RecordSkip records a family skipped for a tenant due to a permission
// gap, without failing the tenant or the run.
func (r *SyncResult) RecordSkip(tenantID string, family Family) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.SkippedFamilies[tenantID] = append(r.SkippedFamilies[tenantID], string(family))
}

// RecordTenantDone marks a tenant as completed.
func (r *SyncResult) RecordTenantDone() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.TenantsSynced++
}

// TenantErrors returns the errors recorded for a tenant.
func (r *SyncResult) TenantErrors(tenantID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ErrorsByTenant[tenantID]...)
}
