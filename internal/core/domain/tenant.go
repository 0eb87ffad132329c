package domain

// TenantContext identifies one tenant for the duration of a sync run.
// It is built once by the tenant resolver and treated as immutable afterwards.
type TenantContext struct {
	// TenantID is the directory tenant identifier.
	TenantID string
	// DisplayName is the human-readable tenant name.
	DisplayName string
	// Premium reports whether the tenant's licensing tier exposes
	// premium-only signals (sign-in activity, MFA registration reports).
	Premium bool
}

// TenantScope selects which resolved tenants a sync run operates on.
// An empty scope means every tenant the resolver yields.
type TenantScope struct {
	// TenantIDs restricts the run to the listed tenants when non-empty.
	TenantIDs []string
}

// Includes reports whether the scope covers the given tenant.
func (s TenantScope) Includes(tenantID string) bool {
	if len(s.TenantIDs) == 0 {
		return true
	}
	for _, id := range s.TenantIDs {
		if id == tenantID {
			return true
		}
	}
	return false
}
