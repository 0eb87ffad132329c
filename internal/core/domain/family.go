package domain

import "fmt"

// Family identifies an entity family handled by the sync engine.
type Family string

const (
	// FamilyUsers is the directory user family.
	FamilyUsers Family = "users"
	// FamilyDevices covers both device inventories (Intune and Entra).
	FamilyDevices Family = "devices"
	// FamilyApplications is the service principal / application family.
	FamilyApplications Family = "applications"
	// FamilyPolicies is the conditional-access policy family, including
	// its user and application assignment mappings.
	FamilyPolicies Family = "policies"
	// FamilySubscriptions is the commerce subscription family.
	FamilySubscriptions Family = "subscriptions"
	// FamilyGroups covers groups and group memberships.
	FamilyGroups Family = "groups"
)

// AllFamilies lists every entity family in sync order.
func AllFamilies() []Family {
	return []Family{
		FamilyUsers,
		FamilyDevices,
		FamilyApplications,
		FamilyPolicies,
		FamilySubscriptions,
		FamilyGroups,
	}
}

// ParseFamily converts a string to a Family.
func ParseFamily(s string) (Family, error) {
	for _, f := range AllFamilies() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown entity family %q", s)
}

// FamilyStats summarises one family's sync for one tenant.
type FamilyStats struct {
	// Rows is the number of rows written to the store.
	Rows int
	// Skipped is the number of upstream records dropped during normalisation.
	Skipped int
}

// Add merges another stats value into this one.
func (s *FamilyStats) Add(other FamilyStats) {
	s.Rows += other.Rows
	s.Skipped += other.Skipped
}
