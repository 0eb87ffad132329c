package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// RosterTenant is one entry in a static tenant roster file.
type RosterTenant struct {
	TenantID    string `toml:"tenant_id"`
	DisplayName string `toml:"display_name"`
}

// Roster is the TOML tenant roster used in roster mode.
type Roster struct {
	Tenants []RosterTenant `toml:"tenants"`
}

// LoadRoster parses a TOML tenant roster file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tenant roster: %w", err)
	}

	var roster Roster
	if err := toml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("parse tenant roster: %w", err)
	}

	for i, t := range roster.Tenants {
		if t.TenantID == "" {
			return nil, fmt.Errorf("tenant roster entry %d has no tenant_id", i)
		}
	}

	return &roster, nil
}
