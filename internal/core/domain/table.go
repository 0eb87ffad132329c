package domain

// TableSpec describes a canonical table for the upsert engine: its name,
// composite primary key, and full column list. Every canonical row type
// carries `db` struct tags matching Cols.
type TableSpec struct {
	// Name is the table name.
	Name string
	// Key is the composite primary key column list.
	Key []string
	// Cols is the full column list, key and timestamps included.
	Cols []string
}

// Timestamp column names shared by every canonical table. CreatedAtCol is
// written once at first insert and never modified; LastUpdatedCol is
// rewritten on every upsert.
const (
	CreatedAtCol   = "created_at"
	LastUpdatedCol = "last_updated"
)
