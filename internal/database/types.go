package database

// Capability names an optional feature a Driver may support.
type Capability string

const (
	// CapabilitySequence means the engine binds columns to named sequences
	// (PostgreSQL serial / identity columns).
	CapabilitySequence Capability = "sequences"

	// CapabilitySchemas means TableMeta.FullName carries schema-qualified names.
	CapabilitySchemas Capability = "schemas"
)

// Vendor keys understood by the structure builder.
const (
	VendorSequence = "sequence"
	VendorDefault  = "default"
)

// TableMeta is one table or view as reported by a Driver.
type TableMeta struct {
	// Name is the short table name as the engine reports it.
	Name string

	// FullName is the fully qualified name (e.g. "public.users").
	// Empty when the engine has no distinct qualified form.
	FullName string

	// View is true for views and materialized views.
	View bool
}

// ColumnMeta describes one column of a table or view.
type ColumnMeta struct {
	Name       string
	NativeType string
	Nullable   bool
	Primary    bool

	// AutoIncrement is nil when the driver did not report it at all,
	// which is distinct from reporting false.
	AutoIncrement *bool

	// Vendor carries engine-specific extras keyed by the Vendor* constants.
	Vendor map[string]any
}

// IsAutoIncrement reports the autoincrement flag, treating "not reported" as false.
func (c ColumnMeta) IsAutoIncrement() bool {
	return c.AutoIncrement != nil && *c.AutoIncrement
}

// SequenceName returns the vendor sequence bound to the column, if any.
func (c ColumnMeta) SequenceName() (string, bool) {
	if c.Vendor == nil {
		return "", false
	}
	switch v := c.Vendor[VendorSequence].(type) {
	case string:
		return v, v != ""
	case *string:
		if v != nil && *v != "" {
			return *v, true
		}
	}
	return "", false
}

// ForeignKeyMeta is one column pair of a foreign key constraint.
// Composite constraints produce one row per column, in key order.
type ForeignKeyMeta struct {
	Name    string // constraint name
	Local   string // referencing column in the inspected table
	Table   string // referenced table
	Foreign string // referenced column
}

// Bool returns a pointer to b, for filling ColumnMeta.AutoIncrement.
func Bool(b bool) *bool {
	return &b
}
