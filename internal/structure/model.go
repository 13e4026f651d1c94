package structure

import (
	"cmp"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// PrimaryKey lists primary key columns in driver order. A nil PrimaryKey
// means the table has none; it is never an empty non-nil slice.
type PrimaryKey []string

// Scalar returns the column name when the key has exactly one column.
func (p PrimaryKey) Scalar() (string, bool) {
	if len(p) != 1 {
		return "", false
	}
	return p[0], true
}

// Composite reports whether the key spans two or more columns.
func (p PrimaryKey) Composite() bool {
	return len(p) > 1
}

// MarshalJSON encodes a single-column key as a string and a composite key
// as an array.
func (p PrimaryKey) MarshalJSON() ([]byte, error) {
	if col, ok := p.Scalar(); ok {
		return json.Marshal(col)
	}
	return json.Marshal([]string(p))
}

func (p *PrimaryKey) UnmarshalJSON(data []byte) error {
	var col string
	if err := json.Unmarshal(data, &col); err == nil {
		*p = PrimaryKey{col}
		return nil
	}
	var cols []string
	if err := json.Unmarshal(data, &cols); err != nil {
		return fmt.Errorf("primary key: %w", err)
	}
	if len(cols) == 0 {
		*p = nil
		return nil
	}
	*p = cols
	return nil
}

// Sequence binds a column to a vendor sequence object.
type Sequence struct {
	Column string `json:"column"`
	Name   string `json:"name"`
}

// Table is the analyzed form of one table or view. Views carry only Name
// and View.
type Table struct {
	// Name is the driver-reported name, set only when it differs from the
	// lower-cased key.
	Name          string     `json:"name,omitempty"`
	View          bool       `json:"view,omitempty"`
	Primary       PrimaryKey `json:"primary,omitempty"`
	AutoIncrement string     `json:"autoincrement,omitempty"`
	Sequence      *Sequence  `json:"sequence,omitempty"`
}

// TableSummary is one entry of Structure.Tables.
type TableSummary struct {
	Name string `json:"name"`
	View bool   `json:"view"`
}

// ColumnRef is a belongs-to entry: a local column and the table it references.
type ColumnRef struct {
	Column string `json:"column"`
	Table  string `json:"table"`
}

// TableRef is a has-many entry: a referencing table and its local columns.
type TableRef struct {
	Table   string   `json:"table"`
	Columns []string `json:"columns"`
}

// Model is an immutable snapshot of a database structure. All maps are
// keyed by lower-cased table names. A Model is safe for concurrent reads
// once built.
type Model struct {
	keys      []string
	tables    map[string]Table
	aliases   map[string]string
	belongsTo map[string][]ColumnRef
	hasMany   map[string][]TableRef
}

func newModel() *Model {
	return &Model{
		tables:    make(map[string]Table),
		aliases:   make(map[string]string),
		belongsTo: make(map[string][]ColumnRef),
		hasMany:   make(map[string][]TableRef),
	}
}

// canonical folds a table name to its model key.
func canonical(name string) string {
	return strings.ToLower(name)
}

// Resolve maps a table name in any case, or one of its aliases, to its
// canonical key.
func (m *Model) Resolve(name string) (string, bool) {
	key := canonical(name)
	if _, ok := m.tables[key]; ok {
		return key, true
	}
	if target, ok := m.aliases[key]; ok {
		return target, true
	}
	return "", false
}

// Len returns the number of tables and views.
func (m *Model) Len() int {
	return len(m.keys)
}

// Tables lists every table and view in build order.
func (m *Model) Tables() []TableSummary {
	out := make([]TableSummary, 0, len(m.keys))
	for _, key := range m.keys {
		t := m.tables[key]
		name := key
		if t.Name != "" {
			name = t.Name
		}
		out = append(out, TableSummary{Name: name, View: t.View})
	}
	return out
}

// Table returns the analyzed table stored under a canonical key.
func (m *Model) Table(key string) (Table, bool) {
	t, ok := m.tables[key]
	return t, ok
}

// BelongsTo returns the outgoing references of a canonical table, shortest
// column name first.
func (m *Model) BelongsTo(key string) []ColumnRef {
	return slices.Clone(m.belongsTo[key])
}

// HasMany returns the incoming references of a canonical table, shortest
// referencing table name first.
func (m *Model) HasMany(key string) []TableRef {
	refs := m.hasMany[key]
	out := make([]TableRef, len(refs))
	for i, r := range refs {
		out[i] = TableRef{Table: r.Table, Columns: slices.Clone(r.Columns)}
	}
	return out
}

// --- mutation, used only while building ---

func (m *Model) putTable(key string, t Table) {
	if _, ok := m.tables[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.tables[key] = t
}

func (m *Model) putAlias(name, target string) {
	if name != target {
		m.aliases[name] = target
	}
}

// putBelongsTo records column -> ref for table. A repeated column keeps its
// position and takes the latest referenced table.
func (m *Model) putBelongsTo(key, column, ref string) {
	refs := m.belongsTo[key]
	for i := range refs {
		if refs[i].Column == column {
			refs[i].Table = ref
			return
		}
	}
	m.belongsTo[key] = append(refs, ColumnRef{Column: column, Table: ref})
}

func (m *Model) appendHasMany(key, table, column string) {
	refs := m.hasMany[key]
	for i := range refs {
		if refs[i].Table == table {
			refs[i].Columns = append(refs[i].Columns, column)
			return
		}
	}
	m.hasMany[key] = append(refs, TableRef{Table: table, Columns: []string{column}})
}

func (m *Model) sortBelongsTo(key string) {
	slices.SortStableFunc(m.belongsTo[key], func(a, b ColumnRef) int {
		return cmp.Compare(len(a.Column), len(b.Column))
	})
}

func (m *Model) sortHasMany() {
	for _, refs := range m.hasMany {
		slices.SortStableFunc(refs, func(a, b TableRef) int {
			return cmp.Compare(len(a.Table), len(b.Table))
		})
	}
}

// --- persistence ---

// modelVersion is bumped whenever the encoded layout changes. Stored
// snapshots with another version are discarded.
const modelVersion = 1

type encodedTable struct {
	Key string `json:"key"`
	Table
}

type encodedAlias struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

type encodedBelongsTo struct {
	Key  string      `json:"key"`
	Refs []ColumnRef `json:"refs"`
}

type encodedHasMany struct {
	Key  string     `json:"key"`
	Refs []TableRef `json:"refs"`
}

type encodedModel struct {
	Version   int                `json:"version"`
	Tables    []encodedTable     `json:"tables"`
	Aliases   []encodedAlias     `json:"aliases,omitempty"`
	BelongsTo []encodedBelongsTo `json:"belongsTo,omitempty"`
	HasMany   []encodedHasMany   `json:"hasMany,omitempty"`
}

// MarshalJSON encodes the model with every ordering preserved.
func (m *Model) MarshalJSON() ([]byte, error) {
	enc := encodedModel{
		Version: modelVersion,
		Tables:  make([]encodedTable, 0, len(m.keys)),
	}
	for _, key := range m.keys {
		enc.Tables = append(enc.Tables, encodedTable{Key: key, Table: m.tables[key]})
	}
	for _, name := range slices.Sorted(maps.Keys(m.aliases)) {
		enc.Aliases = append(enc.Aliases, encodedAlias{Name: name, Target: m.aliases[name]})
	}
	for _, key := range slices.Sorted(maps.Keys(m.belongsTo)) {
		enc.BelongsTo = append(enc.BelongsTo, encodedBelongsTo{Key: key, Refs: m.belongsTo[key]})
	}
	for _, key := range slices.Sorted(maps.Keys(m.hasMany)) {
		enc.HasMany = append(enc.HasMany, encodedHasMany{Key: key, Refs: m.hasMany[key]})
	}
	return json.Marshal(enc)
}

func (m *Model) UnmarshalJSON(data []byte) error {
	var enc encodedModel
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	if enc.Version != modelVersion {
		return fmt.Errorf("unsupported model version %d", enc.Version)
	}

	*m = *newModel()
	for _, t := range enc.Tables {
		m.putTable(t.Key, t.Table)
	}
	for _, a := range enc.Aliases {
		m.aliases[a.Name] = a.Target
	}
	for _, b := range enc.BelongsTo {
		m.belongsTo[b.Key] = b.Refs
	}
	for _, h := range enc.HasMany {
		m.hasMany[h.Key] = h.Refs
	}
	return nil
}

// DecodeModel parses a snapshot produced by Model.MarshalJSON.
func DecodeModel(data []byte) (*Model, error) {
	m := newModel()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, err
	}
	return m, nil
}
