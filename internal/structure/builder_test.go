package structure

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/errs"
)

func build(t *testing.T, d database.Driver) *Model {
	t.Helper()
	m, err := NewBuilder(d, nil).Build(context.Background())
	require.NoError(t, err)
	return m
}

func TestBuilder_ColumnAnalysis(t *testing.T) {
	seq := "public.user_id_seq"
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "user"},
			database.ColumnMeta{
				Name:          "id",
				Primary:       true,
				AutoIncrement: database.Bool(true),
				Vendor:        map[string]any{database.VendorSequence: seq},
			},
			database.ColumnMeta{Name: "legacy_id", AutoIncrement: database.Bool(true)},
		).
		addTable(database.TableMeta{Name: "order_item"}, pk("order_id"), pk("line"), col("qty")).
		addTable(database.TableMeta{Name: "log"}, col("message")).
		addTable(database.TableMeta{Name: "loose"}, database.ColumnMeta{Name: "id", Primary: true})

	m := build(t, d)

	want := map[string]Table{
		"user": {
			Primary:       PrimaryKey{"id"},
			AutoIncrement: "id",
			Sequence:      &Sequence{Column: "id", Name: seq},
		},
		"order_item": {Primary: PrimaryKey{"order_id", "line"}},
		"log":        {},
		"loose":      {Primary: PrimaryKey{"id"}},
	}
	for key, wantTable := range want {
		got, ok := m.Table(key)
		require.True(t, ok, key)
		if diff := cmp.Diff(wantTable, got); diff != "" {
			t.Errorf("Table(%q) mismatch (-want +got):\n%s", key, diff)
		}
	}

	log, _ := m.Table("log")
	assert.Nil(t, log.Primary, "no primary key must be absent, not empty")
}

func TestBuilder_ViewsSkipAnalysis(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "ActiveUsers", View: true}, serial("id"))

	m := build(t, d)

	got, ok := m.Table("activeusers")
	require.True(t, ok)
	assert.Equal(t, Table{Name: "ActiveUsers", View: true}, got)
	assert.Equal(t, 1, d.columnsCalls["ActiveUsers"])
	assert.Zero(t, d.fkCalls["ActiveUsers"])
	assert.Empty(t, m.BelongsTo("activeusers"))
}

func TestBuilder_NameOverride(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "Customer"}, pk("id")).
		addTable(database.TableMeta{Name: "invoice"}, pk("id"))

	m := build(t, d)

	customer, _ := m.Table("customer")
	invoice, _ := m.Table("invoice")
	assert.Equal(t, "Customer", customer.Name)
	assert.Empty(t, invoice.Name)
}

func TestBuilder_FullNameAliases(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "users", FullName: "public.users"}, serial("id")).
		addTable(database.TableMeta{Name: "orders", FullName: "public.orders"}, pk("id"), col("user_id")).
		addForeignKey("public.orders", "user_id", "public.users")

	m := build(t, d)

	key, ok := m.Resolve("USERS")
	require.True(t, ok)
	assert.Equal(t, "public.users", key)
	assert.Equal(t, 1, d.columnsCalls["public.users"])
	assert.Zero(t, d.columnsCalls["users"])

	assert.Equal(t, []TableRef{{Table: "public.orders", Columns: []string{"user_id"}}}, m.HasMany("public.users"))
	assert.Equal(t, []TableSummary{{Name: "public.users"}, {Name: "public.orders"}}, m.Tables())
}

func TestBuilder_ForeignKeyOrdering(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "user"}, serial("id")).
		addTable(database.TableMeta{Name: "comments"}, pk("id"), col("user_id")).
		addTable(database.TableMeta{Name: "post"}, pk("id"), col("author_id"), col("cat_id"), col("editor_id"), col("x_id")).
		addTable(database.TableMeta{Name: "blog"}, pk("id"), col("owner_id")).
		addTable(database.TableMeta{Name: "ab"}, pk("id"), col("owner_id")).
		addForeignKey("comments", "user_id", "user").
		addForeignKey("post", "author_id", "user").
		addForeignKey("post", "cat_id", "category").
		addForeignKey("post", "editor_id", "User").
		addForeignKey("post", "x_id", "misc").
		addForeignKey("blog", "owner_id", "user").
		addForeignKey("ab", "owner_id", "user")

	m := build(t, d)

	wantBelongsTo := []ColumnRef{
		{Column: "x_id", Table: "misc"},
		{Column: "cat_id", Table: "category"},
		{Column: "author_id", Table: "user"},
		{Column: "editor_id", Table: "User"},
	}
	if diff := cmp.Diff(wantBelongsTo, m.BelongsTo("post")); diff != "" {
		t.Errorf("BelongsTo(post) mismatch (-want +got):\n%s", diff)
	}

	wantHasMany := []TableRef{
		{Table: "ab", Columns: []string{"owner_id"}},
		{Table: "post", Columns: []string{"author_id", "editor_id"}},
		{Table: "blog", Columns: []string{"owner_id"}},
		{Table: "comments", Columns: []string{"user_id"}},
	}
	if diff := cmp.Diff(wantHasMany, m.HasMany("user")); diff != "" {
		t.Errorf("HasMany(user) mismatch (-want +got):\n%s", diff)
	}

	// Referenced tables unknown to the driver still collect incoming references.
	assert.Equal(t, []TableRef{{Table: "post", Columns: []string{"cat_id"}}}, m.HasMany("category"))
}

func TestBuilder_DuplicateLocalColumnLastWins(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "audit"}, pk("id"), col("ref_id"), col("by")).
		addForeignKey("audit", "ref_id", "orders").
		addForeignKey("audit", "by", "user").
		addForeignKey("audit", "ref_id", "invoices")

	m := build(t, d)

	assert.Equal(t, []ColumnRef{
		{Column: "by", Table: "user"},
		{Column: "ref_id", Table: "invoices"},
	}, m.BelongsTo("audit"))
	assert.Equal(t, []TableRef{{Table: "audit", Columns: []string{"ref_id"}}}, m.HasMany("orders"))
	assert.Equal(t, []TableRef{{Table: "audit", Columns: []string{"ref_id"}}}, m.HasMany("invoices"))
}

func TestBuilder_MissingAutoIncrementIsFalse(t *testing.T) {
	d := newFakeDriver().
		addTable(database.TableMeta{Name: "legacy"},
			database.ColumnMeta{Name: "id", Primary: true},
			database.ColumnMeta{Name: "code"},
		)

	m := build(t, d)

	got, ok := m.Table("legacy")
	require.True(t, ok)
	assert.Empty(t, got.AutoIncrement)
	assert.Equal(t, PrimaryKey{"id"}, got.Primary)
}

func TestBuilder_DriverErrorsPropagate(t *testing.T) {
	driverErr := errs.New(errs.ErrKindPermissionDenied, "permission denied for pg_class")

	d := userOrderDriver()
	d.tablesErr = driverErr
	_, err := NewBuilder(d, nil).Build(context.Background())
	assert.Same(t, driverErr, err)

	d = userOrderDriver()
	d.columnsErr = driverErr
	_, err = NewBuilder(d, nil).Build(context.Background())
	assert.True(t, errors.Is(err, driverErr))
	assert.True(t, errs.IsPermissionDenied(err))
}
