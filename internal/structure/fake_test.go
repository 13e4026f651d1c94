package structure

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Unlink/database/internal/database"
)

// fakeDriver serves scripted metadata and counts calls.
type fakeDriver struct {
	mu      sync.Mutex
	tables  []database.TableMeta
	columns map[string][]database.ColumnMeta
	fks     map[string][]database.ForeignKeyMeta
	caps    map[database.Capability]bool

	tablesErr  error
	columnsErr error
	delay      time.Duration

	tablesCalls  atomic.Int32
	columnsCalls map[string]int
	fkCalls      map[string]int
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		columns:      make(map[string][]database.ColumnMeta),
		fks:          make(map[string][]database.ForeignKeyMeta),
		caps:         make(map[database.Capability]bool),
		columnsCalls: make(map[string]int),
		fkCalls:      make(map[string]int),
	}
}

func (f *fakeDriver) addTable(meta database.TableMeta, cols ...database.ColumnMeta) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables = append(f.tables, meta)
	name := meta.Name
	if meta.FullName != "" {
		name = meta.FullName
	}
	f.columns[name] = cols
	return f
}

func (f *fakeDriver) addForeignKey(table, local, ref string) *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fks[table] = append(f.fks[table], database.ForeignKeyMeta{
		Name:    "fk_" + table + "_" + local,
		Local:   local,
		Table:   ref,
		Foreign: "id",
	})
	return f
}

func (f *fakeDriver) Tables(context.Context) ([]database.TableMeta, error) {
	f.tablesCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tablesErr != nil {
		return nil, f.tablesErr
	}
	return append([]database.TableMeta(nil), f.tables...), nil
}

func (f *fakeDriver) Columns(_ context.Context, table string) ([]database.ColumnMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.columnsCalls[table]++
	if f.columnsErr != nil {
		return nil, f.columnsErr
	}
	return f.columns[table], nil
}

func (f *fakeDriver) ForeignKeys(_ context.Context, table string) ([]database.ForeignKeyMeta, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fkCalls[table]++
	return f.fks[table], nil
}

func (f *fakeDriver) Supports(c database.Capability) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.caps[c]
}

func (f *fakeDriver) builds() int {
	return int(f.tablesCalls.Load())
}

func pk(name string) database.ColumnMeta {
	return database.ColumnMeta{Name: name, Primary: true, AutoIncrement: database.Bool(false)}
}

func serial(name string) database.ColumnMeta {
	return database.ColumnMeta{Name: name, Primary: true, AutoIncrement: database.Bool(true)}
}

func col(name string) database.ColumnMeta {
	return database.ColumnMeta{Name: name, AutoIncrement: database.Bool(false)}
}

// userOrderDriver is the two-table schema used across the query tests.
func userOrderDriver() *fakeDriver {
	return newFakeDriver().
		addTable(database.TableMeta{Name: "user"}, serial("id"), col("name")).
		addTable(database.TableMeta{Name: "order"}, pk("id"), col("user_id")).
		addForeignKey("order", "user_id", "User")
}
