package structure

import (
	"context"
	"time"

	"github.com/Unlink/database/internal/database"
	"github.com/Unlink/database/internal/logger"
)

// Builder turns driver metadata into a Model in one pass. Driver errors
// are returned unchanged.
type Builder struct {
	driver database.Driver
	log    *logger.Logger
}

func NewBuilder(driver database.Driver, log *logger.Logger) *Builder {
	if log == nil {
		log = logger.Nop()
	}
	return &Builder{driver: driver, log: log}
}

// Build reads every table and view from the driver and returns a complete
// Model. Columns are fetched for views too, but only tables get column and
// foreign key analysis.
func (b *Builder) Build(ctx context.Context) (*Model, error) {
	start := time.Now()

	metas, err := b.driver.Tables(ctx)
	if err != nil {
		return nil, err
	}

	m := newModel()
	for _, meta := range metas {
		table := meta.Name
		if meta.FullName != "" {
			m.putAlias(canonical(meta.Name), canonical(meta.FullName))
			table = meta.FullName
		}

		cols, err := b.driver.Columns(ctx, table)
		if err != nil {
			return nil, err
		}

		key := canonical(table)
		var info Table
		fkCount := 0
		if meta.View {
			info.View = true
		} else {
			info = analyzeColumns(cols)
			if fkCount, err = b.analyzeForeignKeys(ctx, m, table, key); err != nil {
				return nil, err
			}
		}
		if key != table {
			info.Name = table
		}
		m.putTable(key, info)

		b.log.DebugWith("table analyzed", map[string]any{
			"table":        table,
			"view":         meta.View,
			"columns":      len(cols),
			"foreign_keys": fkCount,
		})
	}
	m.sortHasMany()

	b.log.InfoWith("structure built", map[string]any{
		"tables":   m.Len(),
		"duration": time.Since(start).String(),
	})
	return m, nil
}

// analyzeColumns derives primary key, autoincrement and sequence from
// column metadata in driver order.
func analyzeColumns(cols []database.ColumnMeta) Table {
	var t Table
	for _, c := range cols {
		if c.Primary {
			t.Primary = append(t.Primary, c.Name)
		}
		if t.AutoIncrement == "" && c.IsAutoIncrement() {
			t.AutoIncrement = c.Name
		}
		if t.Sequence == nil {
			if seq, ok := c.SequenceName(); ok {
				t.Sequence = &Sequence{Column: c.Name, Name: seq}
			}
		}
	}
	return t
}

func (b *Builder) analyzeForeignKeys(ctx context.Context, m *Model, table, key string) (int, error) {
	fks, err := b.driver.ForeignKeys(ctx, table)
	if err != nil {
		return 0, err
	}
	for _, fk := range fks {
		m.putBelongsTo(key, fk.Local, fk.Table)
		m.appendHasMany(canonical(fk.Table), table, fk.Local)
	}
	m.sortBelongsTo(key)
	return len(fks), nil
}
