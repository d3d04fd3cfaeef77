// Package sqlbuilderutil derives sqlbuilder tables from the record structs
// that sorm reads and writes, so queries can name columns by field.
package sqlbuilderutil

import (
	"fmt"
	"strings"

	"fknsrs.biz/p/reflectutil"
	"fknsrs.biz/p/sqlbuilder"

	"fknsrs.biz/p/playlister/internal/stringutil"
)

type Table struct {
	*sqlbuilder.Table
	columns map[string]string
}

// C accepts a field name, its lowercase form, or the column name itself.
func (t *Table) C(name string) *sqlbuilder.BasicColumn {
	if column, ok := t.columns[name]; ok {
		name = column
	}

	return t.Table.C(name)
}

// MakeTable reads column names from `sql` tags, falling back to the snake
// case field name. The table name comes from a `table:` parameter on any
// field, or the snake case struct name.
func MakeTable(v interface{}) (*Table, error) {
	s, err := reflectutil.GetDescription(v)
	if err != nil {
		return nil, fmt.Errorf("sqlbuilderutil.MakeTable: could not get struct description: %w", err)
	}

	tableName := stringutil.PascalToSnake(s.Name())
	columns := make(map[string]string)

	var names []string

	for _, f := range s.Fields().WithoutTagValue("sql", "-") {
		column := stringutil.PascalToSnake(f.Name())

		if tag := f.Tag("sql"); tag != nil {
			if tag.Value() != "" {
				column = tag.Value()
			}

			if p := tag.Parameter("table"); p != nil {
				tableName = p.Value()
			}
		}

		names = append(names, column)

		for _, k := range []string{f.Name(), strings.ToLower(f.Name()), column} {
			columns[k] = column
		}
	}

	return &Table{
		Table:   sqlbuilder.NewTable(tableName, names...),
		columns: columns,
	}, nil
}

func MustMakeTable(v interface{}) *Table {
	t, err := MakeTable(v)
	if err != nil {
		panic(err)
	}

	return t
}
