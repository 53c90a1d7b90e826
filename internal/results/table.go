// Package results holds result tables and the sinks that persist them.
package results

import (
	"github.com/haasonsaas/llmexperiment/pkg/models"
)

// Table is an ordered list of rows whose columns are the union of the rows'
// columns in first-seen order. A row missing a column reads as absent.
// The zero value is an empty table.
type Table struct {
	columns []string
	seen    map[string]struct{}
	rows    []models.Record
}

// NewTable creates a table holding copies of rows.
func NewTable(rows ...models.Record) *Table {
	t := &Table{}
	t.Append(rows...)
	return t
}

// Append adds copies of rows.
func (t *Table) Append(rows ...models.Record) {
	for _, row := range rows {
		for _, key := range row.Keys() {
			t.addColumn(key)
		}
		t.rows = append(t.rows, row.Clone())
	}
}

// Concat appends every row of other, keeping other's column order for
// columns t has not seen yet.
func (t *Table) Concat(other *Table) {
	if other == nil {
		return
	}
	for _, col := range other.columns {
		t.addColumn(col)
	}
	for _, row := range other.rows {
		t.rows = append(t.rows, row.Clone())
	}
}

// WithColumn sets column name to v in every row and returns t. The column is
// registered even when the table has no rows.
func (t *Table) WithColumn(name string, v models.Value) *Table {
	t.addColumn(name)
	for i := range t.rows {
		t.rows[i].Set(name, v)
	}
	return t
}

func (t *Table) addColumn(name string) {
	if t.seen == nil {
		t.seen = make(map[string]struct{})
	}
	if _, ok := t.seen[name]; ok {
		return
	}
	t.seen[name] = struct{}{}
	t.columns = append(t.columns, name)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Columns returns the column names.
func (t *Table) Columns() []string {
	if t == nil {
		return nil
	}
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Rows returns copies of the rows.
func (t *Table) Rows() []models.Record {
	if t == nil {
		return nil
	}
	out := make([]models.Record, len(t.rows))
	for i, row := range t.rows {
		out[i] = row.Clone()
	}
	return out
}

// Cell returns the value at row i, column name. Missing cells are absent.
func (t *Table) Cell(i int, name string) models.Value {
	if t == nil || i < 0 || i >= len(t.rows) {
		return models.Absent(nil)
	}
	v, ok := t.rows[i].Get(name)
	if !ok {
		return models.Absent(nil)
	}
	return v
}

// AbsentCells counts absent cells over the full column union.
func (t *Table) AbsentCells() int {
	if t == nil {
		return 0
	}
	n := 0
	for i := range t.rows {
		for _, col := range t.columns {
			if !t.Cell(i, col).IsPresent() {
				n++
			}
		}
	}
	return n
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	out := &Table{}
	out.Concat(t)
	return out
}

// Reset removes every row and column.
func (t *Table) Reset() {
	t.columns = nil
	t.seen = nil
	t.rows = nil
}
