package ir

import (
	"bytes"
	"fmt"
)

// Row is one result row, cells in ResultSet.Columns order.
type Row []Value

// ResultSet is the typed result of a data store query.
type ResultSet struct {
	Columns []string
	Rows    []Row
}

// NewResultSet creates an empty result set for the given columns.
func NewResultSet(columns []string) *ResultSet {
	return &ResultSet{Columns: columns}
}

// Append adds a row. The row must have one cell per column.
func (rs *ResultSet) Append(row Row) error {
	if len(row) != len(rs.Columns) {
		return fmt.Errorf("row has %d cells, result set has %d columns", len(row), len(rs.Columns))
	}
	rs.Rows = append(rs.Rows, row)
	return nil
}

// Len returns the number of rows.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}

// Strings flattens the result set into the legacy string sequence: every
// cell of row 0 in column order, then row 1, and so on. Callers zip the
// sequence against the column list they requested.
func (rs *ResultSet) Strings() []string {
	if rs == nil {
		return nil
	}
	out := make([]string, 0, len(rs.Rows)*len(rs.Columns))
	for _, row := range rs.Rows {
		for _, cell := range row {
			if cell == nil {
				out = append(out, "")
				continue
			}
			out = append(out, cell.String())
		}
	}
	return out
}

// Maps returns one column-name keyed map per row.
func (rs *ResultSet) Maps() []map[string]Value {
	if rs == nil {
		return nil
	}
	out := make([]map[string]Value, len(rs.Rows))
	for i, row := range rs.Rows {
		m := make(map[string]Value, len(rs.Columns))
		for j, col := range rs.Columns {
			m[col] = row[j]
		}
		out[i] = m
	}
	return out
}

// Column returns the cells of the named column, or nil when absent.
func (rs *ResultSet) Column(name string) []Value {
	idx := -1
	for i, c := range rs.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]Value, len(rs.Rows))
	for i, row := range rs.Rows {
		out[i] = row[idx]
	}
	return out
}

// MarshalJSON encodes the result set as {"columns": [...], "rows": [[...]]}.
func (rs *ResultSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"columns":[`)
	for i, c := range rs.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := MarshalValue(String(c))
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteString(`],"rows":[`)
	for i, row := range rs.Rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('[')
		for j, cell := range row {
			if j > 0 {
				buf.WriteByte(',')
			}
			b, err := MarshalValue(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, rs.Columns[j], err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}
