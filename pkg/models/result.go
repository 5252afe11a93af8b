package models

import (
	"bytes"
	"encoding/json"
)

// Row is one result row. Column order is preserved, including in JSON.
type Row struct {
	columns []string
	values  []any
}

// NewRow pairs column names with values. The slices are not copied;
// rows of one result set share their columns slice.
func NewRow(columns []string, values []any) Row {
	return Row{columns: columns, values: values}
}

func (r Row) Columns() []string { return r.columns }
func (r Row) Values() []any     { return r.values }
func (r Row) Len() int          { return len(r.columns) }

// Get returns the value of the named column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.columns {
		if c == column {
			return r.values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as an object with keys in column order.
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ResultSet is the formatted output of one query.
type ResultSet struct {
	Columns []string
	Rows    []Row
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Rows)
}
