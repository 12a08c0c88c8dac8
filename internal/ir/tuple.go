package ir

import (
	"database/sql"
	"fmt"
)

// Tuple is an ordered list of cells, positionally aligned with a projection.
type Tuple []Value

// Equal reports whether two tuples have the same length and pairwise equal cells.
func (t Tuple) Equal(other Tuple) bool {
	if len(t) != len(other) {
		return false
	}
	for i := range t {
		if !Equal(t[i], other[i]) {
			return false
		}
	}
	return true
}

// Params converts the tuple into query arguments.
func (t Tuple) Params() []any {
	params := make([]any, len(t))
	for i, v := range t {
		params[i] = Param(v)
	}
	return params
}

// ScanTuple reads the current row into a Tuple of width n.
// Callers must have advanced rows with Next.
func ScanTuple(rows *sql.Rows, n int) (Tuple, error) {
	raw := make([]any, n)
	ptrs := make([]any, n)
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	t := make(Tuple, n)
	for i, r := range raw {
		v, err := FromSQL(r)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}
