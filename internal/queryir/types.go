package queryir

import (
	"sort"

	"github.com/roach88/foxmirror/internal/ir"
)

// Query represents an abstract query against the mirror table.
//
// This is a sealed interface - only types in this package implement it.
// The marker method pattern prevents external implementations and enables
// exhaustive type switches in backend compilers.
//
// Query types:
//   - Select: read mirror rows matching a predicate
//   - Update: assign new values to mirror rows matching a predicate
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition.
//
// This is a sealed interface - only types in this package implement it.
//
// Predicate types:
//   - Equals: field = literal_value (NULL literal means IS NULL)
//   - Contains: field contains substring, case-insensitive
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Assignment is one SET clause of an Update.
//
// This is a sealed interface - only Set and Replace implement it.
type Assignment interface {
	assignmentNode()
}

// Select reads mirror rows.
//
// Semantics:
//
//	SELECT <fields> FROM bookmark WHERE <filter> ORDER BY id LIMIT <limit>
//
// Empty Fields selects every mirror column. Limit <= 0 means no limit.
type Select struct {
	Filter Predicate // WHERE conditions (nil = no filter)
	Fields []string  // Projected columns (empty = all)
	Limit  int       // Maximum rows (0 = unlimited)
}

func (Select) queryNode() {}

// Update modifies mirror rows in place.
//
// Semantics:
//
//	UPDATE bookmark SET <assignments> WHERE <filter>
//
// A nil Filter updates every row.
type Update struct {
	Filter      Predicate
	Assignments []Assignment
}

func (Update) queryNode() {}

// Equals represents a field-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "type", Value: ir.Int(2)}
//
// Translates to SQL:
//
//	type = ?
//
// An ir.Null value translates to "field IS NULL".
type Equals struct {
	Field string   // Mirror column
	Value ir.Value // Literal value
}

func (Equals) predicateNode() {}

// Contains represents a case-insensitive substring match.
//
// Example:
//
//	Contains{Field: "url", Substring: "github.com"}
//
// NULL fields never match.
type Contains struct {
	Field     string
	Substring string
}

func (Contains) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// An empty And is vacuously true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Set assigns a literal value to a field.
type Set struct {
	Field string
	Value ir.Value
}

func (Set) assignmentNode() {}

// Replace substitutes every occurrence of Old with New inside a text field.
// Matching is case-sensitive, like SQL replace().
type Replace struct {
	Field string
	Old   string
	New   string
}

func (Replace) assignmentNode() {}

// Where builds a conjunction of Equals predicates from a field map.
// Fields are sorted so the same map always compiles to the same SQL.
// An empty map returns nil (no filter).
func Where(fields map[string]ir.Value) Predicate {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	preds := make([]Predicate, 0, len(keys))
	for _, k := range keys {
		preds = append(preds, Equals{Field: k, Value: fields[k]})
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}

// Conjoin combines predicates with And, skipping nils.
// Returns nil when nothing remains and the predicate itself when only one does.
func Conjoin(preds ...Predicate) Predicate {
	var kept []Predicate
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
