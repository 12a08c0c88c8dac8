// Package queryir provides the predicate and query representation callers
// use to read and edit the mirror.
//
// Predicates are a closed set (Equals, Contains, And) rather than free-form
// SQL strings, so every filter can be validated against the mirror columns
// and compiled with parameterized values only.
//
//	[caller / CLI flags / edit script] → [queryir] → [querysql] → SQLite
//
// SEALED INTERFACES:
//
// Query, Predicate and Assignment are sealed interfaces using the marker
// method pattern. Only types in this package can implement them, which keeps
// type switches in the compiler exhaustive.
//
// Example:
//
//	q := queryir.Select{
//	    Filter: queryir.And{Predicates: []queryir.Predicate{
//	        queryir.Equals{Field: "type", Value: ir.Int(1)},
//	        queryir.Contains{Field: "url", Substring: "github.com"},
//	    }},
//	}
package queryir
