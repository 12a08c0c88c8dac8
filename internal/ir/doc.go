// Package ir provides the cell value types shared by every foxmirror package.
//
// This package contains type definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - Value is sealed: Null, Int, Real, String
//   - Equality is exact and null-aware (NULL equals NULL, Int never equals Real)
//   - Tuples are positional; the projection that produced them names the columns
package ir
