// Package output pairs merge output rows with the input objects.
//
// Rows are paired by the staging ordinal when the engine reported it. Otherwise they
// are paired by match key value, except for inserts whose generated identity is also
// the match key: those are handed out in identity order to the objects still waiting
// for one. Ambiguous key pairings fail before any object is touched.
//
// The package also holds the placeholder identity fallback (negative placeholders
// -N..-1 ordered by key) and the MySQL helpers that turn LAST_INSERT_ID and affected
// row counts into identities and stats.
package output
