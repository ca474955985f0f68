// Package sqlident quotes dynamically-assembled Postgres identifiers
// safely, shared by every package that builds SQL against names stored
// in the ai.vectorizer control-plane tables rather than known at compile
// time.
package sqlident

import "github.com/jackc/pgx/v5"

// Quote safely quotes a single identifier.
func Quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// Qualify safely quotes a schema-qualified identifier.
func Qualify(schema, ident string) string {
	return pgx.Identifier{schema, ident}.Sanitize()
}
