// Package queryir provides the abstract query representation handed from
// call sites (admin actions, point distribution, the CLI) to the SQL
// backend.
//
// Every field in the IR is a resolved query path: the double-underscore
// join of attribute segments produced by package fieldref, e.g.
// "person__pos" on Position. The backend walks the path through the model
// registry to decide joins and columns; the IR itself carries no schema.
//
//	[fieldref chain] → [Query IR] → [querysql] → SQLite
//
// SEALED INTERFACES:
//
// Query, Predicate and Assignment are sealed using the marker method
// pattern. Only types in this package implement them, so backends can use
// exhaustive type switches:
//
//	switch q := query.(type) {
//	case Select:
//	    // read rows
//	case Update:
//	    // bulk update
//	}
//
// VALUES:
//
// All literal values are ir.IRValue (no floats). Comparing against
// ir.IRNull lowers to IS NULL and is reported by Validate as suspicious.
package queryir
