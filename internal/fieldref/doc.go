// Package fieldref turns typed field references into query paths.
//
// Query paths name a traversal from a root entity through zero or more
// relations to a terminal field, joined with a double underscore:
//
//	Position → person → pos   ==>   "person__pos"
//
// Writing those strings by hand means a renamed attribute silently breaks
// every query that spells it. Call sites instead hold references obtained
// from the model registry and let this package produce the string:
//
//	person := positions.MustRef("person") // ForwardRelationField
//	pos := people.MustRef("pos")          // ScalarField
//	eq, err := fieldref.On(person, pos).Equals(3)
//	// eq.Filter() == {"person__pos": 3}
//
// REFERENCE KINDS:
//
// Ref is a sealed sum type. Each variant resolves to one path segment:
//
//	RawName               the literal text (already resolved)
//	ScalarField           the declared attribute name
//	ForwardRelationField  the declared relation name (joins)
//	ForeignIndexField     the storage column, relation name + "_id"
//	ReverseRelationField  unsupported, always ErrUnsupportedFieldKind
//
// The ForeignIndexField distinction matters: "person" compares through the
// relation, "person_id" compares the raw identifier column. A caller
// holding a raw id must use the storage column form.
//
// TRUST BOUNDARY:
//
// Resolve is purely syntactic. It does not check that each relation leads
// to the owner of the next reference. Check performs that validation when
// the caller wants it; the SQL backend independently rejects paths that do
// not exist in the registry.
package fieldref
