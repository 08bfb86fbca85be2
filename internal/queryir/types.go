package queryir

import (
	"github.com/roach88/orgadmin/internal/ir"
)

// Query represents an abstract query.
//
// This is a sealed interface - only Select and Update implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate represents a filter condition over query paths.
//
// This is a sealed interface. Predicate types:
//   - Equals: path = value
//   - Compare: path <op> value
//   - In: path IN (values)
//   - Not: negation of a predicate
//   - And: all predicates must be true
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Assignment represents one SET clause of an Update.
type Assignment interface {
	assignmentNode() // Marker method - seals interface to this package
}

// Select reads rows of an entity.
//
// Semantics:
//
//	SELECT <fields> FROM <from> [JOIN ...] WHERE <filter> ORDER BY id
//
// Fields are query paths; each one is returned under its path string.
// An empty Fields list selects the entity's own columns.
type Select struct {
	From   string    // Entity name (e.g., "Position")
	Filter Predicate // WHERE conditions (nil = no filter)
	Fields []string  // Query paths to return (e.g., "person__name")
}

func (Select) queryNode() {}

// Update changes rows of an entity matched by Filter.
//
// Semantics:
//
//	UPDATE <from> SET <set> WHERE id IN (SELECT id ... WHERE <filter>)
//
// Assignments may only target the entity's own columns (single-segment
// paths or storage columns such as "org_id").
type Update struct {
	From   string       // Entity name
	Filter Predicate    // rows to update (nil = every row)
	Set    []Assignment // applied in order
}

func (Update) queryNode() {}

// Equals represents a path-equals-literal predicate.
//
// Example:
//
//	Equals{Field: "person__pos", Value: ir.IRInt(3)}
//
// Translates to SQL:
//
//	t1.pos = ?
type Equals struct {
	Field string     // Resolved query path
	Value ir.IRValue // Literal value
}

func (Equals) predicateNode() {}

// Filter returns the keyword-style form of the predicate, a one-entry
// map keyed by the query path.
func (e Equals) Filter() map[string]ir.IRValue {
	return map[string]ir.IRValue{e.Field: e.Value}
}

// Op is a comparison operator.
type Op string

// Comparison operators. Names follow double-underscore lookup suffixes
// (yqpoint__lte).
const (
	OpLT  Op = "lt"
	OpLTE Op = "lte"
	OpGT  Op = "gt"
	OpGTE Op = "gte"
	OpNE  Op = "ne"
)

// ValidOps maps each operator to its SQL token.
var ValidOps = map[Op]string{
	OpLT:  "<",
	OpLTE: "<=",
	OpGT:  ">",
	OpGTE: ">=",
	OpNE:  "<>",
}

// Compare represents an ordered comparison between a path and a literal.
type Compare struct {
	Field string
	Op    Op
	Value ir.IRValue
}

func (Compare) predicateNode() {}

// In matches rows whose path value is one of Values.
// An empty Values list matches nothing.
type In struct {
	Field  string
	Values []ir.IRValue
}

func (In) predicateNode() {}

// Not negates a predicate.
type Not struct {
	Predicate Predicate
}

func (Not) predicateNode() {}

// And represents a conjunction of predicates (all must be true).
// Empty Predicates means "always true".
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Assign sets a column to a literal value.
type Assign struct {
	Field string
	Value ir.IRValue
}

func (Assign) assignmentNode() {}

// Increment adds By to a numeric column (negative values subtract).
// Compiles to col = col + ?, so concurrent balances are never read back.
type Increment struct {
	Field string
	By    int64
}

func (Increment) assignmentNode() {}

// AllOf builds an And, dropping nil predicates. A single remaining
// predicate is returned unwrapped.
func AllOf(preds ...Predicate) Predicate {
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
