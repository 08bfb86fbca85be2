package fieldref

import "fmt"

// ForeignIndexSuffix is appended to a to-one relation name to form the
// storage column holding the related row's id.
const ForeignIndexSuffix = "_id"

// Ref is a single step of a query path.
//
// This is a sealed interface - only the variants in this package implement
// it. Values are immutable descriptions built by the model registry.
type Ref interface {
	fieldRef() // Marker method - seals interface to this package
}

// RawName is an already-resolved path segment supplied literally.
// It lets callers mix hand-written segments with typed references.
type RawName string

func (RawName) fieldRef() {}

// ScalarField is a non-relational attribute of an entity.
type ScalarField struct {
	Owner string // Entity declaring the attribute
	Name  string // Attribute name
}

func (ScalarField) fieldRef() {}

// ForeignIndexField is the raw identifier form of a to-one relation.
//
// It resolves to the storage column (Relation + "_id"), not to the
// relation name, so that comparisons against a raw id hit the column
// directly instead of going through a join.
type ForeignIndexField struct {
	Owner    string // Entity declaring the relation
	Relation string // Logical relation name, e.g. "person"
	Related  string // Entity the relation points to
}

func (ForeignIndexField) fieldRef() {}

// AttName returns the storage column name, e.g. "person_id".
func (f ForeignIndexField) AttName() string {
	return f.Relation + ForeignIndexSuffix
}

// Multiplicity describes how many related rows a forward relation reaches.
type Multiplicity int

const (
	// ToOne is a many-to-one foreign key.
	ToOne Multiplicity = iota + 1
	// OneToOne is a unique foreign key.
	OneToOne
	// ToMany is a many-to-many relation.
	ToMany
)

func (m Multiplicity) String() string {
	switch m {
	case ToOne:
		return "to_one"
	case OneToOne:
		return "one_to_one"
	case ToMany:
		return "to_many"
	default:
		return fmt.Sprintf("Multiplicity(%d)", int(m))
	}
}

// ForwardRelationField is a relation traversed in its declared direction.
type ForwardRelationField struct {
	Owner        string
	Name         string
	Related      string
	Multiplicity Multiplicity
}

func (ForwardRelationField) fieldRef() {}

// ReverseRelationField is the back-collection accessor synthesized on the
// related entity. It exists so the registry can describe every attribute;
// the resolver rejects it.
type ReverseRelationField struct {
	Owner   string // Entity the accessor lives on
	Name    string // Accessor name, e.g. "positions"
	Related string // Entity declaring the forward relation
}

func (ReverseRelationField) fieldRef() {}

// deref unwraps non-nil pointers to the variants.
func deref(ref Ref) Ref {
	switch r := ref.(type) {
	case *RawName:
		if r != nil {
			return *r
		}
	case *ScalarField:
		if r != nil {
			return *r
		}
	case *ForeignIndexField:
		if r != nil {
			return *r
		}
	case *ForwardRelationField:
		if r != nil {
			return *r
		}
	case *ReverseRelationField:
		if r != nil {
			return *r
		}
	}
	return ref
}
