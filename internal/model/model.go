// Package model describes entities, their attributes, and their relations.
//
// The registry is the single source of truth for attribute names. Field
// references handed to the resolver are built here, and the SQL backend
// walks the same registry to turn query paths into joins.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/orgadmin/internal/fieldref"
)

var (
	// ErrUnknownEntity indicates a lookup of an entity not in the registry.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrUnknownField indicates a lookup of an attribute an entity lacks.
	ErrUnknownField = errors.New("unknown field")

	// ErrInvalidModel indicates entity definitions that do not fit together.
	ErrInvalidModel = errors.New("invalid model")
)

// PrimaryKey is the implicit integer id every entity carries.
const PrimaryKey = "id"

// FieldKind classifies an attribute.
type FieldKind string

const (
	KindScalar     FieldKind = "scalar"
	KindForeignKey FieldKind = "foreign_key"
	KindOneToOne   FieldKind = "one_to_one"
	KindManyToMany FieldKind = "many_to_many"
	KindReverse    FieldKind = "reverse"
)

// Field is one declared or synthesized attribute of an entity.
type Field struct {
	Name string
	Kind FieldKind

	// Type is the scalar type: "string", "int" or "bool". Empty for relations.
	Type string

	// Related is the entity at the other end of a relation.
	Related string

	// RelatedName names the reverse accessor synthesized on Related.
	// For reverse fields it names the forward relation it mirrors.
	RelatedName string
}

// IsRelation reports whether the field links to another entity.
func (f Field) IsRelation() bool {
	return f.Kind != KindScalar
}

// IsToOne reports whether the field is stored as a column on its owner.
func (f Field) IsToOne() bool {
	return f.Kind == KindForeignKey || f.Kind == KindOneToOne
}

// Column returns the storage column backing the field, or "" when the field
// has no column on its owner (many-to-many and reverse accessors).
func (f Field) Column() string {
	switch f.Kind {
	case KindScalar:
		return f.Name
	case KindForeignKey, KindOneToOne:
		return f.Name + fieldref.ForeignIndexSuffix
	default:
		return ""
	}
}

// Entity is a named table with attributes.
type Entity struct {
	Name   string
	Table  string
	Fields []Field
}

// Field looks up an attribute by declared name.
func (e *Entity) Field(name string) (Field, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Columns returns the entity's own storage columns, id first, in
// declaration order.
func (e *Entity) Columns() []string {
	cols := []string{PrimaryKey}
	for _, f := range e.Fields {
		if c := f.Column(); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}

// JoinTable returns the link table of a many-to-many field.
func (e *Entity) JoinTable(f Field) string {
	return e.Table + "_" + f.Name
}

// Ref returns the field reference for an attribute.
//
// Declared names win. A name of the form <relation>_id that is not declared
// resolves to the storage column of that to-one relation.
func (e *Entity) Ref(name string) (fieldref.Ref, error) {
	if name == PrimaryKey {
		return fieldref.ScalarField{Owner: e.Name, Name: PrimaryKey}, nil
	}

	if f, ok := e.Field(name); ok {
		switch f.Kind {
		case KindScalar:
			return fieldref.ScalarField{Owner: e.Name, Name: f.Name}, nil
		case KindForeignKey:
			return fieldref.ForwardRelationField{Owner: e.Name, Name: f.Name, Related: f.Related, Multiplicity: fieldref.ToOne}, nil
		case KindOneToOne:
			return fieldref.ForwardRelationField{Owner: e.Name, Name: f.Name, Related: f.Related, Multiplicity: fieldref.OneToOne}, nil
		case KindManyToMany:
			return fieldref.ForwardRelationField{Owner: e.Name, Name: f.Name, Related: f.Related, Multiplicity: fieldref.ToMany}, nil
		case KindReverse:
			return fieldref.ReverseRelationField{Owner: e.Name, Name: f.Name, Related: f.Related}, nil
		}
	}

	if rel, ok := strings.CutSuffix(name, fieldref.ForeignIndexSuffix); ok {
		if f, ok := e.Field(rel); ok && f.IsToOne() {
			return fieldref.ForeignIndexField{Owner: e.Name, Relation: f.Name, Related: f.Related}, nil
		}
	}

	return nil, fmt.Errorf("%w: %s.%s", ErrUnknownField, e.Name, name)
}

// MustRef is like Ref but panics on error.
func (e *Entity) MustRef(name string) fieldref.Ref {
	ref, err := e.Ref(name)
	if err != nil {
		panic(err)
	}
	return ref
}

// Registry holds a validated set of entities.
type Registry struct {
	entities map[string]*Entity
}

// NewRegistry validates entity definitions and synthesizes reverse
// accessors for every relation that declares a related name.
func NewRegistry(entities ...Entity) (*Registry, error) {
	r := &Registry{entities: make(map[string]*Entity, len(entities))}

	for _, e := range entities {
		if e.Name == "" || e.Table == "" {
			return nil, fmt.Errorf("%w: entity %q needs a name and a table", ErrInvalidModel, e.Name)
		}
		if _, dup := r.entities[e.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate entity %s", ErrInvalidModel, e.Name)
		}
		e.Fields = append([]Field(nil), e.Fields...)
		r.entities[e.Name] = &e
	}

	for _, name := range r.names() {
		e := r.entities[name]
		seen := map[string]bool{PrimaryKey: true}
		for _, f := range e.Fields {
			if seen[f.Name] {
				return nil, fmt.Errorf("%w: %s.%s declared twice", ErrInvalidModel, e.Name, f.Name)
			}
			seen[f.Name] = true

			if f.Kind == KindScalar {
				continue
			}
			if f.Kind == KindReverse {
				return nil, fmt.Errorf("%w: %s.%s: reverse accessors are synthesized, not declared", ErrInvalidModel, e.Name, f.Name)
			}
			if _, ok := r.entities[f.Related]; !ok {
				return nil, fmt.Errorf("%w: %s.%s points to %s: %w", ErrInvalidModel, e.Name, f.Name, f.Related, ErrUnknownEntity)
			}
		}
	}

	for _, name := range r.names() {
		e := r.entities[name]
		for _, f := range e.Fields {
			if !f.IsRelation() || f.Kind == KindReverse || f.RelatedName == "" {
				continue
			}
			target := r.entities[f.Related]
			if _, taken := target.Field(f.RelatedName); taken || f.RelatedName == PrimaryKey {
				return nil, fmt.Errorf("%w: reverse accessor %s.%s collides with an existing field", ErrInvalidModel, target.Name, f.RelatedName)
			}
			target.Fields = append(target.Fields, Field{
				Name:        f.RelatedName,
				Kind:        KindReverse,
				Related:     e.Name,
				RelatedName: f.Name,
			})
		}
	}

	return r, nil
}

// Entity looks up an entity by name.
func (r *Registry) Entity(name string) (*Entity, error) {
	e, ok := r.entities[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownEntity, name)
	}
	return e, nil
}

// MustEntity is like Entity but panics on error.
func (r *Registry) MustEntity(name string) *Entity {
	e, err := r.Entity(name)
	if err != nil {
		panic(err)
	}
	return e
}

// Entities returns all entities sorted by name.
func (r *Registry) Entities() []*Entity {
	out := make([]*Entity, 0, len(r.entities))
	for _, name := range r.names() {
		out = append(out, r.entities[name])
	}
	return out
}

// Refs resolves a chain of attribute names starting at root, following
// relations from one entity to the next. "person", "pos" on Position
// yields [Position.person, NaturalPerson.pos].
func (r *Registry) Refs(root string, names ...string) ([]fieldref.Ref, error) {
	e, err := r.Entity(root)
	if err != nil {
		return nil, err
	}

	refs := make([]fieldref.Ref, 0, len(names))
	for _, name := range names {
		if e == nil {
			return nil, fmt.Errorf("%w: %q follows a non-relational attribute", ErrUnknownField, name)
		}
		ref, err := e.Ref(name)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)

		e = nil
		switch rr := ref.(type) {
		case fieldref.ForwardRelationField:
			e = r.entities[rr.Related]
		case fieldref.ReverseRelationField:
			e = r.entities[rr.Related]
		}
	}
	return refs, nil
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
