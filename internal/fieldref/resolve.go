package fieldref

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/queryir"
)

// Separator joins path segments, the query layer's lookup separator.
const Separator = queryir.PathSeparator

var (
	// ErrUnsupportedFieldKind indicates a reference that cannot be resolved:
	// reverse relations, unknown Ref implementations, nil, or empty names.
	ErrUnsupportedFieldKind = errors.New("unsupported field kind")

	// ErrEmptyPath indicates a chain with no references.
	ErrEmptyPath = errors.New("empty field path")
)

// Path is an ordered, non-empty list of resolved segments.
// The join is deferred to String, the single boundary-crossing call.
type Path []string

// String joins the segments with Separator.
func (p Path) String() string {
	return strings.Join(p, Separator)
}

// Segment resolves one reference to its path segment.
func Segment(ref Ref) (string, error) {
	switch r := deref(ref).(type) {
	case RawName:
		if r == "" {
			return "", fmt.Errorf("%w: empty raw name", ErrUnsupportedFieldKind)
		}
		return string(r), nil

	case ForeignIndexField:
		if r.Relation == "" {
			return "", fmt.Errorf("%w: foreign index on %s has no relation name", ErrUnsupportedFieldKind, r.Owner)
		}
		return r.AttName(), nil

	case ForwardRelationField:
		if r.Name == "" {
			return "", fmt.Errorf("%w: relation on %s has no name", ErrUnsupportedFieldKind, r.Owner)
		}
		switch r.Multiplicity {
		case ToOne, OneToOne, ToMany:
			return r.Name, nil
		default:
			return "", fmt.Errorf("%w: relation %s.%s has %v", ErrUnsupportedFieldKind, r.Owner, r.Name, r.Multiplicity)
		}

	case ScalarField:
		if r.Name == "" {
			return "", fmt.Errorf("%w: field on %s has no name", ErrUnsupportedFieldKind, r.Owner)
		}
		return r.Name, nil

	case ReverseRelationField:
		return "", fmt.Errorf("%w: %T %s.%s is not forward-navigable", ErrUnsupportedFieldKind, r, r.Owner, r.Name)

	default:
		return "", fmt.Errorf("%w: %T", ErrUnsupportedFieldKind, ref)
	}
}

// Resolve converts a chain of references into a Path.
//
// Segments are resolved independently and kept in input order. Resolve
// does not check that the chain is connected; see Check.
func Resolve(refs ...Ref) (Path, error) {
	if len(refs) == 0 {
		return nil, ErrEmptyPath
	}

	path := make(Path, len(refs))
	for i, ref := range refs {
		seg, err := Segment(ref)
		if err != nil {
			return nil, fmt.Errorf("ref %d: %w", i, err)
		}
		path[i] = seg
	}
	return path, nil
}

// PathOf resolves a chain and returns the joined path string.
func PathOf(refs ...Ref) (string, error) {
	path, err := Resolve(refs...)
	if err != nil {
		return "", err
	}
	return path.String(), nil
}

// MustPath is like PathOf but panics on error.
// Use for static field lists where failure is a programming error.
func MustPath(refs ...Ref) string {
	path, err := PathOf(refs...)
	if err != nil {
		panic(err)
	}
	return path
}

// Chain is a reference chain awaiting a comparison value.
type Chain struct {
	refs []Ref
}

// On starts a predicate over the given chain. The comparison value is
// supplied afterwards so it can never be mistaken for another segment.
func On(refs ...Ref) Chain {
	return Chain{refs: slices.Clone(refs)}
}

// Path resolves the chain.
func (c Chain) Path() (Path, error) {
	return Resolve(c.refs...)
}

// Equals builds the path = value predicate.
func (c Chain) Equals(value any) (queryir.Equals, error) {
	path, v, err := c.resolveWith(value)
	if err != nil {
		return queryir.Equals{}, err
	}
	return queryir.Equals{Field: path, Value: v}, nil
}

// Compare builds an ordered comparison, e.g. yqpoint <= 10.
func (c Chain) Compare(op queryir.Op, value any) (queryir.Compare, error) {
	path, v, err := c.resolveWith(value)
	if err != nil {
		return queryir.Compare{}, err
	}
	return queryir.Compare{Field: path, Op: op, Value: v}, nil
}

// In builds a membership predicate.
func (c Chain) In(values ...any) (queryir.In, error) {
	path, err := PathOf(c.refs...)
	if err != nil {
		return queryir.In{}, err
	}
	irValues := make([]ir.IRValue, len(values))
	for i, val := range values {
		v, err := ir.ValueOf(val)
		if err != nil {
			return queryir.In{}, fmt.Errorf("value %d for %s: %w", i, path, err)
		}
		irValues[i] = v
	}
	return queryir.In{Field: path, Values: irValues}, nil
}

func (c Chain) resolveWith(value any) (string, ir.IRValue, error) {
	path, err := PathOf(c.refs...)
	if err != nil {
		return "", nil, err
	}
	v, err := ir.ValueOf(value)
	if err != nil {
		return "", nil, fmt.Errorf("value for %s: %w", path, err)
	}
	return path, v, nil
}

// EqualsValue is On(refs...).Equals(value) with the value first, for call
// sites that read more naturally that way. Both forms produce identical
// predicates.
func EqualsValue(value any, refs ...Ref) (queryir.Equals, error) {
	return On(refs...).Equals(value)
}
