package fieldref

import (
	"errors"
	"fmt"
)

// ErrBrokenChain indicates references that do not form a connected path.
var ErrBrokenChain = errors.New("broken field chain")

// ChainError reports where a chain stops being connected.
type ChainError struct {
	Index  int    // Position of the offending reference
	Reason string // Human-readable cause
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s at ref %d: %s", ErrBrokenChain, e.Index, e.Reason)
}

// Is matches ErrBrokenChain.
func (e *ChainError) Is(target error) bool {
	return target == ErrBrokenChain
}

// Check validates that refs form a connected path starting at root.
//
// Rules:
//  1. The first typed reference must be owned by root.
//  2. Each forward relation sets the owner expected for the next reference.
//  3. Scalar fields and foreign index columns may only appear last.
//  4. A RawName resets tracking, so the reference after it is not checked
//     for ownership.
//
// Unresolvable references fail with ErrUnsupportedFieldKind, exactly as
// Segment would.
func Check(root string, refs ...Ref) error {
	if len(refs) == 0 {
		return ErrEmptyPath
	}

	expected, known := root, true
	for i, ref := range refs {
		last := i == len(refs)-1

		switch r := deref(ref).(type) {
		case RawName:
			if r == "" {
				return &ChainError{Index: i, Reason: "empty raw name"}
			}
			known = false

		case ScalarField:
			if err := checkOwner(i, r.Owner, r.Name, expected, known); err != nil {
				return err
			}
			if !last {
				return &ChainError{Index: i, Reason: fmt.Sprintf("scalar field %s.%s must be the last reference", r.Owner, r.Name)}
			}

		case ForeignIndexField:
			if err := checkOwner(i, r.Owner, r.AttName(), expected, known); err != nil {
				return err
			}
			if !last {
				return &ChainError{Index: i, Reason: fmt.Sprintf("storage column %s.%s must be the last reference", r.Owner, r.AttName())}
			}

		case ForwardRelationField:
			if err := checkOwner(i, r.Owner, r.Name, expected, known); err != nil {
				return err
			}
			if _, err := Segment(r); err != nil {
				return fmt.Errorf("ref %d: %w", i, err)
			}
			expected, known = r.Related, true

		default:
			_, err := Segment(ref)
			return fmt.Errorf("ref %d: %w", i, err)
		}
	}
	return nil
}

func checkOwner(index int, owner, name, expected string, known bool) error {
	if known && owner != expected {
		return &ChainError{
			Index:  index,
			Reason: fmt.Sprintf("%s.%s is not reachable from %s", owner, name, expected),
		}
	}
	return nil
}
