package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/orgadmin/internal/ir"
)

// PathSeparator joins attribute segments in a query path.
const PathSeparator = "__"

// ValidationResult lists structural problems of a query.
//
// Validate checks the IR alone; whether a path exists is decided by the
// backend against the model registry.
type ValidationResult struct {
	// Valid is true when Issues is empty.
	Valid bool

	// Issues describes each problem found, in traversal order.
	Issues []string
}

// Validate checks a query for structural problems:
//  1. Every path is non-empty and has no empty segments
//  2. Compare uses a known operator and never compares against NULL
//  3. Equals against NULL is flagged (use an explicit IS NULL intent)
//  4. In has at least one value
//  5. Update has at least one assignment, each on a single segment path
//
// Validate is a pure function with no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{issues: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:  len(v.issues) == 0,
		Issues: v.issues,
	}
}

// validator accumulates issues during traversal.
type validator struct {
	issues []string
}

func (v *validator) addIssue(format string, args ...any) {
	v.issues = append(v.issues, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addIssue("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	case Update:
		v.validateUpdate(query)
	case *Update:
		v.validateUpdate(*query)
	default:
		v.addIssue("unknown query type: %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	if sel.From == "" {
		v.addIssue("select has no source entity")
	}
	for _, f := range sel.Fields {
		v.validatePath(f)
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter)
	}
}

func (v *validator) validateUpdate(upd Update) {
	if upd.From == "" {
		v.addIssue("update has no source entity")
	}
	if len(upd.Set) == 0 {
		v.addIssue("update of %s has no assignments", upd.From)
	}
	for _, a := range upd.Set {
		var field string
		switch asg := a.(type) {
		case Assign:
			field = asg.Field
		case Increment:
			field = asg.Field
		default:
			v.addIssue("unknown assignment type: %T", a)
			continue
		}
		v.validatePath(field)
		if strings.Contains(field, PathSeparator) {
			v.addIssue("assignment to '%s' crosses a relation - only own columns can be set", field)
		}
	}
	if upd.Filter != nil {
		v.validatePredicate(upd.Filter)
	}
}

func (v *validator) validatePath(path string) {
	if path == "" {
		v.addIssue("empty query path")
		return
	}
	for _, seg := range strings.Split(path, PathSeparator) {
		if seg == "" {
			v.addIssue("query path '%s' has an empty segment", path)
			return
		}
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		v.addIssue("nil predicate")
	case Equals:
		v.validatePath(pred.Field)
		if _, isNull := pred.Value.(ir.IRNull); isNull {
			v.addIssue("field '%s' compared to NULL", pred.Field)
		}
	case Compare:
		v.validatePath(pred.Field)
		if _, ok := ValidOps[pred.Op]; !ok {
			v.addIssue("unknown operator '%s' on field '%s'", pred.Op, pred.Field)
		}
		if _, isNull := pred.Value.(ir.IRNull); isNull {
			v.addIssue("field '%s' ordered against NULL", pred.Field)
		}
	case In:
		v.validatePath(pred.Field)
		if len(pred.Values) == 0 {
			v.addIssue("field '%s' IN empty set matches nothing", pred.Field)
		}
	case Not:
		v.validatePredicate(pred.Predicate)
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addIssue("unknown predicate type: %T", p)
	}
}
