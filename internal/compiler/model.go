package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/orgadmin/internal/model"
)

// Relation keys recognised inside a field struct.
var relationKinds = []model.FieldKind{
	model.KindForeignKey,
	model.KindOneToOne,
	model.KindManyToMany,
}

// CompileSource compiles CUE model definitions and builds the registry.
// The filename is only used for error positions.
//
// The source must define a top-level "model" struct:
//
//	model: Position: {
//		table: "position"
//		fields: {
//			person: {foreign_key: "NaturalPerson", related_name: "positions"}
//			pos:    int
//		}
//	}
func CompileSource(filename, src string) (*model.Registry, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	modelsVal := v.LookupPath(cue.ParsePath("model"))
	if !modelsVal.Exists() {
		return nil, &CompileError{
			Field:   "model",
			Message: "model is required",
			Pos:     v.Pos(),
		}
	}

	entities, err := CompileModels(modelsVal)
	if err != nil {
		return nil, err
	}

	reg, err := model.NewRegistry(entities...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return reg, nil
}

// CompileModels parses a CUE struct of entity definitions, keyed by entity
// name, in declaration order.
func CompileModels(v cue.Value) ([]model.Entity, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var entities []model.Entity
	for iter.Next() {
		entity, err := CompileEntity(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	if len(entities) == 0 {
		return nil, &CompileError{
			Field:   "model",
			Message: "at least one entity is required",
			Pos:     v.Pos(),
		}
	}
	return entities, nil
}

// CompileEntity parses a single entity definition.
func CompileEntity(name string, v cue.Value) (model.Entity, error) {
	entity := model.Entity{Name: name}

	tableVal := v.LookupPath(cue.ParsePath("table"))
	if !tableVal.Exists() {
		return entity, &CompileError{
			Field:   name + ".table",
			Message: "table is required",
			Pos:     v.Pos(),
		}
	}
	table, err := tableVal.String()
	if err != nil {
		return entity, formatCUEError(err)
	}
	entity.Table = table

	fieldsVal := v.LookupPath(cue.ParsePath("fields"))
	if !fieldsVal.Exists() {
		return entity, nil // an entity may carry only its id
	}

	iter, err := fieldsVal.Fields()
	if err != nil {
		return entity, formatCUEError(err)
	}

	for iter.Next() {
		field, err := parseField(name, iter.Label(), iter.Value())
		if err != nil {
			return entity, err
		}
		entity.Fields = append(entity.Fields, field)
	}

	return entity, nil
}

// parseField reads either a scalar type or a relation struct.
func parseField(entity, name string, v cue.Value) (model.Field, error) {
	field := model.Field{Name: name}
	path := fmt.Sprintf("%s.fields.%s", entity, name)

	if name == model.PrimaryKey {
		return field, &CompileError{
			Field:   path,
			Message: "id is implicit and cannot be declared",
			Pos:     v.Pos(),
		}
	}

	if v.IncompleteKind() != cue.StructKind {
		typ, err := extractTypeName(v)
		if err != nil {
			if ce, ok := err.(*CompileError); ok {
				ce.Field = path
			}
			return field, err
		}
		field.Kind = model.KindScalar
		field.Type = typ
		return field, nil
	}

	for _, kind := range relationKinds {
		relVal := v.LookupPath(cue.ParsePath(string(kind)))
		if !relVal.Exists() {
			continue
		}
		if field.Kind != "" {
			return field, &CompileError{
				Field:   path,
				Message: fmt.Sprintf("declares both %s and %s", field.Kind, kind),
				Pos:     v.Pos(),
			}
		}
		related, err := relVal.String()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.Kind = kind
		field.Related = related
	}

	if field.Kind == "" {
		return field, &CompileError{
			Field:   path,
			Message: "relation must declare foreign_key, one_to_one or many_to_many",
			Pos:     v.Pos(),
		}
	}

	relatedNameVal := v.LookupPath(cue.ParsePath("related_name"))
	if relatedNameVal.Exists() {
		relatedName, err := relatedNameVal.String()
		if err != nil {
			return field, formatCUEError(err)
		}
		field.RelatedName = relatedName
	}

	return field, nil
}

// extractTypeName converts a CUE scalar type to a column type name.
// Floats are forbidden: balances are integer point counts.
func extractTypeName(v cue.Value) (string, error) {
	switch v.IncompleteKind() {
	case cue.StringKind:
		return "string", nil
	case cue.IntKind:
		return "int", nil
	case cue.BoolKind:
		return "bool", nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	// CUE errors may contain multiple errors
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
