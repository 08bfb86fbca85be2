package cli

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orgadmin/internal/admin"
	"github.com/roach88/orgadmin/internal/compiler"
	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/lookup"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/points"
	"github.com/roach88/orgadmin/internal/querysql"
	"github.com/roach88/orgadmin/internal/store"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeUsage       = "E002" // Malformed argument
	ErrCodeNotFound    = "E005" // Path or row not found
	ErrCodeModelFailed = "E006" // Model definitions failed to compile

	// Lookup errors
	ErrCodeUnknownEntity    = "E101" // No such entity
	ErrCodeUnknownField     = "E102" // No such attribute on an entity
	ErrCodeUnsupportedField = "E103" // Attribute kind cannot appear in a path
	ErrCodeBrokenChain      = "E104" // Chain does not follow relations
	ErrCodeInvalidKey       = "E105" // Malformed lookup key
	ErrCodeInvalidValue     = "E106" // Value cannot be compared (floats, nulls)

	// Distribution errors
	ErrCodeAlreadyDistributed  = "E201"
	ErrCodeInsufficientBalance = "E202"
	ErrCodeNoDistribution      = "E203"
	ErrCodeAmbiguous           = "E204"
	ErrCodeInvalidDistribution = "E205"

	ErrCodeTestFailed = "E301" // One or more scenarios failed
)

// classify maps an error to its code and exit status. Distribution
// refusals are operation failures; everything else the user can fix by
// changing the command.
func classify(err error) (string, int) {
	var compileErr *compiler.CompileError
	switch {
	case errors.Is(err, points.ErrAlreadyDistributed):
		return ErrCodeAlreadyDistributed, ExitFailure
	case errors.Is(err, points.ErrInsufficientBalance):
		return ErrCodeInsufficientBalance, ExitFailure
	case errors.Is(err, points.ErrNoActiveDistribution):
		return ErrCodeNoDistribution, ExitFailure
	case errors.Is(err, points.ErrAmbiguousDistribution):
		return ErrCodeAmbiguous, ExitFailure
	case errors.Is(err, points.ErrInvalidDistribution):
		return ErrCodeInvalidDistribution, ExitFailure
	case errors.Is(err, fieldref.ErrUnsupportedFieldKind):
		return ErrCodeUnsupportedField, ExitCommandError
	case errors.Is(err, fieldref.ErrBrokenChain):
		return ErrCodeBrokenChain, ExitCommandError
	case errors.Is(err, model.ErrUnknownEntity):
		return ErrCodeUnknownEntity, ExitCommandError
	case errors.Is(err, model.ErrUnknownField), errors.Is(err, querysql.ErrUnknownPath):
		return ErrCodeUnknownField, ExitCommandError
	case errors.Is(err, lookup.ErrInvalidKey), errors.Is(err, fieldref.ErrEmptyPath):
		return ErrCodeInvalidKey, ExitCommandError
	case errors.Is(err, ir.ErrUnsupportedValue), errors.Is(err, admin.ErrInvalidValue):
		return ErrCodeInvalidValue, ExitCommandError
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound, ExitCommandError
	case errors.As(err, &compileErr), errors.Is(err, model.ErrInvalidModel):
		return ErrCodeModelFailed, ExitCommandError
	default:
		return ErrCodeGeneric, GetExitCode(err)
	}
}

// parseValue reads a command-line value as a YAML scalar or flow list, so
// "20" is an integer, "true" a boolean and "[a, b]" a list.
func parseValue(s string) (any, error) {
	if s == "" {
		return "", nil
	}
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid value %q", s), err)
	}
	if v == nil {
		return s, nil
	}
	return v, nil
}

// parseWhere turns key=value pairs into a lookup map.
func parseWhere(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	where := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --where %q: expected key=value", pair))
		}
		if _, dup := where[key]; dup {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("duplicate --where key %q", key))
		}
		value, err := parseValue(raw)
		if err != nil {
			return nil, err
		}
		where[key] = value
	}
	return where, nil
}
