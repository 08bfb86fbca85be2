package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orgadmin/internal/admin"
	"github.com/roach88/orgadmin/internal/compiler"
	"github.com/roach88/orgadmin/internal/fieldref"
	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/lookup"
	"github.com/roach88/orgadmin/internal/model"
	"github.com/roach88/orgadmin/internal/points"
	"github.com/roach88/orgadmin/internal/store"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err      error
		wantCode string
		wantExit int
	}{
		{points.ErrAlreadyDistributed, ErrCodeAlreadyDistributed, ExitFailure},
		{points.ErrInsufficientBalance, ErrCodeInsufficientBalance, ExitFailure},
		{points.ErrNoActiveDistribution, ErrCodeNoDistribution, ExitFailure},
		{points.ErrAmbiguousDistribution, ErrCodeAmbiguous, ExitFailure},
		{points.ErrInvalidDistribution, ErrCodeInvalidDistribution, ExitFailure},
		{fieldref.ErrUnsupportedFieldKind, ErrCodeUnsupportedField, ExitCommandError},
		{fieldref.ErrBrokenChain, ErrCodeBrokenChain, ExitCommandError},
		{fieldref.ErrEmptyPath, ErrCodeInvalidKey, ExitCommandError},
		{model.ErrUnknownEntity, ErrCodeUnknownEntity, ExitCommandError},
		{model.ErrUnknownField, ErrCodeUnknownField, ExitCommandError},
		{model.ErrInvalidModel, ErrCodeModelFailed, ExitCommandError},
		{lookup.ErrInvalidKey, ErrCodeInvalidKey, ExitCommandError},
		{ir.ErrUnsupportedValue, ErrCodeInvalidValue, ExitCommandError},
		{admin.ErrInvalidValue, ErrCodeInvalidValue, ExitCommandError},
		{store.ErrNotFound, ErrCodeNotFound, ExitCommandError},
		{&compiler.CompileError{Message: "bad"}, ErrCodeModelFailed, ExitCommandError},
		{NewExitError(ExitCommandError, "usage"), ErrCodeGeneric, ExitCommandError},
		{errors.New("boom"), ErrCodeGeneric, ExitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			code, exit := classify(fmt.Errorf("context: %w", tt.err))
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantExit, exit)
		})
	}
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"20", 20},
		{"-3", -3},
		{"true", true},
		{"false", false},
		{"alice", "alice"},
		{"Chess Club", "Chess Club"},
		{"元培学院", "元培学院"},
		{`"20"`, "20"},
		{"[Alice, Bob]", []any{"Alice", "Bob"}},
		{"[1, 2]", []any{1, 2}},
		{"", ""},
		{"~", "~"},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseValue(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseValue_Invalid(t *testing.T) {
	_, err := parseValue("[unclosed")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseWhere(t *testing.T) {
	where, err := parseWhere([]string{"person.name=Bob", "pos__gte=2", "name__in=[a, b]", "semester="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"person.name": "Bob",
		"pos__gte":    2,
		"name__in":    []any{"a", "b"},
		"semester":    "",
	}, where)

	where, err = parseWhere(nil)
	require.NoError(t, err)
	assert.Nil(t, where)
}

func TestParseWhere_Errors(t *testing.T) {
	tests := []struct {
		name  string
		pairs []string
		want  string
	}{
		{"no equals", []string{"pos"}, "expected key=value"},
		{"empty key", []string{"=1"}, "expected key=value"},
		{"duplicate", []string{"pos=1", "pos=2"}, "duplicate --where key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseWhere(tt.pairs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}
