package fieldref

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orgadmin/internal/ir"
	"github.com/roach88/orgadmin/internal/queryir"
)

// Position has a scalar pos and a to-one relation person -> NaturalPerson.
var (
	positionPerson   = ForwardRelationField{Owner: "Position", Name: "person", Related: "NaturalPerson", Multiplicity: ToOne}
	positionPersonID = ForeignIndexField{Owner: "Position", Relation: "person", Related: "NaturalPerson"}
	positionPos      = ScalarField{Owner: "Position", Name: "pos"}
	personName       = ScalarField{Owner: "NaturalPerson", Name: "name"}
	personPositions  = ReverseRelationField{Owner: "NaturalPerson", Name: "positions", Related: "Position"}
	personUnsub      = ForwardRelationField{Owner: "NaturalPerson", Name: "unsubscribe_list", Related: "Organization", Multiplicity: ToMany}
	orgName          = ScalarField{Owner: "Organization", Name: "oname"}
)

// notARef implements Ref from inside the package to model an unknown variant.
type notARef struct{}

func (notARef) fieldRef() {}

func TestSegment_Variants(t *testing.T) {
	tests := []struct {
		name string
		ref  Ref
		want string
	}{
		{"raw name", RawName("custom_literal"), "custom_literal"},
		{"scalar", positionPos, "pos"},
		{"forward to-one", positionPerson, "person"},
		{"forward one-to-one", ForwardRelationField{Owner: "A", Name: "profile", Related: "B", Multiplicity: OneToOne}, "profile"},
		{"forward to-many", personUnsub, "unsubscribe_list"},
		{"foreign index", positionPersonID, "person_id"},
		{"pointer scalar", &positionPos, "pos"},
		{"pointer foreign index", &positionPersonID, "person_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Segment(tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSegment_Unsupported(t *testing.T) {
	var nilScalar *ScalarField

	tests := []struct {
		name string
		ref  Ref
	}{
		{"reverse relation", personPositions},
		{"pointer reverse relation", &personPositions},
		{"unknown variant", notARef{}},
		{"nil", nil},
		{"nil pointer", nilScalar},
		{"empty raw name", RawName("")},
		{"empty scalar name", ScalarField{Owner: "Position"}},
		{"empty relation name", ForwardRelationField{Owner: "Position", Multiplicity: ToOne}},
		{"empty foreign index", ForeignIndexField{Owner: "Position"}},
		{"zero multiplicity", ForwardRelationField{Owner: "Position", Name: "person"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Segment(tt.ref)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupportedFieldKind)
			assert.Empty(t, got)
		})
	}
}

func TestSegment_ReverseRelationNamesType(t *testing.T) {
	_, err := Segment(personPositions)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fieldref.ReverseRelationField")
	assert.Contains(t, err.Error(), "NaturalPerson.positions")
}

func TestResolve_PositionScenario(t *testing.T) {
	path, err := Resolve(positionPerson, personName)
	require.NoError(t, err)
	assert.Equal(t, Path{"person", "name"}, path)
	assert.Equal(t, "person__name", path.String())

	got, err := PathOf(positionPerson, ScalarField{Owner: "NaturalPerson", Name: "pos"})
	require.NoError(t, err)
	assert.Equal(t, "person__pos", got)

	got, err = PathOf(positionPersonID)
	require.NoError(t, err)
	assert.Equal(t, "person_id", got)
}

func TestResolve_RawNamePassthrough(t *testing.T) {
	got, err := PathOf(RawName("custom_literal"))
	require.NoError(t, err)
	assert.Equal(t, "custom_literal", got)
}

func TestResolve_MixedRawAndTyped(t *testing.T) {
	got, err := PathOf(RawName("person"), personName)
	require.NoError(t, err)
	assert.Equal(t, "person__name", got)
}

func TestResolve_Empty(t *testing.T) {
	_, err := Resolve()
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = PathOf()
	assert.ErrorIs(t, err, ErrEmptyPath)
}

func TestResolve_ReportsFailingIndex(t *testing.T) {
	_, err := Resolve(positionPerson, personPositions, orgName)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnsupportedFieldKind)
	assert.Contains(t, err.Error(), "ref 1:")
}

func TestResolve_IsLax(t *testing.T) {
	// A scalar in the middle of a chain still resolves.
	got, err := PathOf(positionPos, personName)
	require.NoError(t, err)
	assert.Equal(t, "pos__name", got)
}

func TestMustPath(t *testing.T) {
	assert.Equal(t, "unsubscribe_list__oname", MustPath(personUnsub, orgName))
	assert.Panics(t, func() { MustPath(personPositions) })
	assert.Panics(t, func() { MustPath() })
}

func TestEquals_PositionScenario(t *testing.T) {
	eq, err := On(positionPerson, ScalarField{Owner: "NaturalPerson", Name: "pos"}).Equals(3)
	require.NoError(t, err)

	assert.Equal(t, queryir.Equals{Field: "person__pos", Value: ir.IRInt(3)}, eq)
	assert.Equal(t, map[string]ir.IRValue{"person__pos": ir.IRInt(3)}, eq.Filter())
}

func TestEqualsValue_MatchesEquals(t *testing.T) {
	values := []any{3, "元培学院", true, nil, int64(-7)}
	for _, v := range values {
		a, errA := On(positionPerson, personName).Equals(v)
		b, errB := EqualsValue(v, positionPerson, personName)
		require.NoError(t, errA)
		require.NoError(t, errB)
		assert.Equal(t, a, b)
	}
}

func TestEquals_ForeignIndexUsesColumn(t *testing.T) {
	eq, err := On(positionPersonID).Equals(42)
	require.NoError(t, err)
	assert.Equal(t, "person_id", eq.Field)
	assert.Equal(t, ir.IRInt(42), eq.Value)
}

func TestEquals_Errors(t *testing.T) {
	_, err := On(personPositions).Equals(1)
	assert.ErrorIs(t, err, ErrUnsupportedFieldKind)

	_, err = On().Equals(1)
	assert.ErrorIs(t, err, ErrEmptyPath)

	_, err = On(positionPos).Equals(1.5)
	assert.ErrorIs(t, err, ir.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "pos")

	_, err = EqualsValue(1, notARef{})
	assert.ErrorIs(t, err, ErrUnsupportedFieldKind)
}

func TestOn_ClonesInput(t *testing.T) {
	refs := []Ref{positionPerson, personName}
	chain := On(refs...)
	refs[1] = personPositions

	path, err := chain.Path()
	require.NoError(t, err)
	assert.Equal(t, "person__name", path.String())
}

func TestCompare(t *testing.T) {
	cmp, err := On(ScalarField{Owner: "NaturalPerson", Name: "yqpoint"}).Compare(queryir.OpLTE, 10)
	require.NoError(t, err)
	assert.Equal(t, queryir.Compare{Field: "yqpoint", Op: queryir.OpLTE, Value: ir.IRInt(10)}, cmp)

	_, err = On(personPositions).Compare(queryir.OpLT, 1)
	assert.ErrorIs(t, err, ErrUnsupportedFieldKind)
}

func TestIn(t *testing.T) {
	in, err := On(positionPersonID).In(1, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, "person_id", in.Field)
	assert.Equal(t, []ir.IRValue{ir.IRInt(1), ir.IRInt(2), ir.IRInt(3)}, in.Values)

	_, err = On(positionPersonID).In(1, 2.5)
	require.Error(t, err)
	assert.ErrorIs(t, err, ir.ErrUnsupportedValue)
	assert.Contains(t, err.Error(), "value 1")
}

func TestMultiplicity_String(t *testing.T) {
	assert.Equal(t, "to_one", ToOne.String())
	assert.Equal(t, "one_to_one", OneToOne.String())
	assert.Equal(t, "to_many", ToMany.String())
	assert.Equal(t, "Multiplicity(9)", Multiplicity(9).String())
}
