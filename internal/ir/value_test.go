package ir

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueOf(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected IRValue
	}{
		{"nil", nil, IRNull{}},
		{"string", "pos", IRString("pos")},
		{"int", 3, IRInt(3)},
		{"int32", int32(-4), IRInt(-4)},
		{"uint16", uint16(9), IRInt(9)},
		{"bool", true, IRBool(true)},
		{"ir passthrough", IRInt(5), IRInt(5)},
		{"time", time.Date(2026, 10, 12, 16, 0, 0, 0, time.FixedZone("CST", 8*3600)), IRString("2026-10-12T08:00:00Z")},
		{"string slice", []string{"a", "b"}, IRArray{IRString("a"), IRString("b")}},
		{"int64 slice", []int64{1, 2}, IRArray{IRInt(1), IRInt(2)}},
		{"nested", map[string]any{"k": []any{1, "x"}}, IRObject{"k": IRArray{IRInt(1), IRString("x")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ValueOf(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, v)
		})
	}
}

func TestValueOfRejectsUnsupported(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{"float64", 1.5},
		{"float32", float32(2)},
		{"struct", struct{}{}},
		{"nested float", []any{1, 2.5}},
		{"uint64 overflow", uint64(1 << 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValueOf(tt.input)
			require.ErrorIs(t, err, ErrUnsupportedValue)
		})
	}
}

func TestMustValueOfPanics(t *testing.T) {
	assert.Panics(t, func() { MustValueOf(0.5) })
	assert.Equal(t, IRInt(1), MustValueOf(1))
}

func TestNative(t *testing.T) {
	v, err := Native(IRString("a"))
	require.NoError(t, err)
	assert.Equal(t, "a", v)

	v, err = Native(IRInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)

	v, err = Native(IRBool(true))
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = Native(IRNull{})
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Native(IRArray{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
	_, err = Native(IRObject{})
	assert.ErrorIs(t, err, ErrUnsupportedValue)
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"aa", "a", 1},
		{"", "a", -1},
		{"𐀀", "\uE000", -1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			result := compareKeysRFC8785(tt.a, tt.b)
			switch {
			case tt.expected < 0:
				assert.Less(t, result, 0)
			case tt.expected > 0:
				assert.Greater(t, result, 0)
			default:
				assert.Equal(t, 0, result)
			}
		})
	}
}

func TestIRObjectMarshalJSONSortedKeys(t *testing.T) {
	obj := IRObject{"pos": IRInt(3), "name": IRString("Li"), "none": IRNull{}}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"Li","none":null,"pos":3}`, string(data))
}
