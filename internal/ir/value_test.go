package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueSealed(t *testing.T) {
	// Verify all types implement Value (compile-time check via assignment)
	var _ Value = Null{}
	var _ Value = Int(42)
	var _ Value = Real(0.5)
	var _ Value = String("test")
}

func TestEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null equals null", Null{}, Null{}, true},
		{"nil equals null", nil, Null{}, true},
		{"null vs int", Null{}, Int(0), false},
		{"null vs empty string", Null{}, String(""), false},
		{"same int", Int(7), Int(7), true},
		{"different int", Int(7), Int(8), false},
		{"int vs real", Int(1), Real(1), false},
		{"same string", String("a"), String("a"), true},
		{"case matters", String("a"), String("A"), false},
		{"string vs int", String("1"), Int(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.a, tt.b))
			assert.Equal(t, tt.want, Equal(tt.b, tt.a), "equality must be symmetric")
		})
	}
}

func TestFromSQL(t *testing.T) {
	v, err := FromSQL(nil)
	require.NoError(t, err)
	assert.Equal(t, Null{}, v)

	v, err = FromSQL(int64(3))
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = FromSQL([]byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, String("blob"), v)

	v, err = FromSQL(true)
	require.NoError(t, err)
	assert.Equal(t, Int(1), v)

	_, err = FromSQL(struct{}{})
	assert.Error(t, err)
}

func TestParamRoundTrip(t *testing.T) {
	assert.Nil(t, Param(Null{}))
	assert.Nil(t, Param(nil))
	assert.Equal(t, int64(5), Param(Int(5)))
	assert.Equal(t, 1.5, Param(Real(1.5)))
	assert.Equal(t, "x", Param(String("x")))
}

func TestParse(t *testing.T) {
	assert.Equal(t, Null{}, Parse("NULL"))
	assert.Equal(t, Int(42), Parse("42"))
	assert.Equal(t, Int(-1), Parse("-1"))
	assert.Equal(t, String("medium.com"), Parse("medium.com"))
	assert.Equal(t, String("42"), Parse(`"42"`))
}

func TestFromAny(t *testing.T) {
	v, err := FromAny(2)
	require.NoError(t, err)
	assert.Equal(t, Int(2), v)

	v, err = FromAny(2.5)
	require.NoError(t, err)
	assert.Equal(t, Real(2.5), v)

	v, err = FromAny(float64(3))
	require.NoError(t, err)
	assert.Equal(t, Int(3), v)

	v, err = FromAny(json.Number("12"))
	require.NoError(t, err)
	assert.Equal(t, Int(12), v)

	_, err = FromAny([]string{"nope"})
	assert.Error(t, err)
}

func TestNullMarshalJSON(t *testing.T) {
	data, err := json.Marshal(Tuple{Null{}, Int(1), String("a")})
	require.NoError(t, err)
	assert.JSONEq(t, `[null, 1, "a"]`, string(data))
}

func TestTupleEqual(t *testing.T) {
	a := Tuple{Int(1), String("x"), Null{}}
	assert.True(t, a.Equal(Tuple{Int(1), String("x"), Null{}}))
	assert.False(t, a.Equal(Tuple{Int(1), String("x")}))
	assert.False(t, a.Equal(Tuple{Int(1), String("y"), Null{}}))
	assert.Equal(t, []any{int64(1), "x", nil}, a.Params())
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "NULL", Format(Null{}))
	assert.Equal(t, "12", Format(Int(12)))
	assert.Equal(t, "0.25", Format(Real(0.25)))
	assert.Equal(t, "title", Format(String("title")))
}
