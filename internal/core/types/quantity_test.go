package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuantityUnmarshalJSON(t *testing.T) {
	var q Quantity

	require.NoError(t, json.Unmarshal([]byte(`12.5`), &q))
	assert.Equal(t, Quantity(125_000), q)

	require.NoError(t, json.Unmarshal([]byte(`"3.1415"`), &q))
	assert.Equal(t, Quantity(31_415), q)

	// Extra fractional digits truncate at scale 4.
	require.NoError(t, json.Unmarshal([]byte(`0.123456`), &q))
	assert.Equal(t, Quantity(1_234), q)

	require.NoError(t, json.Unmarshal([]byte(`-7`), &q))
	assert.Equal(t, NewQuantityFromInt(-7), q)

	require.NoError(t, json.Unmarshal([]byte(`null`), &q))
	assert.True(t, q.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`"abc"`), &q))
}

func TestQuantityMarshalJSON(t *testing.T) {
	data, err := json.Marshal(NewQuantityFromInt(42))
	require.NoError(t, err)
	assert.Equal(t, "42.0000", string(data))

	data, err = json.Marshal(Quantity(-15_000))
	require.NoError(t, err)
	assert.Equal(t, "-1.5000", string(data))
}

func TestQuantityArithmeticHelpers(t *testing.T) {
	a := NewQuantityFromInt(10)
	b := NewQuantityFromInt(3)

	assert.Equal(t, b, a.Min(b))
	assert.Equal(t, b, b.Min(a))
	assert.Equal(t, NewQuantityFromInt(-10), a.Neg())
	assert.Equal(t, a, a.Neg().Abs())
	assert.True(t, a.IsPositive())
	assert.True(t, a.Neg().IsNegative())
	assert.Equal(t, 10.0, a.Float64())
	assert.Equal(t, "10.0000", a.String())
}
