package aggregator

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fold(t *testing.T, typ AggregateType, values ...interface{}) interface{} {
	t.Helper()
	agg, err := New(typ)
	require.NoError(t, err)
	for _, v := range values {
		agg.Add(v)
	}
	return agg.Result()
}

func TestBuiltinAggregators(t *testing.T) {
	assert.Equal(t, int64(3), fold(t, Count, 1, "a", nil))
	assert.Equal(t, 6.0, fold(t, Sum, 1.0, 2.0, 3.0))
	assert.Equal(t, 2.0, fold(t, Avg, 1.0, 2.0, 3.0))
	assert.Equal(t, 1.0, fold(t, Min, 3.0, 1.0, 2.0))
	assert.Equal(t, 3.0, fold(t, Max, 1.0, 3.0, 2.0))
	assert.Equal(t, "a", fold(t, First, "a", "b", "c"))
	assert.Equal(t, "c", fold(t, Last, "a", "b", "c"))
	assert.Equal(t, int64(2), fold(t, DistinctCount, "a", "b", "a", "b"))
}

func TestWelfordStdDevAndVariance(t *testing.T) {
	values := []interface{}{2.0, 4.0, 4.0, 4.0, 5.0, 5.0, 7.0, 9.0}

	variance := fold(t, Variance, values...).(float64)
	assert.InDelta(t, 32.0/7.0, variance, 1e-9)

	stddev := fold(t, StdDev, values...).(float64)
	assert.InDelta(t, math.Sqrt(32.0/7.0), stddev, 1e-9)
}

func TestStdDevOfSingleValueIsZero(t *testing.T) {
	assert.Equal(t, 0.0, fold(t, StdDev, 5.0))
	assert.Equal(t, 0.0, fold(t, Variance, 5.0))
}

func TestEmptyNumericAggregates(t *testing.T) {
	assert.Nil(t, fold(t, Avg))
	assert.Nil(t, fold(t, Min))
	assert.Nil(t, fold(t, Max))
	assert.Equal(t, 0.0, fold(t, Sum))
	assert.Equal(t, int64(0), fold(t, Count))
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(AggregateType("median"))
	require.Error(t, err)
}

type sumOfSquares struct{ sum float64 }

func (*sumOfSquares) New() AggregatorFunction { return &sumOfSquares{} }
func (a *sumOfSquares) Add(v interface{}) {
	if f, ok := v.(float64); ok {
		a.sum += f * f
	}
}
func (a *sumOfSquares) Result() interface{} { return a.sum }

func TestRegisterCustomAggregator(t *testing.T) {
	Register("sum_sq", &sumOfSquares{})
	assert.Equal(t, 13.0, fold(t, "sum_sq", 2.0, 3.0))
}
