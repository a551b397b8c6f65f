package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAggregator(t *testing.T, groupFields []string, aggFields []AggregationField) *GroupAggregator {
	t.Helper()
	ga, err := NewGroupAggregator(groupFields, aggFields)
	require.NoError(t, err)
	return ga
}

func TestGroupAggregatorPerGroupAverages(t *testing.T) {
	ga := newTestAggregator(t, []string{"symbol"}, []AggregationField{
		{InputField: "price", AggregateType: Avg, OutputAlias: "ap"},
	})

	require.NoError(t, ga.Add(map[string]interface{}{"symbol": "A", "price": 10.0}))
	require.NoError(t, ga.Add(map[string]interface{}{"symbol": "A", "price": 20.0}))
	require.NoError(t, ga.Add(map[string]interface{}{"symbol": "B", "price": 30.0}))

	results, err := ga.GetResults()
	require.NoError(t, err)
	require.Len(t, results, 2)

	byGroup := make(map[interface{}]float64, 2)
	for _, r := range results {
		byGroup[r["symbol"]] = r["ap"].(float64)
	}
	assert.Equal(t, 15.0, byGroup["A"])
	assert.Equal(t, 30.0, byGroup["B"])
}

func TestGroupAggregatorCountStar(t *testing.T) {
	ga := newTestAggregator(t, nil, []AggregationField{
		{InputField: "*", AggregateType: Count, OutputAlias: "n"},
	})

	require.NoError(t, ga.Add(map[string]interface{}{"x": 1}))
	require.NoError(t, ga.Add(map[string]interface{}{"y": nil}))

	results, err := ga.GetResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, int64(2), results[0]["n"])
}

func TestGroupAggregatorSkipsNilValues(t *testing.T) {
	ga := newTestAggregator(t, nil, []AggregationField{
		{InputField: "v", AggregateType: Sum},
	})

	require.NoError(t, ga.Add(map[string]interface{}{"v": 2}))
	require.NoError(t, ga.Add(map[string]interface{}{"v": nil}))
	require.NoError(t, ga.Add(map[string]interface{}{"other": 9}))

	results, err := ga.GetResults()
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2.0, results[0]["v"])
}

func TestGroupAggregatorNonNumericValueErrors(t *testing.T) {
	ga := newTestAggregator(t, nil, []AggregationField{
		{InputField: "v", AggregateType: Sum},
	})
	err := ga.Add(map[string]interface{}{"v": "not a number"})
	require.Error(t, err)
}

func TestGroupAggregatorMissingGroupFieldErrors(t *testing.T) {
	ga := newTestAggregator(t, []string{"symbol"}, []AggregationField{
		{InputField: "price", AggregateType: Sum},
	})
	err := ga.Add(map[string]interface{}{"price": 1.0})
	require.Error(t, err)
}

func TestGroupAggregatorEmptyBatchEmitsNothing(t *testing.T) {
	ga := newTestAggregator(t, []string{"k"}, []AggregationField{
		{InputField: "v", AggregateType: Sum},
	})
	results, err := ga.GetResults()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGroupAggregatorReset(t *testing.T) {
	ga := newTestAggregator(t, nil, []AggregationField{
		{InputField: "v", AggregateType: Count, OutputAlias: "n"},
	})
	require.NoError(t, ga.Add(map[string]interface{}{"v": 1}))
	ga.Reset()
	results, err := ga.GetResults()
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNewGroupAggregatorRejectsUnknownType(t *testing.T) {
	_, err := NewGroupAggregator(nil, []AggregationField{
		{InputField: "v", AggregateType: "percentile"},
	})
	require.Error(t, err)
}
