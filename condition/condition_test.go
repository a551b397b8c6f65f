package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evaluate(t *testing.T, expression string, env map[string]interface{}) bool {
	t.Helper()
	cond, err := NewExprCondition(expression)
	require.NoError(t, err)
	return cond.Evaluate(env)
}

func TestComparisonAndLogicalOperators(t *testing.T) {
	env := map[string]interface{}{"temperature": 25.0, "humidity": 60}

	assert.True(t, evaluate(t, "temperature > 20", env))
	assert.False(t, evaluate(t, "temperature > 30", env))
	assert.True(t, evaluate(t, "temperature > 20 && humidity < 70", env))
	assert.True(t, evaluate(t, "temperature > 30 || humidity == 60", env))
	assert.True(t, evaluate(t, "!(temperature > 30)", env))
}

func TestUndefinedVariableEvaluatesFalse(t *testing.T) {
	assert.False(t, evaluate(t, "missing > 10", map[string]interface{}{"present": 1}))
}

func TestNullComparisonEvaluatesFalse(t *testing.T) {
	env := map[string]interface{}{"v": nil}
	assert.False(t, evaluate(t, "v > 10", env))
	assert.False(t, evaluate(t, "v < 10", env))
}

func TestNullPredicates(t *testing.T) {
	env := map[string]interface{}{"a": nil, "b": 1}
	assert.True(t, evaluate(t, "is_null(a)", env))
	assert.False(t, evaluate(t, "is_null(b)", env))
	assert.True(t, evaluate(t, "is_not_null(b)", env))
	assert.False(t, evaluate(t, "is_not_null(a)", env))
}

func TestLikeMatchFunction(t *testing.T) {
	env := map[string]interface{}{"name": "sensor-42"}
	assert.True(t, evaluate(t, `like_match(name, "sensor-%")`, env))
	assert.True(t, evaluate(t, `like_match(name, "sensor-__")`, env))
	assert.False(t, evaluate(t, `like_match(name, "sensor-_")`, env))
	assert.False(t, evaluate(t, `like_match(name, "probe-%")`, env))
}

func TestLikeMatchPatterns(t *testing.T) {
	cases := []struct {
		text, pattern string
		want          bool
	}{
		{"abc", "abc", true},
		{"abc", "a%", true},
		{"abc", "%c", true},
		{"abc", "%b%", true},
		{"abc", "a_c", true},
		{"abc", "a_b", false},
		{"abc", "%", true},
		{"", "%", true},
		{"", "_", false},
		{"abc", "", false},
		{"aXbXc", "a%b%c", true},
		{"mississippi", "m%iss%ppi", true},
		{"mississippi", "m%iss%ppx", false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, likeMatch(c.text, c.pattern), "%q LIKE %q", c.text, c.pattern)
	}
}

func TestInvalidExpressionFailsAtCompile(t *testing.T) {
	_, err := NewExprCondition("temperature >")
	require.Error(t, err)
}
