package cast

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestToFloat(t *testing.T) {
	assert.Equal(t, 1.5, ToFloat(1.5))
	assert.Equal(t, 3.0, ToFloat(3))
	assert.Equal(t, 7.0, ToFloat(int64(7)))
	assert.Equal(t, 2.5, ToFloat("2.5"))
	assert.Panics(t, func() { ToFloat("not a number") })
	assert.Panics(t, func() { ToFloat(struct{}{}) })
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 10, ToInt(10))
	assert.Equal(t, 10, ToInt("10"))
	assert.Equal(t, 10, ToInt(10.0))
	assert.Equal(t, 0, ToInt("garbage"))
}

func TestToString(t *testing.T) {
	assert.Equal(t, "42", ToString(42))
	assert.Equal(t, "a", ToString("a"))
}

func TestToDuration(t *testing.T) {
	assert.Equal(t, 5*time.Second, ToDuration("5s"))
	assert.Equal(t, 200*time.Millisecond, ToDuration("200ms"))
	assert.Equal(t, time.Second, ToDuration(time.Second))
	// Bare numbers are milliseconds.
	assert.Equal(t, 1500*time.Millisecond, ToDuration(1500))
	assert.Equal(t, time.Duration(0), ToDuration("nope"))
}

func TestConvertIntToTime(t *testing.T) {
	assert.True(t, ConvertIntToTime(1500, 0).Equal(time.UnixMilli(1500)))
	assert.True(t, ConvertIntToTime(3, time.Second).Equal(time.Unix(3, 0)))
}
