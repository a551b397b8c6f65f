package window

import (
	"testing"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountingWindow(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeCounting,
		Params: []interface{}{3},
	}
	cw, err := NewCountingWindow(config)
	require.NoError(t, err)
	cw.Start()
	defer cw.Stop()

	for i := 0; i < 3; i++ {
		cw.Add(map[string]interface{}{"id": i})
	}

	select {
	case res := <-cw.OutputChan():
		assert.Len(t, res, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("no results received within timeout")
	}

	cw.Reset()
	stats := cw.GetStats()
	assert.Equal(t, int64(0), stats["bufferUsed"])
}

func TestCountingWindowBadThreshold(t *testing.T) {
	_, err := NewCountingWindow(types.WindowConfig{
		Type:   TypeCounting,
		Params: []interface{}{0},
	})
	require.Error(t, err)
}

func TestCountingWindowMissingParams(t *testing.T) {
	_, err := NewCountingWindow(types.WindowConfig{Type: TypeCounting})
	require.Error(t, err)
}
