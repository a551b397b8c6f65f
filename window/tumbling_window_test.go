package window

import (
	"testing"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTumblingWindowBasic(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeTumbling,
		Params: []interface{}{"50ms"},
	}
	tw, err := NewTumblingWindow(config)
	require.NoError(t, err)
	tw.Start()
	defer tw.Stop()

	tw.Add(map[string]interface{}{"id": 1})
	tw.Add(map[string]interface{}{"id": 2})

	select {
	case rows := <-tw.OutputChan():
		assert.Len(t, rows, 2)
		for _, r := range rows {
			assert.Equal(t, types.RowCurrent, r.Flag)
			assert.NotNil(t, r.Slot)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no window output received within timeout")
	}
}

func TestTumblingWindowMissingSize(t *testing.T) {
	_, err := NewTumblingWindow(types.WindowConfig{Type: TypeTumbling})
	require.Error(t, err)
}

func TestTumblingWindowReset(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeTumbling,
		Params: []interface{}{"50ms"},
	}
	tw, err := NewTumblingWindow(config)
	require.NoError(t, err)
	tw.Add(map[string]interface{}{"id": 1})
	tw.Reset()
	assert.Empty(t, tw.buffer)
}
