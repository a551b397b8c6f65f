package window

import (
	"testing"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalTimeWindowUsesAttribute(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeExternalTime,
		Params: []interface{}{"evtTs", "50ms"},
	}
	ew, err := NewExternalTimeWindow(config)
	require.NoError(t, err)
	assert.Equal(t, "evtTs", ew.config.TsProp)
	assert.Equal(t, types.EventTime, ew.config.TimeCharacteristic)
	ew.Start()
	defer ew.Stop()

	ew.Add(map[string]interface{}{"evtTs": time.Now()})
	select {
	case rows := <-ew.OutputChan():
		require.Len(t, rows, 1)
		assert.Equal(t, types.RowCurrent, rows[0].Flag)
	case <-time.After(time.Second):
		t.Fatal("expected CURRENT row on insert")
	}
}

func TestExternalTimeWindowMissingParams(t *testing.T) {
	_, err := NewExternalTimeWindow(types.WindowConfig{
		Type:   TypeExternalTime,
		Params: []interface{}{"evtTs"},
	})
	require.Error(t, err)
}

func TestExternalTimeBatchWindowBuilds(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeExternalTimeBatch,
		Params: []interface{}{"evtTs", "50ms"},
	}
	ew, err := NewExternalTimeBatchWindow(config)
	require.NoError(t, err)
	assert.Equal(t, "evtTs", ew.config.TsProp)
}
