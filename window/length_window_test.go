package window

import (
	"testing"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLengthWindowFIFO(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeLength,
		Params: []interface{}{2},
	}
	lw, err := NewLengthWindow(config)
	require.NoError(t, err)
	lw.Start()
	defer lw.Stop()

	lw.Add(map[string]interface{}{"id": 1})
	lw.Add(map[string]interface{}{"id": 2})

	drain := func() types.Row {
		select {
		case rows := <-lw.OutputChan():
			require.Len(t, rows, 1)
			return rows[0]
		case <-time.After(time.Second):
			t.Fatal("expected a row")
			return types.Row{}
		}
	}
	assert.Equal(t, types.RowCurrent, drain().Flag)
	assert.Equal(t, types.RowCurrent, drain().Flag)

	// Third insertion overflows capacity 2: emits CURRENT then evicts the
	// oldest row as EXPIRED.
	lw.Add(map[string]interface{}{"id": 3})
	assert.Equal(t, types.RowCurrent, drain().Flag)
	assert.Equal(t, types.RowExpired, drain().Flag)
}

func TestLengthWindowMissingCount(t *testing.T) {
	_, err := NewLengthWindow(types.WindowConfig{Type: TypeLength})
	require.Error(t, err)
}
