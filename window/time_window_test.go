package window

import (
	"testing"
	"time"

	"github.com/rulego/eventflux/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWindowExpiry(t *testing.T) {
	config := types.WindowConfig{
		Type:   TypeTime,
		Params: []interface{}{"50ms"},
	}
	tw, err := NewTimeWindow(config)
	require.NoError(t, err)
	tw.Start()
	defer tw.Stop()

	tw.Add(map[string]interface{}{"id": 1})

	select {
	case rows := <-tw.OutputChan():
		require.Len(t, rows, 1)
		assert.Equal(t, types.RowCurrent, rows[0].Flag)
	case <-time.After(time.Second):
		t.Fatal("expected CURRENT row on insert")
	}

	select {
	case rows := <-tw.OutputChan():
		require.Len(t, rows, 1)
		assert.Equal(t, types.RowExpired, rows[0].Flag)
	case <-time.After(time.Second):
		t.Fatal("expected EXPIRED row once retention elapsed")
	}
}

func TestTimeWindowMissingDuration(t *testing.T) {
	_, err := NewTimeWindow(types.WindowConfig{Type: TypeTime})
	require.Error(t, err)
}
