package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/eventflux/state"
	"github.com/rulego/eventflux/types"
)

func TestLengthWindowHolderRoundTrip(t *testing.T) {
	lw, err := NewLengthWindow(types.WindowConfig{Type: TypeLength, Params: []interface{}{3}})
	require.NoError(t, err)
	lw.Start()
	defer lw.Stop()

	lw.Add(map[string]interface{}{"id": 1})
	lw.Add(map[string]interface{}{"id": 2})

	blob, err := NewHolder("w", lw).Snapshot(state.Snappy)
	require.NoError(t, err)

	restored, err := NewLengthWindow(types.WindowConfig{Type: TypeLength, Params: []interface{}{3}})
	require.NoError(t, err)
	restored.Start()
	defer restored.Stop()
	require.NoError(t, NewHolder("w", restored).Restore(blob))

	rows := restored.SnapshotRows()
	require.Len(t, rows, 2)
	// JSON decoding widens numeric fields to float64.
	assert.Equal(t, float64(1), rows[0].Data.(map[string]interface{})["id"])
	assert.Equal(t, float64(2), rows[1].Data.(map[string]interface{})["id"])

	// The restored buffer still evicts as if it had seen the prefix itself:
	// two more insertions push the first restored row out as EXPIRED.
	restored.Add(map[string]interface{}{"id": 3})
	restored.Add(map[string]interface{}{"id": 4})
	assert.Equal(t, 3, restored.BufferedCount())
}

func TestCountingWindowHolderRebucketsByKey(t *testing.T) {
	cfg := types.WindowConfig{Type: TypeCounting, Params: []interface{}{2}, GroupByKeys: []string{"sym"}}
	cw, err := NewCountingWindow(cfg)
	require.NoError(t, err)
	cw.Start()
	defer cw.Stop()

	cw.Add(map[string]interface{}{"sym": "A", "v": 1})
	require.Eventually(t, func() bool { return cw.BufferedCount() == 1 }, time.Second, 5*time.Millisecond)

	blob, err := NewHolder("w", cw).Snapshot(state.None)
	require.NoError(t, err)

	restored, err := NewCountingWindow(cfg)
	require.NoError(t, err)
	restored.Start()
	defer restored.Stop()
	require.NoError(t, NewHolder("w", restored).Restore(blob))

	triggered := make(chan []types.Row, 1)
	restored.SetCallback(func(rows []types.Row) { triggered <- rows })

	// One more "A" row completes the restored bucket's threshold of 2.
	restored.Add(map[string]interface{}{"sym": "A", "v": 2})
	select {
	case rows := <-triggered:
		assert.Len(t, rows, 2)
	case <-time.After(time.Second):
		t.Fatal("restored keyed buffer did not contribute to the batch")
	}
}

func TestHolderRestoreRejectsUnknownSchemaVersion(t *testing.T) {
	lw, err := NewLengthWindow(types.WindowConfig{Type: TypeLength, Params: []interface{}{3}})
	require.NoError(t, err)
	err = NewHolder("w", lw).Restore(state.Blob{SchemaVersion: 7})
	require.Error(t, err)
}
