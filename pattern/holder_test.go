package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/eventflux/scheduler"
	"github.com/rulego/eventflux/state"
)

func TestHolderRestoreContinuesMidMatch(t *testing.T) {
	p := Pattern{Root: Sequence{Steps: []Node{
		Step{Alias: "A", Stream: "A", Min: 2, Max: 2},
		Step{Alias: "B", Stream: "B", Min: 1, Max: 1},
	}}}

	rt, err := Compile(p, nil, func(Match) {})
	require.NoError(t, err)
	rt.OnEvent(evt("A", 0, map[string]interface{}{"id": 1}))

	blob, err := NewHolder("p", rt).Snapshot(state.None)
	require.NoError(t, err)

	var matches []Match
	rt2, err := Compile(p, nil, func(m Match) { matches = append(matches, m) })
	require.NoError(t, err)
	require.NoError(t, NewHolder("p", rt2).Restore(blob))

	rt2.OnEvent(evt("A", 100, map[string]interface{}{"id": 2}))
	rt2.OnEvent(evt("B", 200, map[string]interface{}{"id": 3}))

	require.Len(t, matches, 1)
	require.Len(t, matches[0].Slots["A"], 2)
	// The first A travelled through the snapshot; JSON decoding widens its
	// numeric fields to float64.
	assert.Equal(t, float64(1), matches[0].Slots["A"][0].Data["id"])
	assert.Equal(t, 2, matches[0].Slots["A"][1].Data["id"])
}

func TestHolderRestoreRearmsAbsentTimer(t *testing.T) {
	p := Pattern{Root: Sequence{Steps: []Node{
		Step{Alias: "A", Stream: "A", Min: 1, Max: 1},
		Absent{Stream: "B", Within: 30 * time.Millisecond},
	}}}

	wheel := scheduler.NewWheel(2*time.Millisecond, 64)
	defer wheel.Stop()

	rt, err := Compile(p, wheel, func(Match) {})
	require.NoError(t, err)
	rt.OnEvent(evt("A", 0, map[string]interface{}{"id": 1}))

	blob, err := NewHolder("p", rt).Snapshot(state.None)
	require.NoError(t, err)

	matched := make(chan Match, 1)
	rt2, err := Compile(p, wheel, func(m Match) { matched <- m })
	require.NoError(t, err)
	require.NoError(t, NewHolder("p", rt2).Restore(blob))

	select {
	case m := <-matched:
		assert.Len(t, m.Slots["A"], 1)
	case <-time.After(time.Second):
		t.Fatal("absent step timer was not re-armed on restore")
	}
}

func TestHolderRestoreRejectsUnknownSchemaVersion(t *testing.T) {
	p := Pattern{Root: Sequence{Steps: []Node{
		Step{Alias: "A", Stream: "A", Min: 1, Max: 1},
	}}}
	rt, err := Compile(p, nil, func(Match) {})
	require.NoError(t, err)

	err = NewHolder("p", rt).Restore(state.Blob{SchemaVersion: 99})
	require.Error(t, err)
}

func TestHolderSnapshotExcludesCompletedInstances(t *testing.T) {
	p := Pattern{Root: Every{Inner: Sequence{Steps: []Node{
		Step{Alias: "A", Stream: "A", Min: 1, Max: 1},
		Step{Alias: "B", Stream: "B", Min: 1, Max: 1},
	}}}}
	rt, err := Compile(p, nil, func(Match) {})
	require.NoError(t, err)

	rt.OnEvent(evt("A", 0, map[string]interface{}{"id": 1}))
	rt.OnEvent(evt("B", 1, map[string]interface{}{"id": 2}))
	rt.OnEvent(evt("A", 2, map[string]interface{}{"id": 3}))

	blob, err := NewHolder("p", rt).Snapshot(state.None)
	require.NoError(t, err)

	rt2, err := Compile(p, nil, func(Match) {})
	require.NoError(t, err)
	require.NoError(t, NewHolder("p", rt2).Restore(blob))

	rt2.lock.Lock()
	defer rt2.lock.Unlock()
	assert.Len(t, rt2.instances, 1, "only the in-flight instance survives the round trip")
}
