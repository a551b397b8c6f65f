package checkpoint

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/eventflux/state"
)

// fakeHolder is a minimal state.Holder backed by an in-memory counter, for
// round-tripping through Snapshot/Restore without a real operator.
type fakeHolder struct {
	mu       sync.Mutex
	id       string
	value    int
	lockHeld bool // when true, TryLock fails, forcing SnapshotOrEstimate to fall back
}

func newFakeHolder(id string, value int) *fakeHolder {
	return &fakeHolder{id: id, value: value}
}

// Snapshot does not take h.mu itself: SnapshotOrEstimate calls it with the
// lock already acquired through TryLock.
func (h *fakeHolder) Snapshot(state.Compression) (state.Blob, error) {
	data, err := json.Marshal(h.value)
	if err != nil {
		return state.Blob{}, err
	}
	return state.Blob{SchemaVersion: 1, Data: data}, nil
}

func (h *fakeHolder) Restore(b state.Blob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return json.Unmarshal(b.Data, &h.value)
}

func (h *fakeHolder) EstimateSize() int64 { return 8 }

func (h *fakeHolder) AccessPattern() state.AccessPattern { return state.HotWrite }

func (h *fakeHolder) ComponentMetadata() state.ComponentMetadata {
	return state.ComponentMetadata{ID: h.id, SchemaVersion: 1}
}

func (h *fakeHolder) TryLock() bool {
	h.mu.Lock()
	if h.lockHeld {
		h.mu.Unlock()
		return false
	}
	return true
}

func (h *fakeHolder) Unlock() { h.mu.Unlock() }

func TestCheckpointAndRestoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c.Close()

	tbl := newFakeHolder("orders-table", 1)
	win := newFakeHolder("tumbling-window", 2)
	pat := newFakeHolder("pattern-abc", 3)
	c.Register(tbl.id, TierTable, tbl)
	c.Register(win.id, TierWindow, win)
	c.Register(pat.id, TierPattern, pat)

	id, err := c.Checkpoint()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	tbl.value, win.value, pat.value = 0, 0, 0
	require.NoError(t, c.Restore(id))

	assert.Equal(t, 1, tbl.value)
	assert.Equal(t, 2, win.value)
	assert.Equal(t, 3, pat.value)
}

// TestCheckpointRestoreEquivalence exercises the property this package
// exists for: processing a prefix then a suffix without interruption must
// produce the same holder state as processing the prefix, checkpointing,
// restoring into a fresh holder, then processing the suffix.
func TestCheckpointRestoreEquivalence(t *testing.T) {
	apply := func(h *fakeHolder, delta int) { h.value += delta }

	continuous := newFakeHolder("counter", 0)
	apply(continuous, 5) // I1
	apply(continuous, 7) // I2

	dir := t.TempDir()
	c, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c.Close()

	restarted := newFakeHolder("counter", 0)
	c.Register(restarted.id, TierTable, restarted)
	apply(restarted, 5) // I1
	id, err := c.Checkpoint()
	require.NoError(t, err)
	require.NoError(t, c.Close()) // release the manifest's file lock before reopening

	fresh := newFakeHolder("counter", -1)
	c2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c2.Close()
	c2.Register(fresh.id, TierTable, fresh)
	require.NoError(t, c2.Restore(id))
	apply(fresh, 7) // I2

	assert.Equal(t, continuous.value, fresh.value)
}

func TestAppendDeltaMergesLastWriteWinsOverBase(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c.Close()

	h := newFakeHolder("w", 1)
	c.Register(h.id, TierWindow, h)
	id, err := c.Checkpoint()
	require.NoError(t, err)

	h.value = 99
	blob, err := h.Snapshot(state.None)
	require.NoError(t, err)
	require.NoError(t, c.AppendDelta(h.id, blob))

	h.value = 0
	require.NoError(t, c.Restore(id))
	assert.Equal(t, 99, h.value, "delta written after the base checkpoint should win")
}

func TestRestoreDependencyOrderTablesBeforeWindowsBeforePatterns(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	var order []string
	record := func(tier string) func(state.Blob) error {
		return func(state.Blob) error {
			mu.Lock()
			order = append(order, tier)
			mu.Unlock()
			return nil
		}
	}

	tbl := &recordingHolder{id: "t", restoreFn: record("table")}
	win := &recordingHolder{id: "w", restoreFn: record("window")}
	pat := &recordingHolder{id: "p", restoreFn: record("pattern")}
	c.Register(tbl.id, TierTable, tbl)
	c.Register(win.id, TierWindow, win)
	c.Register(pat.id, TierPattern, pat)

	id, err := c.Checkpoint()
	require.NoError(t, err)
	require.NoError(t, c.Restore(id))

	require.Len(t, order, 3)
	assert.Equal(t, "table", order[0])
	assert.Equal(t, "window", order[1])
	assert.Equal(t, "pattern", order[2])
}

// recordingHolder is a state.Holder whose Restore just calls restoreFn, to
// observe the order the Coordinator restores holders in across tiers.
type recordingHolder struct {
	id        string
	restoreFn func(state.Blob) error
}

func (h *recordingHolder) Snapshot(state.Compression) (state.Blob, error) {
	return state.Blob{SchemaVersion: 1, Data: []byte("{}")}, nil
}
func (h *recordingHolder) Restore(b state.Blob) error            { return h.restoreFn(b) }
func (h *recordingHolder) EstimateSize() int64                   { return 1 }
func (h *recordingHolder) AccessPattern() state.AccessPattern    { return state.ColdBulk }
func (h *recordingHolder) ComponentMetadata() state.ComponentMetadata {
	return state.ComponentMetadata{ID: h.id, SchemaVersion: 1}
}

func TestContendedHolderFallsBackToEstimateAndIsSkippedFromBase(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c.Close()

	h := newFakeHolder("contended", 42)
	h.lockHeld = true
	c.Register(h.id, TierTable, h)

	id, err := c.Checkpoint()
	require.NoError(t, err)

	rec, ok, err := c.mf.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, rec.HolderIDs, "contended", "a holder whose lock could not be acquired must not appear in the base snapshot")
}

func TestRetentionGCReclaimsOlderCheckpoints(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{Retain: 1})
	require.NoError(t, err)
	defer c.Close()

	h := newFakeHolder("only", 1)
	c.Register(h.id, TierTable, h)

	first, err := c.Checkpoint()
	require.NoError(t, err)
	_, err = c.Checkpoint()
	require.NoError(t, err)

	_, ok, err := c.mf.Get(first)
	require.NoError(t, err)
	assert.False(t, ok, "the older checkpoint should have been reclaimed once retention kicked in")

	all, err := c.mf.List()
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOpenReopensExistingManifestAndContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	c1, err := Open(dir, Options{})
	require.NoError(t, err)
	h := newFakeHolder("x", 1)
	c1.Register(h.id, TierTable, h)
	id1, err := c1.Checkpoint()
	require.NoError(t, err)
	require.NoError(t, c1.Close())

	c2, err := Open(dir, Options{})
	require.NoError(t, err)
	defer c2.Close()
	c2.Register(h.id, TierTable, h)

	id2, err := c2.Checkpoint()
	require.NoError(t, err)
	assert.NotEqual(t, id1, id2)

	all, err := c2.mf.List()
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestWheelLikeTimingRetentionIsNotPrematurelyApplied(t *testing.T) {
	dir := t.TempDir()
	c, err := Open(dir, Options{RetainFor: time.Hour})
	require.NoError(t, err)
	defer c.Close()

	h := newFakeHolder("x", 1)
	c.Register(h.id, TierTable, h)
	id, err := c.Checkpoint()
	require.NoError(t, err)
	_, err = c.Checkpoint()
	require.NoError(t, err)

	_, ok, err := c.mf.Get(id)
	require.NoError(t, err)
	assert.True(t, ok, "a checkpoint younger than RetainFor must not be reclaimed")
}
