/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package window

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rulego/eventflux/state"
	"github.com/rulego/eventflux/types"
)

// Stateful is implemented by window kinds whose buffered contents can be
// externalized for checkpointing and reloaded on restore. Restored rows
// re-enter the buffer without re-emitting CURRENT; any expiry they were
// already due for fires on the next eviction pass.
type Stateful interface {
	SnapshotRows() []types.Row
	RestoreRows(rows []types.Row)
	BufferedCount() int
}

const holderSchemaVersion = 1

var _ state.Holder = (*Holder)(nil)

// Holder adapts a Stateful window to the state.Holder contract, serializing
// the buffered rows as JSON under the framework's pluggable compression.
type Holder struct {
	id  string
	win Stateful
}

// NewHolder wraps w for registration with a checkpoint coordinator under id.
func NewHolder(id string, w Stateful) *Holder {
	return &Holder{id: id, win: w}
}

// snapRow is one buffered row in serialized form. Data is constrained to
// the decoded-map shape the operator layer feeds windows with; a non-map
// payload snapshots as nil.
type snapRow struct {
	Data map[string]interface{} `json:"data"`
	TsMs int64                  `json:"ts"`
	Flag int                    `json:"flag"`
}

func (h *Holder) Snapshot(c state.Compression) (state.Blob, error) {
	rows := h.win.SnapshotRows()
	snaps := make([]snapRow, len(rows))
	for i, r := range rows {
		m, _ := r.Data.(map[string]interface{})
		snaps[i] = snapRow{Data: m, TsMs: r.Timestamp.UnixMilli(), Flag: int(r.Flag)}
	}
	payload, err := json.Marshal(snaps)
	if err != nil {
		return state.Blob{}, err
	}
	return state.EncodeBlob(holderSchemaVersion, c, payload)
}

func (h *Holder) Restore(b state.Blob) error {
	if b.SchemaVersion != holderSchemaVersion {
		return fmt.Errorf("window holder %s: unsupported snapshot schema version %d", h.id, b.SchemaVersion)
	}
	payload, err := state.DecodeBlob(b)
	if err != nil {
		return err
	}
	var snaps []snapRow
	if err := json.Unmarshal(payload, &snaps); err != nil {
		return err
	}
	rows := make([]types.Row, len(snaps))
	for i, s := range snaps {
		rows[i] = types.Row{Data: s.Data, Timestamp: time.UnixMilli(s.TsMs), Flag: types.RowFlag(s.Flag)}
	}
	h.win.RestoreRows(rows)
	return nil
}

func (h *Holder) EstimateSize() int64 {
	// Rough per-row footprint; cheap by design, never serializes.
	return int64(h.win.BufferedCount()) * 96
}

func (h *Holder) AccessPattern() state.AccessPattern { return state.HotWrite }

func (h *Holder) ComponentMetadata() state.ComponentMetadata {
	return state.ComponentMetadata{ID: h.id, SchemaVersion: holderSchemaVersion, CompressionPref: state.Snappy}
}

// --- per-kind Stateful implementations ---------------------------------

var (
	_ Stateful = (*LengthWindow)(nil)
	_ Stateful = (*TimeWindow)(nil)
	_ Stateful = (*TumblingWindow)(nil)
	_ Stateful = (*SlidingWindow)(nil)
	_ Stateful = (*SessionWindow)(nil)
	_ Stateful = (*CountingWindow)(nil)
)

func (lw *LengthWindow) SnapshotRows() []types.Row {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return append([]types.Row(nil), lw.buffer...)
}

func (lw *LengthWindow) RestoreRows(rows []types.Row) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	lw.buffer = append(make([]types.Row, 0, lw.capacity+1), rows...)
}

func (lw *LengthWindow) BufferedCount() int {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return len(lw.buffer)
}

func (tw *TimeWindow) SnapshotRows() []types.Row {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return append([]types.Row(nil), tw.buffer...)
}

func (tw *TimeWindow) RestoreRows(rows []types.Row) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.buffer = append(make([]types.Row, 0, len(rows)), rows...)
}

func (tw *TimeWindow) BufferedCount() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return len(tw.buffer)
}

func (tw *TumblingWindow) SnapshotRows() []types.Row {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return append([]types.Row(nil), tw.buffer...)
}

func (tw *TumblingWindow) RestoreRows(rows []types.Row) {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	tw.buffer = append(make([]types.Row, 0, len(rows)), rows...)
}

func (tw *TumblingWindow) BufferedCount() int {
	tw.mu.Lock()
	defer tw.mu.Unlock()
	return len(tw.buffer)
}

func (sw *SlidingWindow) SnapshotRows() []types.Row {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return append([]types.Row(nil), sw.buffer...)
}

func (sw *SlidingWindow) RestoreRows(rows []types.Row) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.buffer = append(make([]types.Row, 0, len(rows)), rows...)
}

func (sw *SlidingWindow) BufferedCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.buffer)
}

func (sw *SessionWindow) SnapshotRows() []types.Row {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return append([]types.Row(nil), sw.buffer...)
}

func (sw *SessionWindow) RestoreRows(rows []types.Row) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.buffer = append(make([]types.Row, 0, len(rows)), rows...)
	// The restore counts as session activity: the gap clock restarts from
	// this instant rather than from the (possibly long past) last event.
	if len(rows) > 0 {
		sw.lastActivity = time.Now()
	}
}

func (sw *SessionWindow) BufferedCount() int {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return len(sw.buffer)
}

// SnapshotRows flattens the keyed buffers in sorted-key order so repeated
// snapshots of unchanged state serialize identically.
func (cw *CountingWindow) SnapshotRows() []types.Row {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	keys := make([]string, 0, len(cw.keyedBuffer))
	for k := range cw.keyedBuffer {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var out []types.Row
	for _, k := range keys {
		out = append(out, cw.keyedBuffer[k]...)
	}
	return out
}

// RestoreRows rebuckets rows by group key; the key is re-derived from each
// row's data, so a snapshot taken under the same GroupByKeys config lands in
// the same buckets it was taken from.
func (cw *CountingWindow) RestoreRows(rows []types.Row) {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	cw.keyedBuffer = make(map[string][]types.Row)
	cw.keyedCount = make(map[string]int)
	for _, r := range rows {
		key := cw.getKey(r.Data)
		cw.keyedBuffer[key] = append(cw.keyedBuffer[key], r)
		cw.keyedCount[key] = len(cw.keyedBuffer[key])
	}
}

func (cw *CountingWindow) BufferedCount() int {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	n := 0
	for _, buf := range cw.keyedBuffer {
		n += len(buf)
	}
	return n
}
