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

package pattern

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/state"
)

const holderSchemaVersion = 1

var _ state.Holder = (*Holder)(nil)

// Holder adapts a Runtime to the state.Holder contract. Only the live
// instances' bound slots and per-track progress are serialized; compiled
// step programs are not — Restore rebuilds each track against the Runtime's
// own compiled sequences, so a snapshot is only loadable into a Runtime
// compiled from the same Pattern. A restored track parked on an absent step
// re-arms its timer from the restore instant.
type Holder struct {
	id string
	rt *Runtime
}

// NewHolder wraps rt for registration with a checkpoint coordinator under id.
func NewHolder(id string, rt *Runtime) *Holder { return &Holder{id: id, rt: rt} }

type eventSnap struct {
	Stream string                 `json:"stream"`
	Data   map[string]interface{} `json:"data"`
	TsMs   int64                  `json:"ts"`
}

type slotSnap struct {
	Events []eventSnap `json:"events,omitempty"`
}

type trackSnap struct {
	Step   int        `json:"step"`
	Done   bool       `json:"done,omitempty"`
	Failed bool       `json:"failed,omitempty"`
	Slots  []slotSnap `json:"slots"`
}

type instanceSnap struct {
	ID          int64      `json:"id"`
	CreatedAtMs int64      `json:"createdAt"`
	TrackA      *trackSnap `json:"trackA,omitempty"`
	TrackB      *trackSnap `json:"trackB,omitempty"`
}

type runtimeSnap struct {
	NextID    int64          `json:"nextId"`
	Instances []instanceSnap `json:"instances"`
}

func snapTrack(t *track) *trackSnap {
	if t == nil {
		return nil
	}
	ts := &trackSnap{Step: t.step, Done: t.done, Failed: t.failed, Slots: make([]slotSnap, len(t.slots))}
	for i, s := range t.slots {
		evs := make([]eventSnap, len(s.Events))
		for j, e := range s.Events {
			evs[j] = eventSnap{Stream: e.Stream, Data: e.Data, TsMs: e.Ts.UnixMilli()}
		}
		ts.Slots[i] = slotSnap{Events: evs}
	}
	return ts
}

func (h *Holder) Snapshot(c state.Compression) (state.Blob, error) {
	h.rt.lock.Lock()
	snap := runtimeSnap{NextID: h.rt.nextID}
	for _, inst := range h.rt.instances {
		if inst.getStatus() != statusActive {
			continue
		}
		snap.Instances = append(snap.Instances, instanceSnap{
			ID:          inst.id,
			CreatedAtMs: inst.createdAt.UnixMilli(),
			TrackA:      snapTrack(inst.trackA),
			TrackB:      snapTrack(inst.trackB),
		})
	}
	h.rt.lock.Unlock()

	sort.Slice(snap.Instances, func(i, j int) bool { return snap.Instances[i].ID < snap.Instances[j].ID })
	payload, err := json.Marshal(snap)
	if err != nil {
		return state.Blob{}, err
	}
	return state.EncodeBlob(holderSchemaVersion, c, payload)
}

func (h *Holder) restoreTrack(seq *compiledSequence, ts *trackSnap) *track {
	if ts == nil || seq == nil {
		return nil
	}
	t := newTrack(seq)
	t.step = ts.Step
	t.done = ts.Done
	t.failed = ts.Failed
	for i, s := range ts.Slots {
		if i >= len(t.slots) {
			break
		}
		for _, e := range s.Events {
			t.slots[i].Events = append(t.slots[i].Events, Event{Stream: e.Stream, Data: e.Data, Ts: time.UnixMilli(e.TsMs)})
		}
	}
	return t
}

// Restore replaces the Runtime's live instances with the snapshot's. Any
// instance live at restore time is discarded (its absent timers cancelled)
// — restoring into a Runtime that has already consumed post-snapshot input
// would otherwise double-count matches.
func (h *Holder) Restore(b state.Blob) error {
	if b.SchemaVersion != holderSchemaVersion {
		return ferrors.New(ferrors.KindSchema, "pattern", "unsupported pattern snapshot schema version")
	}
	payload, err := state.DecodeBlob(b)
	if err != nil {
		return err
	}
	var snap runtimeSnap
	if err := json.Unmarshal(payload, &snap); err != nil {
		return err
	}

	rt := h.rt
	rt.lock.Lock()
	defer rt.lock.Unlock()

	for _, inst := range rt.instances {
		rt.cancelTimers(inst)
	}
	rt.instances = make(map[int64]*instance, len(snap.Instances))
	rt.nextID = snap.NextID

	seqA := rt.seq
	if rt.kind != machineSeq {
		seqA = rt.left
	}
	for _, is := range snap.Instances {
		inst := &instance{
			id:        is.ID,
			createdAt: time.UnixMilli(is.CreatedAtMs),
			trackA:    h.restoreTrack(seqA, is.TrackA),
			trackB:    h.restoreTrack(rt.right, is.TrackB),
		}
		rt.rearmAbsent(inst, inst.trackA)
		rt.rearmAbsent(inst, inst.trackB)
		rt.instances[inst.id] = inst
		if inst.id >= rt.nextID {
			rt.nextID = inst.id + 1
		}
	}
	return nil
}

// rearmAbsent re-issues the absent-step timer for a restored track parked
// on one; the full Within duration restarts from the restore instant, since
// the original arming instant is not carried in the snapshot.
func (rt *Runtime) rearmAbsent(inst *instance, t *track) {
	if t == nil || t.done || t.failed {
		return
	}
	rt.armIfAbsent(inst, t)
}

func (h *Holder) EstimateSize() int64 {
	h.rt.lock.Lock()
	n := len(h.rt.instances)
	h.rt.lock.Unlock()
	return int64(n) * 256
}

func (h *Holder) AccessPattern() state.AccessPattern { return state.HotWrite }

func (h *Holder) ComponentMetadata() state.ComponentMetadata {
	return state.ComponentMetadata{ID: h.id, SchemaVersion: holderSchemaVersion, CompressionPref: state.Snappy}
}
