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

package table

import (
	"encoding/json"
	"sort"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/state"
)

const holderSchemaVersion = 1

var _ state.Holder = (*Holder)(nil)

// Holder adapts a Table to the state.Holder contract. Rows are serialized
// sorted by primary key, so repeated snapshots of unchanged state are
// byte-identical.
type Holder struct {
	tbl *Table
}

// NewHolder wraps t for registration with a checkpoint coordinator.
func NewHolder(t *Table) *Holder { return &Holder{tbl: t} }

func (h *Holder) Snapshot(c state.Compression) (state.Blob, error) {
	rows := h.tbl.Backend.Scan(nil)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })
	payload, err := json.Marshal(rows)
	if err != nil {
		return state.Blob{}, err
	}
	return state.EncodeBlob(holderSchemaVersion, c, payload)
}

// Restore replaces the table's entire contents with the snapshot's rows.
func (h *Holder) Restore(b state.Blob) error {
	if b.SchemaVersion != holderSchemaVersion {
		return ferrors.New(ferrors.KindSchema, "table", "unsupported table snapshot schema version for "+h.tbl.Name)
	}
	payload, err := state.DecodeBlob(b)
	if err != nil {
		return err
	}
	var rows []Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		return err
	}
	for _, r := range h.tbl.Backend.Scan(nil) {
		if err := h.tbl.Backend.Delete(r.Key); err != nil {
			return err
		}
	}
	for _, r := range rows {
		if err := h.tbl.Backend.Insert(r); err != nil {
			return err
		}
	}
	return nil
}

func (h *Holder) EstimateSize() int64 {
	// Rough per-row footprint; Len is O(1) on the memory and cache backends,
// while the bbolt backend's Len walks its bucket.
	return int64(h.tbl.Backend.Len()) * 128
}

func (h *Holder) AccessPattern() state.AccessPattern { return state.HotRead }

func (h *Holder) ComponentMetadata() state.ComponentMetadata {
	return state.ComponentMetadata{ID: "table/" + h.tbl.Name, SchemaVersion: holderSchemaVersion, CompressionPref: state.LZ4}
}
