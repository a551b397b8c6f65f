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

package plan

import "github.com/rulego/eventflux/state"

// HolderKind classes a Graph's state holders for dependency-ordered restore
// (tables before windows before patterns) without binding this
// package to the checkpoint package — the embedder maps each kind onto a
// checkpoint.Tier when registering.
type HolderKind int

const (
	HolderTable HolderKind = iota
	HolderWindow
	HolderPattern
)

// HolderRef is one checkpointable component the Graph instantiated: its
// registration id (stable across restarts for the same Plan), its restore
// tier, and the state.Holder itself.
type HolderRef struct {
	ID     string
	Kind   HolderKind
	Holder state.Holder
}

// StateHolders returns every checkpointable component this Graph owns: one
// holder per declared table, one per non-partitioned query window (join
// side windows included), and one per pattern runtime. Per-partition window
// instances are created lazily on first key observation and GC'd on idle,
// so they are not in this set; a partitioned query recovers by replaying
// its partition keys' input, not by snapshot.
func (g *Graph) StateHolders() []HolderRef {
	return append([]HolderRef(nil), g.holders...)
}
