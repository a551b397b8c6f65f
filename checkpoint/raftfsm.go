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

package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/hashicorp/raft"

	"github.com/rulego/eventflux/state"
)

// FSM adapts a Coordinator to hashicorp/raft.FSM so a deployment that
// replicates query state across nodes can drive checkpoints through its
// own Raft log instead of (or alongside) the single-process Checkpoint/
// AppendDelta calls. The single-node core never constructs one of these;
// it is a plug point for a clustered deployment, grounded on
// cuemby-warren's pkg/manager/fsm.go WarrenFSM (Apply dispatching a typed
// Command, Snapshot/Restore delegating to the underlying store).
type FSM struct {
	coord *Coordinator
}

// NewFSM wraps coord for use as a raft.FSM.
func NewFSM(coord *Coordinator) *FSM {
	return &FSM{coord: coord}
}

// deltaCommand is the payload Apply expects in each committed raft.Log: a
// single holder's incremental blob, the only operation the Coordinator
// needs to replicate between full checkpoints (full Checkpoint() calls are
// triggered out-of-band by the leader and are not themselves Raft log
// entries — see coordinator.go's AppendDelta).
type deltaCommand struct {
	HolderID string     `json:"holder_id"`
	Blob     state.Blob `json:"blob"`
}

// Apply applies one committed Raft log entry: an AppendDelta for a single
// holder. Returns the error (if any) so raft.ApplyFuture.Response()
// surfaces it to the caller that proposed the entry.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd deltaCommand
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal raft log entry: %w", err)
	}
	return f.coord.AppendDelta(cmd.HolderID, cmd.Blob)
}

// Snapshot triggers a full Coordinator checkpoint and returns a
// raft.FSMSnapshot that replays its sealed base segment to the sink,
// letting Raft compact its own log once every follower has this snapshot.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	id, err := f.coord.Checkpoint()
	if err != nil {
		return nil, err
	}
	rec, ok, err := f.coord.mf.Get(id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("checkpoint %s vanished from manifest immediately after creation", id)
	}
	return &fsmSnapshot{coord: f.coord, rec: rec}, nil
}

// Restore replaces the FSM's state with the snapshot previously produced
// by Snapshot, restoring every registered holder in dependency order.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()
	var rec CheckpointRecord
	if err := json.NewDecoder(rc).Decode(&rec); err != nil {
		return fmt.Errorf("decode raft snapshot manifest record: %w", err)
	}
	if err := f.coord.mf.Put(rec); err != nil {
		return err
	}
	return f.coord.Restore(rec.ID)
}

// fsmSnapshot implements raft.FSMSnapshot by persisting the manifest
// record identifying the checkpoint taken in FSM.Snapshot; the WAL
// segments it references live on disk under the Coordinator's own
// directory and are expected to be shipped to followers by whatever
// transport wraps this FSM (outside this package's scope).
type fsmSnapshot struct {
	coord *Coordinator
	rec   CheckpointRecord
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.rec); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		_ = sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
