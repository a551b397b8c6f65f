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
	"sort"

	bolt "go.etcd.io/bbolt"

	"github.com/rulego/eventflux/ferrors"
)

var manifestBucket = []byte("checkpoints")

// CheckpointRecord is one entry in the manifest: a point-in-time the
// coordinator can restore to by reloading its base segment plus deltas.
type CheckpointRecord struct {
	ID            string   `json:"id"`
	Seq           int64    `json:"seq"`
	CreatedAtUnix int64    `json:"created_at_unix"`
	BaseSegment   string   `json:"base_segment"`   // a full snapshot of every registered holder
	DeltaSegments []string `json:"delta_segments"` // incremental AppendDelta segments written since BaseSegment, oldest first
	HolderIDs     []string `json:"holder_ids"`
}

// manifest wraps a bbolt database mapping checkpoint id -> CheckpointRecord
// (spec's "bbolt-backed manifest", following table/bolt_backend.go's use of
// go.etcd.io/bbolt as the persistent single-writer/many-reader store).
type manifest struct {
	db *bolt.DB
}

func openManifest(path string) (*manifest, error) {
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "open manifest db", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(manifestBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "checkpoint", "init manifest bucket", err)
	}
	return &manifest{db: db}, nil
}

func (m *manifest) Close() error { return m.db.Close() }

func (m *manifest) Put(rec CheckpointRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return ferrors.Wrap(ferrors.KindSchema, "checkpoint", "marshal checkpoint record", err)
	}
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestBucket).Put([]byte(rec.ID), data)
	})
}

func (m *manifest) Get(id string) (CheckpointRecord, bool, error) {
	var rec CheckpointRecord
	found := false
	err := m.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(manifestBucket).Get([]byte(id))
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &rec)
	})
	if err != nil {
		return CheckpointRecord{}, false, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "read checkpoint record", err)
	}
	return rec, found, nil
}

func (m *manifest) Delete(id string) error {
	return m.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestBucket).Delete([]byte(id))
	})
}

// List returns every checkpoint record, oldest (lowest Seq) first.
func (m *manifest) List() ([]CheckpointRecord, error) {
	var out []CheckpointRecord
	err := m.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(manifestBucket).ForEach(func(_, v []byte) error {
			var rec CheckpointRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindSchema, "checkpoint", "list checkpoint records", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// Latest returns the most recent checkpoint, if any.
func (m *manifest) Latest() (CheckpointRecord, bool, error) {
	all, err := m.List()
	if err != nil {
		return CheckpointRecord{}, false, err
	}
	if len(all) == 0 {
		return CheckpointRecord{}, false, nil
	}
	return all[len(all)-1], true, nil
}
