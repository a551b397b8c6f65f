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

	"github.com/rulego/eventflux/ferrors"
	bolt "go.etcd.io/bbolt"
)

// BoltBackend is the persistent Backend, backed by a single
// go.etcd.io/bbolt bucket per table. Every operation is its own bbolt
// transaction (auto-commit), the same per-operation commit the in-memory
// backend provides, since Backend does not expose begin/commit/rollback to
// callers.
type BoltBackend struct {
	db     *bolt.DB
	bucket []byte
}

// OpenBoltBackend opens (creating if absent) a bbolt-backed table store at
// path, using bucketName as the table's row bucket.
func OpenBoltBackend(path, bucketName string) (*BoltBackend, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConnectivity, "table", "open bbolt backend", err)
	}
	bucket := []byte(bucketName)
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	}); err != nil {
		db.Close()
		return nil, ferrors.Wrap(ferrors.KindConnectivity, "table", "create bbolt bucket", err)
	}
	return &BoltBackend{db: db, bucket: bucket}, nil
}

func (b *BoltBackend) Insert(row Row) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk.Get([]byte(row.Key)) != nil {
			return ferrors.New(ferrors.KindData, "table", "duplicate primary key "+row.Key)
		}
		data, err := json.Marshal(row.Values)
		if err != nil {
			return err
		}
		return bk.Put([]byte(row.Key), data)
	})
}

func (b *BoltBackend) Update(key string, set map[string]interface{}) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		raw := bk.Get([]byte(key))
		if raw == nil {
			return ferrors.New(ferrors.KindData, "table", "update of unknown key "+key)
		}
		var values map[string]interface{}
		if err := json.Unmarshal(raw, &values); err != nil {
			return err
		}
		for k, v := range set {
			values[k] = v
		}
		data, err := json.Marshal(values)
		if err != nil {
			return err
		}
		return bk.Put([]byte(key), data)
	})
}

func (b *BoltBackend) Delete(key string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(b.bucket).Delete([]byte(key))
	})
}

func (b *BoltBackend) Find(key string) (Row, bool) {
	var row Row
	found := false
	_ = b.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(b.bucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		var values map[string]interface{}
		if err := json.Unmarshal(raw, &values); err != nil {
			return err
		}
		row = Row{Key: key, Values: values}
		found = true
		return nil
	})
	return row, found
}

func (b *BoltBackend) Contains(key string) bool {
	_, ok := b.Find(key)
	return ok
}

func (b *BoltBackend) Scan(predicate func(Row) bool) []Row {
	var out []Row
	_ = b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(b.bucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var values map[string]interface{}
			if err := json.Unmarshal(v, &values); err != nil {
				continue
			}
			row := Row{Key: string(k), Values: values}
			if predicate == nil || predicate(row) {
				out = append(out, row)
			}
		}
		return nil
	})
	return out
}

func (b *BoltBackend) Len() int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(b.bucket).Stats().KeyN
		return nil
	})
	return n
}

func (b *BoltBackend) Close() error { return b.db.Close() }
