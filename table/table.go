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

// Package table implements keyed, stream-schema-shaped collections with
// O(1) primary-key lookup, scan-based secondary predicates, and
// stream-driven INSERT/UPDATE/DELETE DML, behind a pluggable Backend.
package table

import (
	"fmt"
	"sync"

	"github.com/rulego/eventflux/condition"
	"github.com/rulego/eventflux/ferrors"
)

// Row is a single keyed record; Values holds the decoded column map the
// rest of the engine already standardizes on (types.Row.Data shape).
type Row struct {
	Key    string
	Values map[string]interface{}
}

// Backend is the pluggable storage contract: in-memory (default), cache
// (size-bounded FIFO), or an external KV. Only performance characteristics
// differ between implementations.
type Backend interface {
	Insert(row Row) error
	Update(key string, set map[string]interface{}) error
	Delete(key string) error
	Find(key string) (Row, bool)
	Contains(key string) bool
	Scan(predicate func(Row) bool) []Row
	Len() int
	Close() error
}

// Table is a keyed collection: a single writer per table/partition,
// concurrent readers on the in-memory backend (readers take the RLock fast
// path; see MemoryBackend).
type Table struct {
	Name       string
	PrimaryKey string
	Backend    Backend
}

// New builds a Table bound to the given backend.
func New(name, primaryKey string, backend Backend) *Table {
	return &Table{Name: name, PrimaryKey: primaryKey, Backend: backend}
}

func keyOf(primaryKey string, values map[string]interface{}) (string, error) {
	v, ok := values[primaryKey]
	if !ok {
		return "", ferrors.New(ferrors.KindData, "table", "row missing primary key column "+primaryKey)
	}
	return toKeyString(v), nil
}

func toKeyString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

// Insert adds a row, deriving its key from the primary-key column.
func (t *Table) Insert(values map[string]interface{}) error {
	key, err := keyOf(t.PrimaryKey, values)
	if err != nil {
		return err
	}
	return t.Backend.Insert(Row{Key: key, Values: values})
}

// Update applies set to every row matching where (a compiled condition
// evaluated against each row's Values).
func (t *Table) Update(where condition.Condition, set map[string]interface{}) (int, error) {
	matched := t.Backend.Scan(func(r Row) bool { return where == nil || where.Evaluate(r.Values) })
	for _, r := range matched {
		if err := t.Backend.Update(r.Key, set); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// Delete removes every row matching where.
func (t *Table) Delete(where condition.Condition) (int, error) {
	matched := t.Backend.Scan(func(r Row) bool { return where == nil || where.Evaluate(r.Values) })
	for _, r := range matched {
		if err := t.Backend.Delete(r.Key); err != nil {
			return 0, err
		}
	}
	return len(matched), nil
}

// Find looks a row up by primary key, O(1) on the in-memory/cache backends.
func (t *Table) Find(key string) (Row, bool) { return t.Backend.Find(key) }

// Contains reports whether key exists.
func (t *Table) Contains(key string) bool { return t.Backend.Contains(key) }

// Scan evaluates predicate (a secondary, non-indexed condition) over every
// row — O(n), unlike Find.
func (t *Table) Scan(predicate func(Row) bool) []Row { return t.Backend.Scan(predicate) }

// MemoryBackend is the default in-memory Backend: a map keyed by primary
// key, guarded by an RWMutex so readers proceed concurrently with each
// other.
type MemoryBackend struct {
	mu   sync.RWMutex
	rows map[string]Row
}

// NewMemoryBackend builds an empty in-memory table store.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{rows: make(map[string]Row)}
}

func (b *MemoryBackend) Insert(row Row) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.rows[row.Key]; exists {
		return ferrors.New(ferrors.KindData, "table", "duplicate primary key "+row.Key)
	}
	b.rows[row.Key] = row
	return nil
}

func (b *MemoryBackend) Update(key string, set map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	row, ok := b.rows[key]
	if !ok {
		return ferrors.New(ferrors.KindData, "table", "update of unknown key "+key)
	}
	updated := make(map[string]interface{}, len(row.Values))
	for k, v := range row.Values {
		updated[k] = v
	}
	for k, v := range set {
		updated[k] = v
	}
	row.Values = updated
	b.rows[key] = row
	return nil
}

func (b *MemoryBackend) Delete(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.rows, key)
	return nil
}

func (b *MemoryBackend) Find(key string) (Row, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rows[key]
	return r, ok
}

func (b *MemoryBackend) Contains(key string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.rows[key]
	return ok
}

// Scan returns an atomic snapshot filtered by predicate — a concurrent
// writer's mutation lands entirely before or entirely after the scan,
// never partially inside it.
func (b *MemoryBackend) Scan(predicate func(Row) bool) []Row {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Row, 0, len(b.rows))
	for _, r := range b.rows {
		if predicate == nil || predicate(r) {
			out = append(out, r)
		}
	}
	return out
}

func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rows)
}

func (b *MemoryBackend) Close() error { return nil }
