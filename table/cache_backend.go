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
	"container/list"
	"sync"

	"github.com/rulego/eventflux/ferrors"
)

// CacheBackend is the size-bounded, FIFO-eviction Backend: once Capacity
// rows are held, the oldest-inserted row is evicted to make room for a new
// one (update/delete do not reorder eviction priority).
type CacheBackend struct {
	mu       sync.Mutex
	capacity int
	order    *list.List
	elems    map[string]*list.Element
	rows     map[string]Row
}

// NewCacheBackend builds a bounded cache table store of the given capacity.
func NewCacheBackend(capacity int) *CacheBackend {
	if capacity <= 0 {
		capacity = 1
	}
	return &CacheBackend{
		capacity: capacity,
		order:    list.New(),
		elems:    make(map[string]*list.Element),
		rows:     make(map[string]Row),
	}
}

func (c *CacheBackend) Insert(row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.rows[row.Key]; exists {
		return ferrors.New(ferrors.KindData, "table", "duplicate primary key "+row.Key)
	}
	if len(c.rows) >= c.capacity {
		oldest := c.order.Front()
		if oldest != nil {
			key := oldest.Value.(string)
			c.order.Remove(oldest)
			delete(c.elems, key)
			delete(c.rows, key)
		}
	}
	c.rows[row.Key] = row
	c.elems[row.Key] = c.order.PushBack(row.Key)
	return nil
}

func (c *CacheBackend) Update(key string, set map[string]interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	row, ok := c.rows[key]
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
	c.rows[key] = row
	return nil
}

func (c *CacheBackend) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.elems[key]; ok {
		c.order.Remove(el)
		delete(c.elems, key)
	}
	delete(c.rows, key)
	return nil
}

func (c *CacheBackend) Find(key string) (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rows[key]
	return r, ok
}

func (c *CacheBackend) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rows[key]
	return ok
}

func (c *CacheBackend) Scan(predicate func(Row) bool) []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Row, 0, len(c.rows))
	for _, r := range c.rows {
		if predicate == nil || predicate(r) {
			out = append(out, r)
		}
	}
	return out
}

func (c *CacheBackend) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rows)
}

func (c *CacheBackend) Close() error { return nil }
