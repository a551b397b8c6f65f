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

package partition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGraph struct {
	closed bool
	key    string
}

func (g *fakeGraph) Close() error {
	g.closed = true
	return nil
}

func TestManagerInstantiatesOncePerKey(t *testing.T) {
	built := map[string]int{}
	m := New(func(key string) (SubGraph, error) {
		built[key]++
		return &fakeGraph{key: key}, nil
	}, 0)

	g1, err := m.Get("deviceA")
	require.NoError(t, err)
	g2, err := m.Get("deviceA")
	require.NoError(t, err)
	assert.Same(t, g1, g2)
	assert.Equal(t, 1, built["deviceA"])

	_, err = m.Get("deviceB")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Count())
}

func TestManagerIdleGC(t *testing.T) {
	m := New(func(key string) (SubGraph, error) {
		return &fakeGraph{key: key}, nil
	}, 30*time.Millisecond)
	defer m.Close()

	g, err := m.Get("k1")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return g.(*fakeGraph).closed
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, m.Count())
}

func TestKeyExtractor(t *testing.T) {
	k, err := NewKeyExtractor("deviceId")
	require.NoError(t, err)
	key, err := k.KeyOf(map[string]interface{}{"deviceId": "sensor-1"})
	require.NoError(t, err)
	assert.Equal(t, "sensor-1", key)
}
