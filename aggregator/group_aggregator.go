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

package aggregator

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cast"
)

// AggregationField configures one aggregated output column: which input
// field feeds it, which function folds it, and the alias it is emitted
// under (defaulting to the input field name).
type AggregationField struct {
	InputField    string
	AggregateType AggregateType
	OutputAlias   string
}

func (f AggregationField) alias() string {
	if f.OutputAlias != "" {
		return f.OutputAlias
	}
	return f.InputField
}

// GroupAggregator folds decoded rows into per-group aggregation state. The
// Group-By operator constructs one per window trigger and feeds it the
// window's retained contents, so its state never outlives a single
// emission batch.
type GroupAggregator struct {
	groupFields []string
	aggFields   []AggregationField

	mu     sync.Mutex
	groups map[string]*groupState
}

// groupState is one group's key values plus one running aggregator per
// configured output column.
type groupState struct {
	keyValues map[string]interface{}
	aggs      map[string]AggregatorFunction
}

// NewGroupAggregator validates every configured aggregate type and returns
// a driver with empty group state. An unknown type is a configuration
// error surfaced here, before any row is folded.
func NewGroupAggregator(groupFields []string, aggFields []AggregationField) (*GroupAggregator, error) {
	for _, f := range aggFields {
		if _, err := New(f.AggregateType); err != nil {
			return nil, err
		}
	}
	return &GroupAggregator{
		groupFields: groupFields,
		aggFields:   aggFields,
		groups:      make(map[string]*groupState),
	}, nil
}

// Add folds one decoded row into its group's aggregators. The row must be
// the map shape the operator kernel standardizes on; a nil aggregated
// value is skipped, and "*" as the input field counts the row itself
// (count(*)).
func (ga *GroupAggregator) Add(data map[string]interface{}) error {
	if data == nil {
		return fmt.Errorf("aggregator: nil row")
	}

	key, keyValues, err := ga.groupKey(data)
	if err != nil {
		return err
	}

	ga.mu.Lock()
	defer ga.mu.Unlock()

	g, ok := ga.groups[key]
	if !ok {
		g = &groupState{keyValues: keyValues, aggs: make(map[string]AggregatorFunction, len(ga.aggFields))}
		for _, f := range ga.aggFields {
			agg, err := New(f.AggregateType)
			if err != nil {
				return err
			}
			g.aggs[f.alias()] = agg
		}
		ga.groups[key] = g
	}

	for _, f := range ga.aggFields {
		agg := g.aggs[f.alias()]
		if f.InputField == "*" {
			agg.Add(1)
			continue
		}
		v, present := data[f.InputField]
		if !present || v == nil {
			continue
		}
		if Numeric(f.AggregateType) {
			num, err := cast.ToFloat64E(v)
			if err != nil {
				return fmt.Errorf("aggregator: field %s value %v is not numeric for %s", f.InputField, v, f.AggregateType)
			}
			agg.Add(num)
			continue
		}
		agg.Add(v)
	}
	return nil
}

// GetResults emits one row per group: the group-key columns plus every
// aggregated column under its alias. Groups appear only once a row has
// been folded into them, so an empty batch emits nothing.
func (ga *GroupAggregator) GetResults() ([]map[string]interface{}, error) {
	ga.mu.Lock()
	defer ga.mu.Unlock()

	out := make([]map[string]interface{}, 0, len(ga.groups))
	for _, g := range ga.groups {
		row := make(map[string]interface{}, len(g.keyValues)+len(g.aggs))
		for k, v := range g.keyValues {
			row[k] = v
		}
		for alias, agg := range g.aggs {
			row[alias] = agg.Result()
		}
		out = append(out, row)
	}
	return out, nil
}

// Reset discards all group state.
func (ga *GroupAggregator) Reset() {
	ga.mu.Lock()
	defer ga.mu.Unlock()
	ga.groups = make(map[string]*groupState)
}

// groupKey encodes the row's group-field values into a map key and keeps
// the original values for the output row. A missing group field is an
// error: the caller's schema promised it.
func (ga *GroupAggregator) groupKey(data map[string]interface{}) (string, map[string]interface{}, error) {
	keyValues := make(map[string]interface{}, len(ga.groupFields))
	var b strings.Builder
	for _, field := range ga.groupFields {
		v, ok := data[field]
		if !ok {
			return "", nil, fmt.Errorf("aggregator: group field %s not found", field)
		}
		keyValues[field] = v
		fmt.Fprintf(&b, "%v\x1f", v)
	}
	return b.String(), keyValues, nil
}
