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

package operator

import (
	"github.com/rulego/eventflux/aggregator"
	"github.com/rulego/eventflux/condition"
	"github.com/rulego/eventflux/types"
)

// GroupByOp partitions aggregator state by a group-key tuple and applies an
// optional HAVING filter to the per-group output, driven once per window
// trigger rather than per event.
//
// aggregator.GroupAggregator's built-in aggregators have no Remove, so no
// aggregator state is kept between triggers: every Trigger call builds a
// fresh aggregator.GroupAggregator and folds in the CURRENT rows of the
// batch it is given via Add, skipping EXPIRED rows — an O(batch size)
// recompute per trigger.
type GroupByOp struct {
	groupFields []string
	aggFields   []aggregator.AggregationField
	having      condition.Condition
}

// NewGroupByOp builds a GroupByOp, rejecting unknown aggregate types up
// front. havingExpr may be empty (no HAVING).
func NewGroupByOp(groupFields []string, aggFields []aggregator.AggregationField, havingExpr string) (*GroupByOp, error) {
	if _, err := aggregator.NewGroupAggregator(groupFields, aggFields); err != nil {
		return nil, err
	}
	g := &GroupByOp{groupFields: groupFields, aggFields: aggFields}
	if havingExpr != "" {
		cond, err := condition.NewExprCondition(havingExpr)
		if err != nil {
			return nil, err
		}
		g.having = cond
	}
	return g, nil
}

// Trigger computes one output row per group from the window's current
// (non-expired) contents; empty groups emit nothing, since a group with no
// contents never appears in the map built here.
func (g *GroupByOp) Trigger(windowContents []types.Row) ([]map[string]interface{}, error) {
	ga, err := aggregator.NewGroupAggregator(g.groupFields, g.aggFields)
	if err != nil {
		return nil, err
	}

	for _, row := range windowContents {
		if row.Flag == types.RowExpired {
			continue // only CURRENT contents feed the recompute
		}
		m, err := asMap(row)
		if err != nil {
			return nil, err
		}
		if err := ga.Add(m); err != nil {
			return nil, err
		}
	}

	results, err := ga.GetResults()
	if err != nil {
		return nil, err
	}

	out := make([]map[string]interface{}, 0, len(results))
	for _, r := range results {
		if g.having != nil && !g.having.Evaluate(r) {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
