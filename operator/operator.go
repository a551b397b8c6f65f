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

// Package operator implements the chain of single-input processors a
// query compiles to between its source junction and its window/join/table
// stages — Filter, Projection, Group-By/Aggregation, Having,
// Order-By/Limit.
//
// Each stage compiles its expressions once at construction (the same
// expr-lang/expr discipline the condition package uses) and operates on
// types.Row/map[string]interface{}, delegating aggregation to the
// aggregator package and predicate evaluation to the condition package.
package operator

import (
	"fmt"

	"github.com/rulego/eventflux/condition"
	"github.com/rulego/eventflux/types"
)

// RowProcessor is a stateless operator stage; from one input row it produces
// zero rows (filtered out), one (the common case), or more (e.g. a future
// flatten stage). EXPIRED rows are passed through unchanged in flag so a
// downstream stage can treat them as retractions.
type RowProcessor interface {
	Process(row types.Row) ([]types.Row, error)
}

// Chain runs a fixed sequence of stateless RowProcessors left to right,
// fanning a single input row out to however many rows the last stage
// produces. Group-By/Having/Order-By/Limit are not RowProcessors — they
// are batch-at-a-time stages driven directly by a window trigger (see
// groupby.go) and sit after a Chain in a query's operator graph.
type Chain struct {
	stages []RowProcessor
}

// NewChain builds a Chain from stages in application order.
func NewChain(stages ...RowProcessor) *Chain {
	return &Chain{stages: stages}
}

// Process runs row through every stage, threading each stage's output rows
// into the next. An EXPIRED row that a Filter would otherwise drop is still
// passed through Filter's predicate — retraction propagation depends on the
// same condition that admitted the row to retract it symmetrically.
func (c *Chain) Process(row types.Row) ([]types.Row, error) {
	batch := []types.Row{row}
	for _, stage := range c.stages {
		var next []types.Row
		for _, r := range batch {
			out, err := stage.Process(r)
			if err != nil {
				return nil, err
			}
			next = append(next, out...)
		}
		batch = next
		if len(batch) == 0 {
			return nil, nil
		}
	}
	return batch, nil
}

// asMap extracts a row's decoded attribute map, the currency every stage in
// this package shares with condition/join/table.
func asMap(row types.Row) (map[string]interface{}, error) {
	m, ok := row.Data.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("operator: row data is %T, want map[string]interface{}", row.Data)
	}
	return m, nil
}

// FilterOp applies a compiled boolean predicate over a row's attributes,
// silently dropping rows that fail it. Null-propagation
// three-valued logic is condition.ExprCondition's (expr-lang/expr
// expr.AsBool(), which coerces a nil/NULL comparison result to false).
type FilterOp struct {
	cond condition.Condition
}

// NewFilterOp compiles expression once.
func NewFilterOp(expression string) (*FilterOp, error) {
	cond, err := condition.NewExprCondition(expression)
	if err != nil {
		return nil, err
	}
	return &FilterOp{cond: cond}, nil
}

func (f *FilterOp) Process(row types.Row) ([]types.Row, error) {
	m, err := asMap(row)
	if err != nil {
		return nil, err
	}
	if !f.cond.Evaluate(m) {
		return nil, nil
	}
	return []types.Row{row}, nil
}
