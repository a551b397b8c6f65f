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

// Package plan ingests the compiler->runtime contract: a Plan
// carries stream/table definitions and a list of queries, each a DAG rooted
// at a source stream and terminating at either an INSERT INTO target, a
// join, or a pattern match; Instantiate validates that referenced
// streams/tables exist and builds the corresponding operator graph.
//
// The SQL->plan compiler that would produce a Plan is an external
// collaborator: this package consumes a declarative QueryDescriptor, not
// an rsql AST.
package plan

import (
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/table"
)

// TableDef declares a table's schema and backend.
type TableDef struct {
	Name       string
	PrimaryKey string
	Backend    table.Backend
}

// Plan is everything the (out-of-scope) SQL compiler hands the runtime:
// stream/table definitions and the query DAG list. Pattern trees and
// partition keys are not separate Plan-level collections; each lives on
// the QueryDescriptor of the query that uses it (QueryDescriptor.Pattern,
// QueryDescriptor.PartitionKeyExpr), since both are always scoped to
// exactly one query's DAG rather than shared across the Plan.
type Plan struct {
	Streams map[string]*model.StreamDef
	Tables  map[string]*TableDef
	Queries []QueryDescriptor
}

// New builds an empty Plan ready for stream/table/query registration.
func New() *Plan {
	return &Plan{
		Streams: make(map[string]*model.StreamDef),
		Tables:  make(map[string]*TableDef),
	}
}

// AddStream registers a stream definition.
func (p *Plan) AddStream(def *model.StreamDef) { p.Streams[def.ID] = def }

// AddTable registers a table definition.
func (p *Plan) AddTable(def *TableDef) { p.Tables[def.Name] = def }

// AddQuery appends a query descriptor.
func (p *Plan) AddQuery(q QueryDescriptor) { p.Queries = append(p.Queries, q) }

// Validate checks every query's stream/table references resolve, the DLQ
// schema contract, and the ORDER BY-requires-window rule before
// Instantiate builds anything. Returns the first error found, wrapped as
// ferrors.KindConfiguration (fatal at startup).
func (p *Plan) Validate() error {
	for i := range p.Queries {
		q := &p.Queries[i]
		if _, ok := p.Streams[q.Source]; !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" references unknown source stream "+q.Source)
		}
		if q.TargetTable == "" {
			if _, ok := p.Streams[q.Target]; !ok {
				return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" references unknown target stream "+q.Target)
			}
		} else if _, ok := p.Tables[q.TargetTable]; !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" references unknown target table "+q.TargetTable)
		}
		if len(q.OrderBy) > 0 && q.Window == nil {
			// ORDER BY outside a window-triggered emission batch has no
			// finite semantics over an unbounded stream.
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+": ORDER BY requires a window-triggered emission batch")
		}
		if dlq, ok := p.Streams[q.DLQTarget]; ok {
			if err := validateDLQSchema(dlq); err != nil {
				return err
			}
		}
		if err := p.validateJoin(q); err != nil {
			return err
		}
		if err := p.validatePattern(q); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) validateJoin(q *QueryDescriptor) error {
	if q.Join == nil {
		return nil
	}
	if q.Join.JoinSource == "" && q.Join.JoinTable == "" {
		return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+": join requires JoinSource or JoinTable")
	}
	if q.Join.JoinSource != "" {
		if _, ok := p.Streams[q.Join.JoinSource]; !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" join references unknown stream "+q.Join.JoinSource)
		}
	}
	if q.Join.JoinTable != "" {
		if _, ok := p.Tables[q.Join.JoinTable]; !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" join references unknown table "+q.Join.JoinTable)
		}
	}
	return nil
}

func (p *Plan) validatePattern(q *QueryDescriptor) error {
	if q.Pattern == nil {
		return nil
	}
	sources := q.PatternSources
	if len(sources) == 0 {
		sources = []string{q.Source}
	}
	for _, s := range sources {
		if _, ok := p.Streams[s]; !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" pattern references unknown stream "+s)
		}
	}
	return nil
}

func validateDLQSchema(dlq *model.StreamDef) error {
	if len(dlq.Attrs) != len(ferrors.DLQFieldOrder) {
		return ferrors.New(ferrors.KindConfiguration, "plan", "DLQ stream "+dlq.ID+" schema mismatch")
	}
	for i, name := range ferrors.DLQFieldOrder {
		if dlq.Attrs[i].Name != name {
			return ferrors.New(ferrors.KindConfiguration, "plan", "DLQ stream "+dlq.ID+" schema mismatch at field "+name)
		}
	}
	return nil
}
