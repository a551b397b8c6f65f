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
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/types"
)

// ProjectField is one (expr, alias) pair of a projection's output schema.
type ProjectField struct {
	Expr  string
	Alias string
}

// ProjectionOp evaluates a list of (expr, alias) pairs, producing a new
// row whose schema is the projection's alias list. Field expressions are
// compiled once at construction, with the same
// expr-lang/expr.AllowUndefinedVariables() style join.Joiner's ON
// condition uses.
type ProjectionOp struct {
	fields  []ProjectField
	compile []*vm.Program
}

// NewProjectionOp compiles every field expression once at construction.
func NewProjectionOp(fields []ProjectField) (*ProjectionOp, error) {
	p := &ProjectionOp{fields: fields, compile: make([]*vm.Program, len(fields))}
	for i, f := range fields {
		prog, err := expr.Compile(f.Expr, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindConfiguration, "operator", "compile projection field "+f.Alias, err)
		}
		p.compile[i] = prog
	}
	return p, nil
}

func (p *ProjectionOp) Process(row types.Row) ([]types.Row, error) {
	m, err := asMap(row)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(p.fields))
	for i, f := range p.fields {
		v, err := expr.Run(p.compile[i], m)
		if err != nil {
			// Arithmetic errors (e.g. divide-by-zero surfaced by expr-lang)
			// produce NULL rather than failing the row.
			out[f.Alias] = nil
			continue
		}
		out[f.Alias] = v
	}
	return []types.Row{{Data: out, Timestamp: row.Timestamp, Slot: row.Slot, Flag: row.Flag}}, nil
}
