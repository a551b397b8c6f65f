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

// Package condition compiles boolean predicate expressions once and
// evaluates them per row. Predicates follow three-valued logic: an
// evaluation error, an undefined variable comparison, or a NULL result all
// evaluate to false rather than failing the row's processing.
package condition

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Condition is a compiled boolean predicate over a decoded row.
type Condition interface {
	Evaluate(env interface{}) bool
}

// ExprCondition wraps one expr-lang program compiled with the engine's
// predicate helpers (like_match, is_null, is_not_null).
type ExprCondition struct {
	program *vm.Program
}

// NewExprCondition compiles expression into a Condition. Compilation
// failures are configuration errors; evaluation failures at runtime
// evaluate to false.
func NewExprCondition(expression string) (Condition, error) {
	program, err := expr.Compile(expression, predicateOptions()...)
	if err != nil {
		return nil, err
	}
	return &ExprCondition{program: program}, nil
}

func (ec *ExprCondition) Evaluate(env interface{}) bool {
	result, err := expr.Run(ec.program, env)
	if err != nil {
		return false
	}
	b, _ := result.(bool)
	return b
}

// predicateOptions declares the helper functions predicates may call, on
// top of expr-lang's built-in operators. startsWith/endsWith/contains are
// already native to expr-lang and need no helper here.
func predicateOptions() []expr.Option {
	return []expr.Option{
		expr.Function("like_match", func(params ...any) (any, error) {
			if len(params) != 2 {
				return false, fmt.Errorf("like_match expects (text, pattern)")
			}
			text, ok1 := params[0].(string)
			pattern, ok2 := params[1].(string)
			if !ok1 || !ok2 {
				return false, fmt.Errorf("like_match expects string arguments")
			}
			return likeMatch(text, pattern), nil
		}),
		expr.Function("is_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_null expects one argument")
			}
			return params[0] == nil, nil
		}),
		expr.Function("is_not_null", func(params ...any) (any, error) {
			if len(params) != 1 {
				return false, fmt.Errorf("is_not_null expects one argument")
			}
			return params[0] != nil, nil
		}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	}
}

// likeMatch implements SQL LIKE semantics: % matches any run of
// characters (including none), _ matches exactly one. Iterative two-cursor
// matching with single-level backtracking to the most recent %, so a long
// text never recurses.
func likeMatch(text, pattern string) bool {
	ti, pi := 0, 0
	star, starTi := -1, 0

	for ti < len(text) {
		switch {
		case pi < len(pattern) && (pattern[pi] == '_' || pattern[pi] == text[ti]):
			ti++
			pi++
		case pi < len(pattern) && pattern[pi] == '%':
			star, starTi = pi, ti
			pi++
		case star >= 0:
			// Mismatch past a %: widen what the % swallowed by one.
			starTi++
			ti = starTi
			pi = star + 1
		default:
			return false
		}
	}
	for pi < len(pattern) && pattern[pi] == '%' {
		pi++
	}
	return pi == len(pattern)
}
