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

package pattern

import (
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/scheduler"
)

type stepKind int

const (
	kindEvent stepKind = iota
	kindAbsent
)

// compiledStep is one step of a flattened Sequence: its predicate is
// compiled once (condition/condition.go's expr.Compile discipline, reused
// here for pattern-step predicates) rather than re-parsed per event.
type compiledStep struct {
	kind    stepKind
	alias   string
	stream  string
	program *vm.Program // nil means "no filter, always matches"
	min     int
	max     int
	within  int64 // absent-step deadline in milliseconds; 0 for kindEvent
}

// compiledSequence is a Sequence flattened into an ordered slice,
// addressed by index rather than pointer.
type compiledSequence struct {
	steps []compiledStep
}

type machineKind int

const (
	machineSeq machineKind = iota
	machineAnd
	machineOr
)

// Runtime is a compiled, ready-to-drive pattern. Callers feed it events via
// OnEvent; matches are delivered to the callback given to Compile.
type Runtime struct {
	kind        machineKind
	seq         *compiledSequence // used by machineSeq
	left, right *compiledSequence // used by machineAnd / machineOr
	everyEntry  bool
	withinMs    int64

	wheel *scheduler.Wheel
	out   func(Match)

	lock      sync.Mutex
	instances map[int64]*instance
	nextID    int64
}

// Compile validates and flattens a Pattern into a Runtime. wheel arms
// absent-step timers; out receives completed matches.
func Compile(p Pattern, wheel *scheduler.Wheel, out func(Match)) (*Runtime, error) {
	rt := &Runtime{
		wheel:     wheel,
		out:       out,
		withinMs:  p.Within.Milliseconds(),
		instances: make(map[int64]*instance),
	}

	root := p.Root
	if ev, ok := root.(Every); ok {
		rt.everyEntry = true
		root = ev.Inner
	}

	switch n := root.(type) {
	case Sequence:
		seq, err := compileSequence(n)
		if err != nil {
			return nil, err
		}
		rt.kind = machineSeq
		rt.seq = seq
	case Step:
		seq, err := compileSequence(Sequence{Steps: []Node{n}})
		if err != nil {
			return nil, err
		}
		rt.kind = machineSeq
		rt.seq = seq
	case And:
		left, right, err := compileBranches(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		rt.kind = machineAnd
		rt.left, rt.right = left, right
	case Or:
		left, right, err := compileBranches(n.Left, n.Right)
		if err != nil {
			return nil, err
		}
		rt.kind = machineOr
		rt.left, rt.right = left, right
	default:
		return nil, ferrors.New(ferrors.KindConfiguration, "pattern", "unsupported pattern root node type")
	}
	return rt, nil
}

func compileBranches(left, right Node) (*compiledSequence, *compiledSequence, error) {
	l, err := asSequence(left)
	if err != nil {
		return nil, nil, err
	}
	r, err := asSequence(right)
	if err != nil {
		return nil, nil, err
	}
	cl, err := compileSequence(l)
	if err != nil {
		return nil, nil, err
	}
	cr, err := compileSequence(r)
	if err != nil {
		return nil, nil, err
	}
	return cl, cr, nil
}

func asSequence(n Node) (Sequence, error) {
	switch v := n.(type) {
	case Sequence:
		return v, nil
	case Step:
		return Sequence{Steps: []Node{v}}, nil
	case Absent:
		return Sequence{Steps: []Node{v}}, nil
	default:
		return Sequence{}, ferrors.New(ferrors.KindConfiguration, "pattern", "AND/OR branches must be sequences, steps, or absent nodes")
	}
}

// compileSequence validates quantifier rules at compile time (every step
// needs min >= 1 and a finite max) and compiles each step's predicate
// once.
func compileSequence(seq Sequence) (*compiledSequence, error) {
	if len(seq.Steps) == 0 {
		return nil, ferrors.New(ferrors.KindConfiguration, "pattern", "sequence must have at least one step")
	}
	out := &compiledSequence{}
	for i, node := range seq.Steps {
		switch s := node.(type) {
		case Step:
			min, max := s.Min, s.Max
			if min == 0 && max == 0 {
				min, max = 1, 1
			}
			if min < 1 {
				return nil, ferrors.New(ferrors.KindConfiguration, "pattern", fmt.Sprintf("step %q: min must be >= 1 (optional steps are not supported)", s.Alias))
			}
			if max <= 0 {
				return nil, ferrors.New(ferrors.KindConfiguration, "pattern", fmt.Sprintf("step %q: max must be finite (A+ / A* are rejected)", s.Alias))
			}
			if max < min {
				return nil, ferrors.New(ferrors.KindConfiguration, "pattern", fmt.Sprintf("step %q: max must be >= min", s.Alias))
			}
			prog, err := compileFilter(s.Filter)
			if err != nil {
				return nil, err
			}
			out.steps = append(out.steps, compiledStep{
				kind: kindEvent, alias: s.Alias, stream: s.Stream,
				program: prog, min: min, max: max,
			})
		case Absent:
			prog, err := compileFilter(s.Filter)
			if err != nil {
				return nil, err
			}
			out.steps = append(out.steps, compiledStep{
				kind: kindAbsent, stream: s.Stream, program: prog,
				min: 1, max: 1, within: s.Within.Milliseconds(),
			})
		default:
			return nil, ferrors.New(ferrors.KindConfiguration, "pattern", fmt.Sprintf("sequence element %d: only Step and Absent are supported inside a Sequence", i))
		}
	}
	return out, nil
}

func compileFilter(filter string) (*vm.Program, error) {
	if filter == "" {
		return nil, nil
	}
	prog, err := expr.Compile(filter, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "pattern", "compile step filter", err)
	}
	return prog, nil
}

func evalPredicate(prog *vm.Program, env map[string]interface{}) bool {
	if prog == nil {
		return true
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	b, _ := result.(bool)
	return b
}
