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

// Package join implements stream-stream and stream-table joins with
// window-bounded state and four join modes.
//
// The ON condition is expr-lang-compiled in the same style the condition
// package uses for filters; the stream-table path (join/table_join.go)
// probes table.Table.Find, and the stream-stream path scans the rows the
// Joiner buffers for each side.
package join

import (
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/types"
)

// Mode selects the join semantics.
type Mode int

const (
	Inner Mode = iota
	LeftOuter
	RightOuter
	FullOuter
)

// Trigger selects which side's arrivals produce output.
type Trigger int

const (
	TriggerLeft Trigger = iota
	TriggerRight
	TriggerAll
)

// Side identifies which input a row arrived on.
type Side int

const (
	Left Side = iota
	Right
)

// Pair is one joined (or outer-padded) output row, plus the retraction
// flag carried over from an EXPIRED input.
type Pair struct {
	LeftRow   map[string]interface{}
	RightRow  map[string]interface{}
	LeftNull  bool
	RightNull bool
	Retract   bool
}

// windowContents is the minimal view join needs of a side's buffered rows:
// the current (non-expired) set, in arrival order.
type windowContents struct {
	rows []bufferedRow
}

type bufferedRow struct {
	values map[string]interface{}
	id     int64 // monotonically increasing arrival id, used to pair retractions
}

func (wc *windowContents) insert(id int64, values map[string]interface{}) {
	wc.rows = append(wc.rows, bufferedRow{values: values, id: id})
}

func (wc *windowContents) evict(id int64) {
	for i, r := range wc.rows {
		if r.id == id {
			wc.rows = append(wc.rows[:i], wc.rows[i+1:]...)
			return
		}
	}
}

// Joiner runs a stream-stream join: each side optionally windowed, the
// joined stream the cartesian product filtered by the compiled ON
// condition, with retract-paired EXPIRED handling on outer joins.
type Joiner struct {
	mode    Mode
	trigger Trigger
	onCond  *vm.Program

	left, right windowContents
	nextID      int64

	// leftMatched/rightMatched record, per arrival id on each side, whether
	// any match has been produced for that row.
	leftMatched  map[int64]bool
	rightMatched map[int64]bool

	// InnerExpiredPropagates lets a downstream operator opt into seeing
	// EXPIRED retractions even under INNER join mode, where they are
	// otherwise dropped.
	InnerExpiredPropagates bool
}

// NewJoiner compiles onCondition once; env keys are "left"/"right" maps.
func NewJoiner(mode Mode, trigger Trigger, onCondition string) (*Joiner, error) {
	program, err := expr.Compile(onCondition, expr.AllowUndefinedVariables(), expr.AsBool())
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "join", "compile ON condition", err)
	}
	return &Joiner{
		mode: mode, trigger: trigger, onCond: program,
		leftMatched:  make(map[int64]bool),
		rightMatched: make(map[int64]bool),
	}, nil
}

func (j *Joiner) evalOn(left, right map[string]interface{}) (bool, error) {
	env := map[string]interface{}{"left": left, "right": right}
	result, err := expr.Run(j.onCond, env)
	if err != nil {
		return false, err
	}
	b, _ := result.(bool)
	return b, nil
}

// shouldEmit reports whether an arrival on side s should produce output,
// per the Trigger configuration.
func (j *Joiner) shouldEmit(s Side) bool {
	switch j.trigger {
	case TriggerAll:
		return true
	case TriggerLeft:
		return s == Left
	case TriggerRight:
		return s == Right
	}
	return false
}

// OnLeft processes an arrival (flag CURRENT) on the left stream: inserts
// into the left window, scans the right window's contents, and returns the
// resulting pairs.
func (j *Joiner) OnLeft(row types.Row) ([]Pair, error) {
	return j.onArrival(Left, row)
}

// OnRight mirrors OnLeft for the right stream.
func (j *Joiner) OnRight(row types.Row) ([]Pair, error) {
	return j.onArrival(Right, row)
}

func (j *Joiner) onArrival(s Side, row types.Row) ([]Pair, error) {
	values, _ := row.Data.(map[string]interface{})
	if row.Flag == types.RowExpired {
		return j.onExpire(s, values)
	}

	j.nextID++
	id := j.nextID
	var pairs []Pair
	matchedAny := false

	if s == Left {
		j.left.insert(id, values)
		for _, r := range j.right.rows {
			ok, err := j.evalOn(values, r.values)
			if err != nil {
				return nil, err
			}
			if ok {
				matchedAny = true
				j.rightMatched[r.id] = true
				if j.shouldEmit(Left) {
					pairs = append(pairs, Pair{LeftRow: values, RightRow: r.values})
				}
			}
		}
		j.leftMatched[id] = matchedAny
		if !matchedAny && j.shouldEmit(Left) && (j.mode == LeftOuter || j.mode == FullOuter) {
			pairs = append(pairs, Pair{LeftRow: values, RightNull: true})
		}
	} else {
		j.right.insert(id, values)
		for _, l := range j.left.rows {
			ok, err := j.evalOn(l.values, values)
			if err != nil {
				return nil, err
			}
			if ok {
				matchedAny = true
				j.leftMatched[l.id] = true
				if j.shouldEmit(Right) {
					pairs = append(pairs, Pair{LeftRow: l.values, RightRow: values})
				}
			}
		}
		j.rightMatched[id] = matchedAny
		if !matchedAny && j.shouldEmit(Right) && (j.mode == RightOuter || j.mode == FullOuter) {
			pairs = append(pairs, Pair{LeftRow: nil, LeftNull: true, RightRow: values})
		}
	}
	return pairs, nil
}

// onExpire handles an EXPIRED event from either window (step 5): under
// INNER mode it is dropped unless InnerExpiredPropagates is set; otherwise
// a retraction is emitted for every pair the expiring row forms, under the
// ON condition, with the rows currently buffered on the opposite side (the
// retract-paired policy). NULL-padded outer rows are not retracted.
func (j *Joiner) onExpire(s Side, values map[string]interface{}) ([]Pair, error) {
	isInner := j.mode == Inner
	if isInner && !j.InnerExpiredPropagates {
		j.evictSide(s, values)
		return nil, nil
	}
	var pairs []Pair
	if s == Left {
		for _, r := range j.right.rows {
			ok, _ := j.evalOn(values, r.values)
			if ok {
				pairs = append(pairs, Pair{LeftRow: values, RightRow: r.values, Retract: true})
			}
		}
	} else {
		for _, l := range j.left.rows {
			ok, _ := j.evalOn(l.values, values)
			if ok {
				pairs = append(pairs, Pair{LeftRow: l.values, RightRow: values, Retract: true})
			}
		}
	}
	j.evictSide(s, values)
	return pairs, nil
}

func (j *Joiner) evictSide(s Side, values map[string]interface{}) {
	// Window identity is arrival order, not value equality; evict by
	// matching values since bufferedRow.id isn't visible to the caller.
	target := &j.left
	if s == Right {
		target = &j.right
	}
	for _, r := range target.rows {
		if mapsEqual(r.values, values) {
			target.evict(r.id)
			return
		}
	}
}

func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
