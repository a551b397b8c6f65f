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

import "time"

// Node is the tagged-variant pattern expression tree, a closed Go type
// switch rather than an explicit arena/index scheme: Compile flattens the
// tree into an index-addressed step slice, so snapshot serialization gets
// stable indices either way.
type Node interface {
	isNode()
}

// Step matches a single event on Stream, optionally filtered, optionally
// quantified. Min==Max==1 is a plain (non-quantified) step.
type Step struct {
	Alias  string // name bound slots are exposed under to later predicates
	Stream string
	Filter string // expr-lang boolean expression; env has "e" (candidate event fields) plus one entry per earlier alias
	Min    int
	Max    int
}

func (Step) isNode() {}

// Absent asserts the non-occurrence of an event matching Stream/Filter
// within Within of this step being reached ("not X for T").
type Absent struct {
	Stream  string
	Filter  string
	Within  time.Duration
}

func (Absent) isNode() {}

// Sequence chains nodes in order ("A -> B"): step k+1 is only attempted
// once step k has completed.
type Sequence struct {
	Steps []Node
}

func (Sequence) isNode() {}

// And runs two sub-machines concurrently over the same StateEvent,
// completing when both have matched.
type And struct {
	Left, Right Node
}

func (And) isNode() {}

// Or runs two sub-machines concurrently, completing (and discarding the
// other branch) as soon as either matches.
type Or struct {
	Left, Right Node
}

func (Or) isNode() {}

// Every wraps the entry step of a Sequence so that every match of it spawns
// a fresh, independently-advancing instance, permitting overlapping
// in-flight matches. Without Every, a new instance is started only while
// no instance is live, whichever step the live one has reached.
type Every struct {
	Inner Node
}

func (Every) isNode() {}

// Pattern is the compile unit: a root expression tree plus the
// pattern-wide WITHIN deadline. Within == 0 disables the deadline.
type Pattern struct {
	Root   Node
	Within time.Duration
}
