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
	"sync/atomic"
	"time"

	"github.com/rulego/eventflux/scheduler"
)

func msToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// track is one sequence's progress within an instance. machineSeq
// instances use only trackA; machineAnd/machineOr instances run trackA and
// trackB concurrently over the same instance id.
type track struct {
	seq    *compiledSequence
	step   int
	slots  []Slot
	done   bool
	failed bool

	absentResolved *int32 // CAS arbitration for the step currently armed, nil if not on an absent step
	absentToken    scheduler.Token
}

func newTrack(seq *compiledSequence) *track {
	slots := make([]Slot, len(seq.steps))
	for i, s := range seq.steps {
		slots[i] = Slot{Alias: s.alias, Quantified: s.max > 1}
	}
	return &track{seq: seq, slots: slots}
}

// Runtime methods ------------------------------------------------------

// OnEvent feeds one event into the pattern. The Runtime's own lock guards
// the instances map and each instance's track bookkeeping, but is always
// released before rt.out is invoked — the output callback may itself feed
// another operator that touches this Runtime.
func (rt *Runtime) OnEvent(ev Event) {
	completed := rt.processEventLocked(ev)
	for _, inst := range completed {
		rt.emit(inst)
	}
}

func (rt *Runtime) processEventLocked(ev Event) []*instance {
	rt.lock.Lock()
	defer rt.lock.Unlock()

	if rt.withinMs > 0 {
		rt.evictExpiredLocked(ev)
	}

	var completed []*instance
	for _, inst := range rt.instances {
		if inst.getStatus() != statusActive {
			continue
		}
		rt.advanceInstance(inst, ev)
		switch rt.instanceOutcome(inst) {
		case statusMatched:
			if inst.casStatus(statusActive, statusMatched) {
				completed = append(completed, inst)
			}
		case statusExpired:
			if inst.casStatus(statusActive, statusExpired) {
				rt.cancelTimers(inst)
			}
		}
	}
	for _, inst := range completed {
		delete(rt.instances, inst.id)
	}
	for id, inst := range rt.instances {
		if inst.getStatus() != statusActive {
			delete(rt.instances, id)
		}
	}

	if spawned := rt.maybeSpawnLocked(ev); spawned != nil {
		switch rt.instanceOutcome(spawned) {
		case statusMatched:
			if spawned.casStatus(statusActive, statusMatched) {
				delete(rt.instances, spawned.id)
				completed = append(completed, spawned)
			}
		case statusExpired:
			if spawned.casStatus(statusActive, statusExpired) {
				delete(rt.instances, spawned.id)
				rt.cancelTimers(spawned)
			}
		}
	}
	return completed
}

func (rt *Runtime) instanceOutcome(inst *instance) instanceStatus {
	switch rt.kind {
	case machineSeq:
		if inst.trackA.failed {
			return statusExpired
		}
		if inst.trackA.done {
			return statusMatched
		}
	case machineAnd:
		if inst.trackA.failed || inst.trackB.failed {
			return statusExpired
		}
		if inst.trackA.done && inst.trackB.done {
			return statusMatched
		}
	case machineOr:
		if inst.trackA.done || inst.trackB.done {
			return statusMatched
		}
		if inst.trackA.failed && inst.trackB.failed {
			return statusExpired
		}
	}
	return statusActive
}

func (rt *Runtime) evictExpiredLocked(ev Event) {
	for id, inst := range rt.instances {
		if inst.getStatus() != statusActive {
			continue
		}
		if ev.Ts.Sub(inst.createdAt).Milliseconds() > rt.withinMs {
			inst.casStatus(statusActive, statusExpired)
			rt.cancelTimers(inst)
			delete(rt.instances, id)
		}
	}
}

func (rt *Runtime) cancelTimers(inst *instance) {
	if inst.trackA != nil && inst.trackA.absentResolved != nil {
		if atomic.CompareAndSwapInt32(inst.trackA.absentResolved, 0, 1) {
			rt.wheel.Cancel(inst.trackA.absentToken)
		}
	}
	if inst.trackB != nil && inst.trackB.absentResolved != nil {
		if atomic.CompareAndSwapInt32(inst.trackB.absentResolved, 0, 1) {
			rt.wheel.Cancel(inst.trackB.absentToken)
		}
	}
}

// maybeSpawnLocked creates a new instance if ev matches an entry step and
// either every-mode is on (every entry match spawns a fresh, overlapping
// instance) or no instance is currently live at all.
func (rt *Runtime) maybeSpawnLocked(ev Event) *instance {
	if !rt.everyEntry && len(rt.instances) > 0 {
		return nil
	}

	var trackA, trackB *track
	spawn := false
	switch rt.kind {
	case machineSeq:
		if entryMatches(rt.seq, ev) {
			trackA = newTrack(rt.seq)
			spawn = true
		}
	case machineAnd, machineOr:
		leftMatches := entryMatches(rt.left, ev)
		rightMatches := entryMatches(rt.right, ev)
		if leftMatches || rightMatches {
			trackA = newTrack(rt.left)
			trackB = newTrack(rt.right)
			spawn = true
		}
	}
	if !spawn {
		return nil
	}

	rt.nextID++
	inst := &instance{id: rt.nextID, createdAt: ev.Ts, trackA: trackA, trackB: trackB}
	rt.armIfAbsent(inst, trackA)
	rt.armIfAbsent(inst, trackB)
	rt.advanceInstance(inst, ev)
	rt.instances[inst.id] = inst
	return inst
}

func entryMatches(seq *compiledSequence, ev Event) bool {
	step := seq.steps[0]
	if step.stream != ev.Stream {
		return false
	}
	if step.kind == kindAbsent {
		// an absent step can never be the pattern entry in practice (there
		// would be nothing to start the match); treat as non-matching.
		return false
	}
	return evalPredicate(step.program, buildEnv(nil, ev))
}

func (rt *Runtime) advanceInstance(inst *instance, ev Event) {
	if inst.trackA != nil && !inst.trackA.done && !inst.trackA.failed {
		rt.advanceTrack(inst, inst.trackA, ev)
	}
	if inst.trackB != nil && !inst.trackB.done && !inst.trackB.failed {
		if rt.kind == machineOr && inst.trackA != nil && inst.trackA.done {
			// winning branch already decided; discard the other.
			inst.trackB.failed = true
		} else {
			rt.advanceTrack(inst, inst.trackB, ev)
		}
	}
	if rt.kind == machineOr && inst.trackB != nil && inst.trackB.done && inst.trackA != nil && !inst.trackA.done {
		inst.trackA.failed = true
	}
}

// advanceTrack applies ev to t's current step, handling quantifier
// accumulation, step-breaking advancement, and absent-step cancellation.
func (rt *Runtime) advanceTrack(inst *instance, t *track, ev Event) {
	if t.step >= len(t.seq.steps) {
		return
	}
	step := t.seq.steps[t.step]

	if step.kind == kindAbsent {
		if ev.Stream == step.stream && evalPredicate(step.program, buildEnv(t.slots, ev)) {
			if atomic.CompareAndSwapInt32(t.absentResolved, 0, 1) {
				rt.wheel.Cancel(t.absentToken)
				t.failed = true
			}
		}
		return
	}

	if ev.Stream == step.stream {
		env := buildEnv(t.slots, ev)
		if evalPredicate(step.program, env) {
			t.slots[t.step].Events = append(t.slots[t.step].Events, ev)
			if len(t.slots[t.step].Events) >= step.max {
				rt.advanceTrackStep(inst, t)
			}
			return
		}
		return
	}

	// Different stream: if the next step expects this stream and the
	// current quantified step already satisfies its minimum, this event
	// "breaks the run" — finalize the current step with its current count
	// and retry the same event against the newly-current step.
	if len(t.slots[t.step].Events) >= step.min && t.step+1 < len(t.seq.steps) {
		next := t.seq.steps[t.step+1]
		if next.stream == ev.Stream {
			rt.advanceTrackStep(inst, t)
			rt.advanceTrack(inst, t, ev)
		}
	}
}

// advanceTrackStep finalizes the current step and moves to the next,
// arming an absent-step timer on entry if that is what comes next.
func (rt *Runtime) advanceTrackStep(inst *instance, t *track) {
	t.step++
	if t.step >= len(t.seq.steps) {
		t.done = true
		return
	}
	rt.armIfAbsent(inst, t)
}

// armIfAbsent arms the scheduler timer for t's current step if it is an
// absent step; the timer spans the step's declared Within.
func (rt *Runtime) armIfAbsent(inst *instance, t *track) {
	if t == nil || t.step >= len(t.seq.steps) {
		return
	}
	step := t.seq.steps[t.step]
	if step.kind != kindAbsent {
		return
	}
	resolved := new(int32)
	t.absentResolved = resolved
	t.absentToken = rt.wheel.After(msToDuration(step.within), func() {
		rt.onAbsentTimeout(inst, t, resolved)
	})
}

// onAbsentTimeout runs on the scheduler's goroutine. It treats a mismatched
// resolved flag as a no-op — the one place this package uses CAS
// instead of the Runtime lock, since by the time this fires the owning
// instance may already have been reclaimed by OnEvent under a different
// goroutine.
func (rt *Runtime) onAbsentTimeout(inst *instance, t *track, resolved *int32) {
	if !atomic.CompareAndSwapInt32(resolved, 0, 1) {
		return
	}

	matched := false
	rt.lock.Lock()
	if inst.getStatus() == statusActive && !t.failed && !t.done {
		rt.advanceTrackStep(inst, t)
		outcome := rt.instanceOutcome(inst)
		if outcome == statusMatched && inst.casStatus(statusActive, statusMatched) {
			delete(rt.instances, inst.id)
			matched = true
		} else if outcome == statusExpired && inst.casStatus(statusActive, statusExpired) {
			delete(rt.instances, inst.id)
		}
	}
	rt.lock.Unlock()

	if matched {
		rt.emit(inst)
	}
}

func (rt *Runtime) emit(inst *instance) {
	match := Match{ID: inst.id, Slots: make(map[string][]Event)}
	collect := func(t *track) {
		if t == nil {
			return
		}
		for _, s := range t.slots {
			if s.Alias == "" || len(s.Events) == 0 {
				continue
			}
			match.Slots[s.Alias] = s.Events
		}
	}
	collect(inst.trackA)
	collect(inst.trackB)
	rt.out(match)
}

// buildEnv exposes bound slots by alias to a step's predicate: a single
// map for non-quantified slots, a slice of maps for quantified ones. "e"
// is always the candidate event's fields.
func buildEnv(slots []Slot, candidate Event) map[string]interface{} {
	env := map[string]interface{}{"e": candidate.Data}
	for _, s := range slots {
		if s.Alias == "" || len(s.Events) == 0 {
			continue
		}
		if s.Quantified {
			list := make([]map[string]interface{}, len(s.Events))
			for i, e := range s.Events {
				list[i] = e.Data
			}
			env[s.Alias] = list
		} else {
			env[s.Alias] = s.Last().Data
		}
	}
	return env
}
