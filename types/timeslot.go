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

package types

import "time"

// TimeSlot is the [Start, End) interval a batch window stamps onto every
// row it emits, so a consumer can attribute a result to its window.
type TimeSlot struct {
	Start *time.Time
	End   *time.Time
}

func NewTimeSlot(start, end *time.Time) *TimeSlot {
	return &TimeSlot{Start: start, End: end}
}

// Contains reports whether t falls inside the slot's [Start, End) range.
func (ts *TimeSlot) Contains(t time.Time) bool {
	if ts == nil || ts.Start == nil || ts.End == nil {
		return false
	}
	return !t.Before(*ts.Start) && t.Before(*ts.End)
}

// WindowStart returns the slot's start in Unix nanoseconds, 0 if unset.
func (ts *TimeSlot) WindowStart() int64 {
	if ts == nil || ts.Start == nil {
		return 0
	}
	return ts.Start.UnixNano()
}

// WindowEnd returns the slot's end in Unix nanoseconds, 0 if unset.
func (ts *TimeSlot) WindowEnd() int64 {
	if ts == nil || ts.End == nil {
		return 0
	}
	return ts.End.UnixNano()
}
