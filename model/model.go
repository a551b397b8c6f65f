/*
 * Copyright 2024 The RuleGo Authors.
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

// Package model holds the engine-wide data model: the immutable Event tuple,
// its tagged-union AttrValue payload and stream schema definitions. The
// pattern runtime's in-progress match state lives in package pattern.
package model

import (
	"fmt"
	"sync/atomic"
)

// AttrKind tags the primitive domain an AttrValue holds.
type AttrKind int

const (
	KindNull AttrKind = iota
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindBool
	KindString
	KindStruct
)

func (k AttrKind) String() string {
	switch k {
	case KindInt32:
		return "Int32"
	case KindInt64:
		return "Int64"
	case KindFloat32:
		return "Float32"
	case KindFloat64:
		return "Float64"
	case KindBool:
		return "Bool"
	case KindString:
		return "String"
	case KindStruct:
		return "Struct"
	default:
		return "Null"
	}
}

// AttrValue is a tagged union over the primitive domain plus a Struct of
// named fields. The zero value is Null.
type AttrValue struct {
	Kind   AttrKind
	I32    int32
	I64    int64
	F32    float32
	F64    float64
	B      bool
	S      string
	Fields map[string]AttrValue
}

func NullValue() AttrValue             { return AttrValue{Kind: KindNull} }
func Int32Value(v int32) AttrValue     { return AttrValue{Kind: KindInt32, I32: v} }
func Int64Value(v int64) AttrValue     { return AttrValue{Kind: KindInt64, I64: v} }
func Float32Value(v float32) AttrValue { return AttrValue{Kind: KindFloat32, F32: v} }
func Float64Value(v float64) AttrValue { return AttrValue{Kind: KindFloat64, F64: v} }
func BoolValue(v bool) AttrValue       { return AttrValue{Kind: KindBool, B: v} }
func StringValue(v string) AttrValue   { return AttrValue{Kind: KindString, S: v} }
func StructValue(fields map[string]AttrValue) AttrValue {
	return AttrValue{Kind: KindStruct, Fields: fields}
}

// ValueOf infers an AttrValue's kind from a plain Go value, the inverse of
// Interface(). Used at the engine boundary (plan package) to re-encode a
// decoded map[string]interface{} row back into a positional Event payload
// after an operator stage has produced it.
func ValueOf(v interface{}) AttrValue {
	switch val := v.(type) {
	case nil:
		return NullValue()
	case int32:
		return Int32Value(val)
	case int:
		return Int64Value(int64(val))
	case int64:
		return Int64Value(val)
	case float32:
		return Float32Value(val)
	case float64:
		return Float64Value(val)
	case bool:
		return BoolValue(val)
	case string:
		return StringValue(val)
	case map[string]interface{}:
		fields := make(map[string]AttrValue, len(val))
		for k, f := range val {
			fields[k] = ValueOf(f)
		}
		return StructValue(fields)
	case AttrValue:
		return val
	default:
		return StringValue(fmt.Sprintf("%v", val))
	}
}

// IsNull reports whether the value is the Null variant.
func (v AttrValue) IsNull() bool { return v.Kind == KindNull }

// Float returns the value widened to float64, the same widening the
// operator kernel's arithmetic uses. Non-numeric kinds return (0, false).
func (v AttrValue) Float() (float64, bool) {
	switch v.Kind {
	case KindInt32:
		return float64(v.I32), true
	case KindInt64:
		return float64(v.I64), true
	case KindFloat32:
		return float64(v.F32), true
	case KindFloat64:
		return v.F64, true
	default:
		return 0, false
	}
}

// Interface returns the value unwrapped as a plain Go value, for interop
// with expr-lang/expr environments and types.Row producers.
func (v AttrValue) Interface() interface{} {
	switch v.Kind {
	case KindInt32:
		return v.I32
	case KindInt64:
		return v.I64
	case KindFloat32:
		return v.F32
	case KindFloat64:
		return v.F64
	case KindBool:
		return v.B
	case KindString:
		return v.S
	case KindStruct:
		m := make(map[string]interface{}, len(v.Fields))
		for k, f := range v.Fields {
			m[k] = f.Interface()
		}
		return m
	default:
		return nil
	}
}

func (v AttrValue) String() string {
	return fmt.Sprintf("%v", v.Interface())
}

// AttrDef names and types a single stream/table column.
type AttrDef struct {
	Name string
	Kind AttrKind
}

// StreamKind classifies a stream's role at the engine boundary.
type StreamKind int

const (
	StreamSource StreamKind = iota
	StreamSink
	StreamInternal
)

// StreamDef is a stream's fixed schema: an ordered attribute list, a unique
// id, and the extension/format metadata the source/sink adapter contract
// resolves against. Runtime events must match the Attrs list positionally.
type StreamDef struct {
	ID        string
	Attrs     []AttrDef
	Kind      StreamKind
	Extension string
	Format    string
}

// IndexOf returns the positional index of an attribute name, or -1.
func (d *StreamDef) IndexOf(name string) int {
	for i, a := range d.Attrs {
		if a.Name == name {
			return i
		}
	}
	return -1
}

// Event is the immutable tuple the whole engine moves: an arrival timestamp
// in epoch milliseconds and a positional payload matching its StreamDef.
// Events are shared by reference; the pipeline's object pool is the only
// component permitted to recycle the backing array (see package pipeline).
type Event struct {
	ArrivalTimestamp int64
	Payload          []AttrValue

	// EventTimestamp is the event-time timestamp, populated when a stream
	// declares an external-time attribute; absent otherwise (zero value).
	EventTimestamp int64
	HasEventTime   bool

	refs int32 // subscriber ack refcount, see Retain/Release
}

// NewEvent builds an Event with the given arrival timestamp and payload.
func NewEvent(arrivalMs int64, payload []AttrValue) *Event {
	return &Event{ArrivalTimestamp: arrivalMs, Payload: payload}
}

// Get returns the payload value at index i, or Null if out of range.
func (e *Event) Get(i int) AttrValue {
	if i < 0 || i >= len(e.Payload) {
		return NullValue()
	}
	return e.Payload[i]
}

// Retain increments the subscriber refcount. The Junction calls this once
// per fan-out subscriber before delivery.
func (e *Event) Retain(n int32) {
	atomic.AddInt32(&e.refs, n)
}

// Release decrements the refcount; returns true when it reaches zero and the
// event is eligible for return to the pipeline's free-list.
func (e *Event) Release() bool {
	return atomic.AddInt32(&e.refs, -1) <= 0
}

// RefCount reports the current outstanding subscriber count.
func (e *Event) RefCount() int32 {
	return atomic.LoadInt32(&e.refs)
}

// EffectiveTimestamp returns the event-time timestamp if present, otherwise
// the arrival timestamp — the value externalTime windows key eviction on.
func (e *Event) EffectiveTimestamp() int64 {
	if e.HasEventTime {
		return e.EventTimestamp
	}
	return e.ArrivalTimestamp
}
