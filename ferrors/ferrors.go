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

// Package ferrors defines the engine-wide error taxonomy: each Kind
// carries a fixed recovery policy (fatal-at-startup, retry-per-strategy,
// fatal-unless-migration, ...) so callers can switch on Kind instead of
// string-matching error messages.
package ferrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error by where it originates and what policy applies.
type Kind int

const (
	// KindConfiguration — startup, fatal, engine refuses to start.
	KindConfiguration Kind = iota
	// KindConnectivity — source/sink init, fatal, surfaced to supervisor.
	KindConnectivity
	// KindTransient — runtime operation, retried per the sink's ErrorStrategy.
	KindTransient
	// KindData — ingestion parse/malformed event, per source's strategy.
	KindData
	// KindArithmetic — expression overflow/divide-by-zero; produces NULL +
	// a warning flag rather than propagating as an error.
	KindArithmetic
	// KindSchema — checkpoint restore version mismatch, fatal unless a
	// migration is registered.
	KindSchema
	// KindSaturation — pipeline full, surfaces per backpressure strategy.
	KindSaturation
	// KindInvariant — state invariant violation, fatal, terminates the query.
	KindInvariant
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindConnectivity:
		return "connectivity"
	case KindTransient:
		return "transient"
	case KindData:
		return "data"
	case KindArithmetic:
		return "arithmetic"
	case KindSchema:
		return "schema"
	case KindSaturation:
		return "saturation"
	case KindInvariant:
		return "invariant"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this Kind must unwind the owning query
// runtime rather than being retried or routed to a DLQ.
func (k Kind) Fatal() bool {
	switch k {
	case KindConfiguration, KindConnectivity, KindInvariant:
		return true
	default:
		return false
	}
}

// Error is the concrete error type every taxonomy Kind wraps into. Component
// names the subsystem that raised it (e.g. "pipeline", "checkpoint").
type Error struct {
	Kind      Kind
	Component string
	Msg       string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Component, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Component, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a taxonomy error.
func New(kind Kind, component, msg string) *Error {
	return &Error{Kind: kind, Component: component, Msg: msg}
}

// Wrap constructs a taxonomy error around an existing error.
func Wrap(kind Kind, component, msg string, err error) *Error {
	return &Error{Kind: kind, Component: component, Msg: msg, Err: err}
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var fe *Error
		if !errors.As(err, &fe) {
			return false
		}
		if fe.Kind == kind {
			return true
		}
		err = fe.Err
	}
	return false
}

// Sentinel errors for conditions callers commonly need to compare against
// directly: a few named error values alongside the general wrap/new
// constructors.
var (
	ErrSaturated        = New(KindSaturation, "pipeline", "buffer saturated")
	ErrUnknownStream    = New(KindConfiguration, "plan", "referenced stream not found")
	ErrUnknownTable     = New(KindConfiguration, "plan", "referenced table not found")
	ErrSchemaIncompatible = New(KindSchema, "state", "snapshot schema version incompatible, no migration registered")
	ErrLockContended   = New(KindTransient, "state", "holder lock contended, try-lock failed")
)
