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

package eventflux

import (
	"errors"
	"fmt"
	"time"

	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/logger"
	"github.com/rulego/eventflux/model"
)

// Sink is the adapter contract a stream's delivery side implements. The
// engine calls Receive synchronously in the context of the owning
// Junction; a sink is responsible for its own internal batching.
type Sink interface {
	Receive(e *model.Event) error
}

// dlqRouter is the minimal surface StrategySink needs to route a rejected
// event to its configured DLQ stream, satisfied by *junction.Junction
// without StrategySink importing that package directly (it would create a
// dependency cycle through plan, which wires both).
type dlqRouter interface {
	SendEvent(e *model.Event) error
}

// StrategySink wraps a Sink with a configurable error-handling policy:
// drop | retry(max,backoff) | dlq(stream_name) | fail. One struct holds the
// configured strategy, and Receive switches on its Kind when delivery fails.
type StrategySink struct {
	name     string
	sink     Sink
	strategy ferrors.ErrorStrategy
	dlq      dlqRouter
	log      logger.Logger
}

// NewStrategySink wraps sink with strategy. dlq may be nil unless strategy
// is StrategyDLQ.
func NewStrategySink(name string, sink Sink, strategy ferrors.ErrorStrategy, dlq dlqRouter) *StrategySink {
	return &StrategySink{name: name, sink: sink, strategy: strategy, dlq: dlq, log: logger.Named("sink." + name)}
}

// Receive delivers e to the wrapped sink, applying the configured error
// strategy on failure. Drop logs the error and returns nil; Retry
// re-delivers up to MaxRetries times and returns the last error if every
// attempt fails; DLQ returns the result of routing the event to the DLQ
// stream; Fail returns the error so the caller (the owning Junction)
// unwinds the query.
func (s *StrategySink) Receive(e *model.Event) error {
	err := s.deliverWithRetry(e)
	if err == nil {
		return nil
	}

	switch s.strategy.Kind {
	case ferrors.StrategyDrop:
		s.log.Warn("dropping event after sink error: %v", err)
		return nil
	case ferrors.StrategyDLQ:
		return s.routeToDLQ(e, err)
	case ferrors.StrategyFail:
		return err
	default:
		return err
	}
}

func (s *StrategySink) deliverWithRetry(e *model.Event) error {
	err := s.sink.Receive(e)
	if err == nil || s.strategy.Kind != ferrors.StrategyRetry {
		return err
	}
	for attempt := 1; attempt <= s.strategy.MaxRetries; attempt++ {
		if s.strategy.Backoff > 0 {
			time.Sleep(s.strategy.Backoff)
		}
		if err = s.sink.Receive(e); err == nil {
			return nil
		}
	}
	return err
}

// errorKind renders cause's ferrors.Kind for the DLQ row's error_type column,
// falling back to "unknown" for an error that didn't originate from ferrors.
func errorKind(cause error) string {
	var fe *ferrors.Error
	if errors.As(cause, &fe) {
		return fe.Kind.String()
	}
	return "unknown"
}

func (s *StrategySink) routeToDLQ(e *model.Event, cause error) error {
	if s.dlq == nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "sink", "dlq strategy configured with no target stream", cause)
	}
	row := ferrors.NewDLQRow(fmt.Sprintf("%v", e.Payload), cause.Error(), errorKind(cause), s.name, 1, e.ArrivalTimestamp)
	payload := make([]model.AttrValue, len(ferrors.DLQFieldOrder))
	payload[0] = model.StringValue(row.OriginalEvent)
	payload[1] = model.StringValue(row.ErrorMessage)
	payload[2] = model.StringValue(row.ErrorType)
	payload[3] = model.Int64Value(row.Timestamp)
	payload[4] = model.Int32Value(row.AttemptCount)
	payload[5] = model.StringValue(row.StreamName)
	return s.dlq.SendEvent(model.NewEvent(e.ArrivalTimestamp, payload))
}
