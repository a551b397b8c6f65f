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

package ferrors

import "time"

// ErrorStrategyKind selects how a sink (or source ingestion error) is
// handled.
type ErrorStrategyKind int

const (
	StrategyDrop ErrorStrategyKind = iota
	StrategyRetry
	StrategyDLQ
	StrategyFail
)

// ErrorStrategy is the per-sink/source configured handling policy.
type ErrorStrategy struct {
	Kind       ErrorStrategyKind
	MaxRetries int
	Backoff    time.Duration
	DLQStream  string
}

// DLQRow is the fixed schema every DLQ stream must expose. A stream
// declaring a DLQ target with any other schema is rejected at definition
// time, and a DLQ stream may not itself declare a DLQ.
type DLQRow struct {
	OriginalEvent string    `json:"originalEvent"`
	ErrorMessage  string    `json:"errorMessage"`
	ErrorType     string    `json:"errorType"`
	Timestamp     int64     `json:"timestamp"`
	AttemptCount  int32     `json:"attemptCount"`
	StreamName    string    `json:"streamName"`
}

// DLQFieldOrder is the DLQ schema's fixed positional column order, used to
// validate a candidate DLQ stream definition against model.StreamDef.
var DLQFieldOrder = []string{
	"originalEvent", "errorMessage", "errorType", "timestamp", "attemptCount", "streamName",
}

// NewDLQRow builds a DLQ row for a rejected event.
func NewDLQRow(original, errMsg, errType, stream string, attempt int32, nowMs int64) DLQRow {
	return DLQRow{
		OriginalEvent: original,
		ErrorMessage:  errMsg,
		ErrorType:     errType,
		Timestamp:     nowMs,
		AttemptCount:  attempt,
		StreamName:    stream,
	}
}
