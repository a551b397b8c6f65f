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

package plan

import (
	"time"

	"github.com/rulego/eventflux/aggregator"
	"github.com/rulego/eventflux/join"
	"github.com/rulego/eventflux/operator"
	"github.com/rulego/eventflux/pattern"
	"github.com/rulego/eventflux/types"
)

// QueryDescriptor is one query's DAG: rooted at Source, optionally
// filtered/windowed/grouped/ordered, terminating at either Target (a
// stream's junction) or TargetTable (an INSERT INTO a table).
type QueryDescriptor struct {
	Name string

	Source string // source stream id, fans in from that stream's Junction
	Target string // destination stream id ("" if TargetTable is set)

	// TargetTable, DML and Where select the table-DML path instead of the
	// stream-output path.
	TargetTable string
	DML         DMLKind
	// DMLWhere/DMLSet are the compiled condition/update-set DML operates
	// against; expressed as raw expr-lang strings/maps here and compiled
	// by Instantiate, mirroring FilterExpr's compile-at-instantiate style.
	DMLWhere string
	DMLSet   map[string]interface{}

	FilterExpr    string
	ProjectFields []operator.ProjectField // used only when Window == nil

	Window      *types.WindowConfig
	GroupFields []string
	AggFields   []aggregator.AggregationField
	HavingExpr  string

	OrderBy []operator.OrderField
	Limit   int
	Offset  int

	// PartitionKeyExpr, if non-empty, instantiates an isolated Window/
	// GroupBy sub-graph per distinct key value instead of one shared
	// instance for the whole query.
	PartitionKeyExpr    string
	PartitionIdleTimeout time.Duration

	// DLQTarget names this query's DLQ stream; "" means none. Validate
	// checks a declared DLQTarget's schema against ferrors.DLQFieldOrder;
	// Instantiate does not route the query's errors to it.
	DLQTarget string

	// Join selects the join path instead of the plain
	// filter/window/groupby chain above; nil means this query is not a
	// join. Exactly one of JoinSource/JoinTable is set on a non-nil Join.
	Join *JoinDescriptor

	// Pattern selects the CEP pattern path: Source's (and
	// PatternSources', if any) arrivals drive a compiled CEP state machine
	// instead of filter/window/groupby. nil means this query is not a
	// pattern query.
	Pattern        *pattern.Pattern
	PatternSources []string
}

// JoinDescriptor configures one query's join instantiation. A
// stream-stream join sets JoinSource (the second input stream,
// joined against Source); a stream-table join sets JoinTable/JoinKeyField
// instead.
type JoinDescriptor struct {
	Mode    join.Mode
	Trigger join.Trigger
	On      string // expr-lang boolean expression over "left"/"right" maps; ignored for stream-table joins, which key-match instead

	// JoinSource, if non-empty, is the second stream of a stream-stream
	// join. LeftWindow/RightWindow optionally bound each side's buffered
	// rows; nil means that side buffers every arrival until the process
	// exits.
	JoinSource  string
	LeftWindow  *types.WindowConfig
	RightWindow *types.WindowConfig

	// JoinTable, if non-empty, is a declared table (Plan.Tables) probed by
	// JoinKeyField on every Source arrival instead of a second stream.
	JoinTable    string
	JoinKeyField string
}

// DMLKind mirrors table.DMLKind without importing table here, so
// QueryDescriptor stays constructible without pulling in a Backend.
type DMLKind int

const (
	DMLNone DMLKind = iota
	DMLInsert
	DMLUpdate
	DMLDelete
)
