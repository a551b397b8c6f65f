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
	"sort"
	"time"

	"github.com/rulego/eventflux/condition"
	"github.com/rulego/eventflux/ferrors"
	"github.com/rulego/eventflux/join"
	"github.com/rulego/eventflux/junction"
	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/operator"
	"github.com/rulego/eventflux/partition"
	"github.com/rulego/eventflux/pattern"
	"github.com/rulego/eventflux/pipeline"
	"github.com/rulego/eventflux/scheduler"
	"github.com/rulego/eventflux/table"
	"github.com/rulego/eventflux/types"
	"github.com/rulego/eventflux/window"
)

// Graph is the instantiated C3-C8 operator graph for a Plan: one Junction
// per declared stream, one Table per declared table, and every query's
// subscription wired onto its source Junction.
type Graph struct {
	Junctions map[string]*junction.Junction
	Tables    map[string]*table.Table

	// wheel is the shared scheduler.Wheel driving every query's Pattern
	// absent-step timers; lazily created by the first pattern
	// query this Graph instantiates, since a Graph with no pattern queries
	// has no use for one.
	wheel *scheduler.Wheel

	// holders accumulates every checkpointable component wired into this
	// graph, exposed through StateHolders for coordinator registration.
	holders []HolderRef

	closers []func() error
}

// Options selects Sync/Async delivery for every stream's Junction;
// Instantiate does not vary it per-stream (the Plan carries no per-stream
// mode today).
type Options struct {
	Mode    junction.Mode
	PipeCfg pipeline.Config
}

// DefaultOptions is Sync delivery (total order across subscribers, the
// safer default for a freshly-instantiated graph) with the pipeline
// package's default config, which the Junctions use for their per-
// subscriber pipelines only when Mode is set to Async before Instantiate.
func DefaultOptions() Options {
	return Options{Mode: junction.Sync, PipeCfg: pipeline.DefaultConfig()}
}

// Instantiate validates p and builds the runtime graph: a Junction per
// stream, a Table per table definition, and every query's operator chain
// subscribed onto its source Junction, after validating that every
// referenced stream and table exists.
func Instantiate(p *Plan, opts Options) (*Graph, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	g := &Graph{
		Junctions: make(map[string]*junction.Junction, len(p.Streams)),
		Tables:    make(map[string]*table.Table, len(p.Tables)),
	}
	for id := range p.Streams {
		g.Junctions[id] = junction.New(id, opts.Mode, opts.PipeCfg)
	}
	tableNames := make([]string, 0, len(p.Tables))
	for name := range p.Tables {
		tableNames = append(tableNames, name)
	}
	sort.Strings(tableNames)
	for _, name := range tableNames {
		def := p.Tables[name]
		tbl := table.New(name, def.PrimaryKey, def.Backend)
		g.Tables[name] = tbl
		g.holders = append(g.holders, HolderRef{ID: "table/" + name, Kind: HolderTable, Holder: table.NewHolder(tbl)})
	}

	for i := range p.Queries {
		if err := g.wireQuery(p, &p.Queries[i]); err != nil {
			g.Close()
			return nil, err
		}
	}
	return g, nil
}

// Close unsubscribes every query and stops every window/partition manager
// instantiated for this graph.
func (g *Graph) Close() error {
	var firstErr error
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	g.closers = nil
	return firstErr
}

// eventToMap decodes an Event's positional payload into the map[string]
// interface{} currency condition/operator/window/aggregator all share.
func eventToMap(e *model.Event, def *model.StreamDef) map[string]interface{} {
	m := make(map[string]interface{}, len(def.Attrs))
	for i, a := range def.Attrs {
		m[a.Name] = e.Get(i).Interface()
	}
	return m
}

// mapToEvent re-encodes a decoded row back into a positional Event against
// target's schema, the inverse of eventToMap, at the point a query's output
// crosses back into the engine's event currency to reach a downstream
// Junction.
func mapToEvent(m map[string]interface{}, def *model.StreamDef, arrivalMs int64) *model.Event {
	payload := make([]model.AttrValue, len(def.Attrs))
	for i, a := range def.Attrs {
		payload[i] = model.ValueOf(m[a.Name])
	}
	return model.NewEvent(arrivalMs, payload)
}

func (g *Graph) wireQuery(p *Plan, q *QueryDescriptor) error {
	if q.Pattern != nil {
		return g.wirePattern(p, q)
	}

	sourceDef := p.Streams[q.Source]
	src := g.Junctions[q.Source]

	var filter *operator.FilterOp
	if q.FilterExpr != "" {
		f, err := operator.NewFilterOp(q.FilterExpr)
		if err != nil {
			return err
		}
		filter = f
	}

	if q.Join != nil {
		targetDef := p.Streams[q.Target]
		target := g.Junctions[q.Target]
		return g.wireJoin(p, sourceDef, src, targetDef, target, q, filter)
	}

	if q.TargetTable != "" {
		return g.wireDML(sourceDef, src, p.Tables[q.TargetTable], q, filter)
	}

	targetDef := p.Streams[q.Target]
	target := g.Junctions[q.Target]

	if q.Window == nil {
		return g.wireUnwindowed(sourceDef, src, targetDef, target, q, filter)
	}
	return g.wireWindowed(sourceDef, src, targetDef, target, q, filter)
}

// wireUnwindowed handles a plain SELECT ... (no window/aggregation): each
// arriving CURRENT row is filtered, optionally projected, and forwarded.
func (g *Graph) wireUnwindowed(sourceDef *model.StreamDef, src *junction.Junction, targetDef *model.StreamDef, target *junction.Junction, q *QueryDescriptor, filter *operator.FilterOp) error {
	var proj *operator.ProjectionOp
	if len(q.ProjectFields) > 0 {
		p, err := operator.NewProjectionOp(q.ProjectFields)
		if err != nil {
			return err
		}
		proj = p
	}

	id := src.Subscribe(func(e *model.Event) error {
		row := types.Row{Data: eventToMap(e, sourceDef), Timestamp: time.UnixMilli(e.ArrivalTimestamp), Flag: types.RowCurrent}
		rows := []types.Row{row}
		if filter != nil {
			out, err := filter.Process(row)
			if err != nil {
				return err
			}
			rows = out
		}
		for _, r := range rows {
			if proj != nil {
				out, err := proj.Process(r)
				if err != nil {
					return err
				}
				for _, pr := range out {
					if err := target.SendEvent(mapToEvent(pr.Data.(map[string]interface{}), targetDef, r.Timestamp.UnixMilli())); err != nil {
						return err
					}
				}
				continue
			}
			m, _ := r.Data.(map[string]interface{})
			if err := target.SendEvent(mapToEvent(m, targetDef, r.Timestamp.UnixMilli())); err != nil {
				return err
			}
		}
		return nil
	})
	g.closers = append(g.closers, func() error { src.Unsubscribe(id); return nil })
	return nil
}

// windowedSubGraph is one instance of a query's window+groupby+having+
// orderby stage; partitioned queries get one per key, non-
// partitioned queries get exactly one, shared across all arrivals.
type windowedSubGraph struct {
	win     window.Window
	groupBy *operator.GroupByOp
	orderBy *operator.OrderByLimitOp
}

func (s *windowedSubGraph) Close() error {
	s.win.Stop()
	return nil
}

func newWindowedSubGraph(q *QueryDescriptor, emit func([]map[string]interface{})) (*windowedSubGraph, error) {
	groupBy, err := operator.NewGroupByOp(q.GroupFields, q.AggFields, q.HavingExpr)
	if err != nil {
		return nil, err
	}
	var orderBy *operator.OrderByLimitOp
	if len(q.OrderBy) > 0 || q.Limit > 0 || q.Offset > 0 {
		orderBy = operator.NewOrderByLimitOp(q.OrderBy, q.Limit, q.Offset)
	}

	cfg := *q.Window
	win, err := window.CreateWindow(cfg)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindConfiguration, "plan", "create window for query", err)
	}

	sg := &windowedSubGraph{win: win, groupBy: groupBy, orderBy: orderBy}
	win.SetCallback(func(batch []types.Row) {
		results, err := groupBy.Trigger(batch)
		if err != nil {
			return
		}
		if orderBy != nil {
			results = orderBy.Apply(results)
		}
		if len(results) > 0 {
			emit(results)
		}
	})
	win.Start()
	return sg, nil
}

// wireWindowed handles a windowed/aggregated query, optionally partitioned.
func (g *Graph) wireWindowed(sourceDef *model.StreamDef, src *junction.Junction, targetDef *model.StreamDef, target *junction.Junction, q *QueryDescriptor, filter *operator.FilterOp) error {
	emit := func(results []map[string]interface{}) {
		now := time.Now().UnixMilli()
		for _, r := range results {
			_ = target.SendEvent(mapToEvent(r, targetDef, now))
		}
	}

	if q.PartitionKeyExpr == "" {
		sg, err := newWindowedSubGraph(q, emit)
		if err != nil {
			return err
		}
		g.closers = append(g.closers, sg.Close)
		g.registerWindowHolder("query/"+q.Name+"/window", sg.win)

		id := src.Subscribe(func(e *model.Event) error {
			m := eventToMap(e, sourceDef)
			if filter != nil {
				row := types.Row{Data: m, Flag: types.RowCurrent}
				out, err := filter.Process(row)
				if err != nil {
					return err
				}
				if len(out) == 0 {
					return nil
				}
			}
			sg.win.Add(m)
			return nil
		})
		g.closers = append(g.closers, func() error { src.Unsubscribe(id); return nil })
		return nil
	}

	keyExtractor, err := partition.NewKeyExtractor(q.PartitionKeyExpr)
	if err != nil {
		return err
	}
	idle := q.PartitionIdleTimeout
	if idle <= 0 {
		idle = 5 * time.Minute
	}
	mgr := partition.New(func(string) (partition.SubGraph, error) {
		return newWindowedSubGraph(q, emit)
	}, idle)
	g.closers = append(g.closers, mgr.Close)

	id := src.Subscribe(func(e *model.Event) error {
		m := eventToMap(e, sourceDef)
		if filter != nil {
			row := types.Row{Data: m, Flag: types.RowCurrent}
			out, err := filter.Process(row)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return nil
			}
		}
		key, err := keyExtractor.KeyOf(m)
		if err != nil {
			return err
		}
		sub, err := mgr.Get(key)
		if err != nil {
			return err
		}
		sub.(*windowedSubGraph).win.Add(m)
		return nil
	})
	g.closers = append(g.closers, func() error { src.Unsubscribe(id); return nil })
	return nil
}

// wireDML handles a query whose target is a table INSERT/UPDATE/DELETE,
// bypassing window/groupby entirely: every filtered CURRENT
// row drives one DML operation.
func (g *Graph) wireDML(sourceDef *model.StreamDef, src *junction.Junction, tableDef *TableDef, q *QueryDescriptor, filter *operator.FilterOp) error {
	tbl := g.Tables[tableDef.Name]

	var where condition.Condition
	if q.DMLWhere != "" {
		c, err := condition.NewExprCondition(q.DMLWhere)
		if err != nil {
			return err
		}
		where = c
	}
	dml := table.NewInsertProcessor(tbl)
	switch q.DML {
	case DMLUpdate:
		dml = table.NewUpdateProcessor(tbl, where, q.DMLSet)
	case DMLDelete:
		dml = table.NewDeleteProcessor(tbl, where)
	}

	id := src.Subscribe(func(e *model.Event) error {
		m := eventToMap(e, sourceDef)
		if filter != nil {
			row := types.Row{Data: m, Flag: types.RowCurrent}
			out, err := filter.Process(row)
			if err != nil {
				return err
			}
			if len(out) == 0 {
				return nil
			}
		}
		return dml.Process(m)
	})
	g.closers = append(g.closers, func() error { src.Unsubscribe(id); return nil })
	return nil
}

// flattenPair flattens a join.Pair into the flat map mapToEvent expects,
// namespacing each side's fields under left_/right_ so a target schema can
// reference both sides' columns of the same name without collision. A
// NULL-padded outer-join side (Pair.LeftNull/RightNull) simply contributes
// no fields, same as a missing key in an encoded event.
func flattenPair(pr join.Pair) map[string]interface{} {
	out := make(map[string]interface{}, len(pr.LeftRow)+len(pr.RightRow))
	for k, v := range pr.LeftRow {
		out["left_"+k] = v
	}
	for k, v := range pr.RightRow {
		out["right_"+k] = v
	}
	return out
}

// newJoinFeed returns the add function one side of a stream-stream join
// pushes arrivals through, plus its teardown. cfg == nil buffers every
// arrival as an always-CURRENT row with no eviction (that side's join
// state is then unbounded); cfg != nil
// runs a real window.Window so EXPIRED evictions retract matched pairs
// through onRow, same as wireWindowed's use of the Window Engine.
func newJoinFeed(cfg *types.WindowConfig, onRow func(types.Row)) (add func(map[string]interface{}), closeFn func() error, win window.Window, err error) {
	if cfg == nil {
		return func(m map[string]interface{}) {
				onRow(types.Row{Data: m, Timestamp: time.Now(), Flag: types.RowCurrent})
			}, func() error { return nil }, nil, nil
	}
	win, err = window.CreateWindow(*cfg)
	if err != nil {
		return nil, nil, nil, ferrors.Wrap(ferrors.KindConfiguration, "plan", "create join side window", err)
	}
	win.SetCallback(func(rows []types.Row) {
		for _, r := range rows {
			onRow(r)
		}
	})
	win.Start()
	return func(m map[string]interface{}) { win.Add(m) }, func() error { win.Stop(); return nil }, win, nil
}

// registerWindowHolder exposes a query-owned window for checkpointing when
// the window kind supports it; a nil window (unbounded join side) is a no-op.
func (g *Graph) registerWindowHolder(id string, win window.Window) {
	if sf, ok := win.(window.Stateful); ok {
		g.holders = append(g.holders, HolderRef{ID: id, Kind: HolderWindow, Holder: window.NewHolder(id, sf)})
	}
}

// wireJoin instantiates a query's join path: either a
// stream-table probe (JoinTable set) or a stream-stream join fed by two
// Junction subscriptions, each optionally window-bounded.
func (g *Graph) wireJoin(p *Plan, sourceDef *model.StreamDef, src *junction.Junction, targetDef *model.StreamDef, target *junction.Junction, q *QueryDescriptor, filter *operator.FilterOp) error {
	jd := q.Join

	emit := func(pairs []join.Pair) {
		now := time.Now().UnixMilli()
		for _, pr := range pairs {
			_ = target.SendEvent(mapToEvent(flattenPair(pr), targetDef, now))
		}
	}
	passesFilter := func(m map[string]interface{}) (bool, error) {
		if filter == nil {
			return true, nil
		}
		out, err := filter.Process(types.Row{Data: m, Flag: types.RowCurrent})
		if err != nil {
			return false, err
		}
		return len(out) > 0, nil
	}

	if jd.JoinTable != "" {
		tbl, ok := g.Tables[jd.JoinTable]
		if !ok {
			return ferrors.New(ferrors.KindConfiguration, "plan", "query "+q.Name+" join table "+jd.JoinTable+" not declared")
		}
		tj := join.NewTableJoiner(jd.Mode, tbl, jd.JoinKeyField)
		id := src.Subscribe(func(e *model.Event) error {
			m := eventToMap(e, sourceDef)
			if ok, err := passesFilter(m); err != nil {
				return err
			} else if !ok {
				return nil
			}
			if pair, ok := tj.Probe(m); ok {
				emit([]join.Pair{pair})
			}
			return nil
		})
		g.closers = append(g.closers, func() error { src.Unsubscribe(id); return nil })
		return nil
	}

	joiner, err := join.NewJoiner(jd.Mode, jd.Trigger, jd.On)
	if err != nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "plan", "compile join ON for query "+q.Name, err)
	}

	rightDef := p.Streams[jd.JoinSource]
	rightJ := g.Junctions[jd.JoinSource]

	leftAdd, leftClose, leftWin, err := newJoinFeed(jd.LeftWindow, func(row types.Row) {
		pairs, err := joiner.OnLeft(row)
		if err == nil {
			emit(pairs)
		}
	})
	if err != nil {
		return err
	}
	rightAdd, rightClose, rightWin, err := newJoinFeed(jd.RightWindow, func(row types.Row) {
		pairs, err := joiner.OnRight(row)
		if err == nil {
			emit(pairs)
		}
	})
	if err != nil {
		return err
	}
	g.closers = append(g.closers, leftClose, rightClose)
	g.registerWindowHolder("query/"+q.Name+"/join/left", leftWin)
	g.registerWindowHolder("query/"+q.Name+"/join/right", rightWin)

	leftID := src.Subscribe(func(e *model.Event) error {
		m := eventToMap(e, sourceDef)
		if ok, err := passesFilter(m); err != nil {
			return err
		} else if !ok {
			return nil
		}
		leftAdd(m)
		return nil
	})
	g.closers = append(g.closers, func() error { src.Unsubscribe(leftID); return nil })

	rightID := rightJ.Subscribe(func(e *model.Event) error {
		rightAdd(eventToMap(e, rightDef))
		return nil
	})
	g.closers = append(g.closers, func() error { rightJ.Unsubscribe(rightID); return nil })
	return nil
}

// wheelFor lazily creates the Graph's shared pattern timer wheel, a
// scheduler.Wheel used only by pattern absent-step timers.
func (g *Graph) wheelFor() *scheduler.Wheel {
	if g.wheel == nil {
		w := scheduler.NewWheel(10*time.Millisecond, 512)
		g.wheel = w
		g.closers = append(g.closers, func() error { w.Stop(); return nil })
	}
	return g.wheel
}

// flattenMatch flattens a completed pattern.Match into the flat map
// mapToEvent expects, namespacing each alias's bound fields under
// "<alias>_" so a target schema can reference e.g. both a "login" and a
// "transfer" step's "amount" field without collision. A quantified slot
// contributes only its most recently bound event; the slot's earlier events
// and the match ID are not forwarded.
func flattenMatch(m pattern.Match) map[string]interface{} {
	out := make(map[string]interface{})
	for alias, events := range m.Slots {
		if len(events) == 0 {
			continue
		}
		last := events[len(events)-1]
		for k, v := range last.Data {
			out[alias+"_"+k] = v
		}
	}
	return out
}

// wirePattern instantiates a query's pattern path:
// every PatternSources (defaulting to just Source) arrival feeds the
// compiled state machine; completed matches are flattened and forwarded to
// Target.
func (g *Graph) wirePattern(p *Plan, q *QueryDescriptor) error {
	targetDef := p.Streams[q.Target]
	target := g.Junctions[q.Target]

	rt, err := pattern.Compile(*q.Pattern, g.wheelFor(), func(m pattern.Match) {
		_ = target.SendEvent(mapToEvent(flattenMatch(m), targetDef, time.Now().UnixMilli()))
	})
	if err != nil {
		return ferrors.Wrap(ferrors.KindConfiguration, "plan", "compile pattern for query "+q.Name, err)
	}
	holderID := "query/" + q.Name + "/pattern"
	g.holders = append(g.holders, HolderRef{ID: holderID, Kind: HolderPattern, Holder: pattern.NewHolder(holderID, rt)})

	sources := q.PatternSources
	if len(sources) == 0 {
		sources = []string{q.Source}
	}
	seen := make(map[string]bool, len(sources))
	for _, streamID := range sources {
		if seen[streamID] {
			continue
		}
		seen[streamID] = true
		def := p.Streams[streamID]
		j := g.Junctions[streamID]
		id := j.Subscribe(func(e *model.Event) error {
			rt.OnEvent(pattern.Event{Stream: streamID, Data: eventToMap(e, def), Ts: time.UnixMilli(e.ArrivalTimestamp)})
			return nil
		})
		unsub, junc := id, j
		g.closers = append(g.closers, func() error { junc.Unsubscribe(unsub); return nil })
	}
	return nil
}
