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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulego/eventflux/aggregator"
	"github.com/rulego/eventflux/join"
	"github.com/rulego/eventflux/model"
	"github.com/rulego/eventflux/operator"
	"github.com/rulego/eventflux/pattern"
	"github.com/rulego/eventflux/table"
	"github.com/rulego/eventflux/types"
)

func quoteDef(id string) *model.StreamDef {
	return &model.StreamDef{
		ID: id,
		Attrs: []model.AttrDef{
			{Name: "symbol", Kind: model.KindString},
			{Name: "price", Kind: model.KindFloat64},
		},
	}
}

func send(t *testing.T, j interface {
	SendEvent(*model.Event) error
}, def *model.StreamDef, symbol string, price float64) {
	t.Helper()
	e := mapToEvent(map[string]interface{}{"symbol": symbol, "price": price}, def, 0)
	require.NoError(t, j.SendEvent(e))
}

func TestInstantiateUnwindowedFilterAndProject(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	out := &model.StreamDef{
		ID: "cheap",
		Attrs: []model.AttrDef{
			{Name: "sym", Kind: model.KindString},
		},
	}
	p.AddStream(in)
	p.AddStream(out)
	p.AddQuery(QueryDescriptor{
		Name:       "q1",
		Source:     "quotes",
		Target:     "cheap",
		FilterExpr: "price < 100",
		ProjectFields: []operator.ProjectField{
			{Expr: "symbol", Alias: "sym"},
		},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	var received []*model.Event
	g.Junctions["cheap"].Subscribe(func(e *model.Event) error {
		received = append(received, e)
		return nil
	})

	send(t, g.Junctions["quotes"], in, "AAA", 50)
	send(t, g.Junctions["quotes"], in, "BBB", 500)

	require.Len(t, received, 1)
	assert.Equal(t, "AAA", received[0].Get(in.IndexOf("symbol")).Interface())
}

func TestInstantiateWindowedGroupBy(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	out := &model.StreamDef{
		ID: "avgout",
		Attrs: []model.AttrDef{
			{Name: "symbol", Kind: model.KindString},
			{Name: "avg_price", Kind: model.KindFloat64},
		},
	}
	p.AddStream(in)
	p.AddStream(out)
	p.AddQuery(QueryDescriptor{
		Name:        "q2",
		Source:      "quotes",
		Target:      "avgout",
		GroupFields: []string{"symbol"},
		AggFields: []aggregator.AggregationField{
			{OutputAlias: "avg_price", InputField: "price", AggregateType: aggregator.Avg},
		},
		Window: &types.WindowConfig{Type: "counting", Params: []interface{}{float64(2)}},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	done := make(chan *model.Event, 1)
	g.Junctions["avgout"].Subscribe(func(e *model.Event) error {
		done <- e
		return nil
	})

	send(t, g.Junctions["quotes"], in, "AAA", 10)
	send(t, g.Junctions["quotes"], in, "AAA", 20)

	select {
	case e := <-done:
		assert.Equal(t, "AAA", e.Get(out.IndexOf("symbol")).Interface())
		assert.Equal(t, 15.0, e.Get(out.IndexOf("avg_price")).Interface())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for windowed result")
	}
}

func TestInstantiateDML(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	p.AddStream(in)
	p.AddTable(&TableDef{Name: "latest", PrimaryKey: "symbol", Backend: table.NewMemoryBackend()})
	p.AddQuery(QueryDescriptor{
		Name:        "q3",
		Source:      "quotes",
		TargetTable: "latest",
		DML:         DMLInsert,
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	send(t, g.Junctions["quotes"], in, "AAA", 42)

	row, ok := g.Tables["latest"].Find("AAA")
	require.True(t, ok)
	assert.Equal(t, 42.0, row.Values["price"])
}

func TestValidateRejectsUnknownStream(t *testing.T) {
	p := New()
	p.AddQuery(QueryDescriptor{Name: "bad", Source: "missing", Target: "alsoMissing"})
	err := p.Validate()
	require.Error(t, err)
}

func TestValidateRejectsOrderByWithoutWindow(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	p.AddStream(in)
	p.AddStream(quoteDef("out"))
	p.AddQuery(QueryDescriptor{
		Name:    "bad",
		Source:  "quotes",
		Target:  "out",
		OrderBy: []operator.OrderField{{Field: "symbol"}},
	})
	err := p.Validate()
	require.Error(t, err)
}

func orderDef(id string) *model.StreamDef {
	return &model.StreamDef{
		ID: id,
		Attrs: []model.AttrDef{
			{Name: "id", Kind: model.KindString},
			{Name: "qty", Kind: model.KindFloat64},
		},
	}
}

func sendOrder(t *testing.T, j interface {
	SendEvent(*model.Event) error
}, def *model.StreamDef, id string, qty float64) {
	t.Helper()
	e := mapToEvent(map[string]interface{}{"id": id, "qty": qty}, def, 0)
	require.NoError(t, j.SendEvent(e))
}

func TestInstantiateStreamStreamJoin(t *testing.T) {
	p := New()
	left := orderDef("orders")
	right := orderDef("shipments")
	out := &model.StreamDef{
		ID: "matched",
		Attrs: []model.AttrDef{
			{Name: "left_id", Kind: model.KindString},
			{Name: "left_qty", Kind: model.KindFloat64},
			{Name: "right_id", Kind: model.KindString},
			{Name: "right_qty", Kind: model.KindFloat64},
		},
	}
	p.AddStream(left)
	p.AddStream(right)
	p.AddStream(out)
	p.AddQuery(QueryDescriptor{
		Name:   "joined",
		Source: "orders",
		Target: "matched",
		Join: &JoinDescriptor{
			Mode:       join.Inner,
			Trigger:    join.TriggerRight,
			On:         "left.id == right.id",
			JoinSource: "shipments",
		},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	done := make(chan *model.Event, 1)
	g.Junctions["matched"].Subscribe(func(e *model.Event) error {
		done <- e
		return nil
	})

	sendOrder(t, g.Junctions["orders"], left, "o1", 5)
	sendOrder(t, g.Junctions["shipments"], right, "o1", 5)

	select {
	case e := <-done:
		assert.Equal(t, "o1", e.Get(out.IndexOf("left_id")).Interface())
		assert.Equal(t, "o1", e.Get(out.IndexOf("right_id")).Interface())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for join result")
	}
}

func TestInstantiateStreamTableJoin(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	out := &model.StreamDef{
		ID: "enriched",
		Attrs: []model.AttrDef{
			{Name: "left_symbol", Kind: model.KindString},
			{Name: "right_symbol", Kind: model.KindString},
		},
	}
	p.AddStream(in)
	p.AddStream(out)
	p.AddTable(&TableDef{Name: "latest", PrimaryKey: "symbol", Backend: table.NewMemoryBackend()})
	p.AddQuery(QueryDescriptor{
		Name:   "enrich",
		Source: "quotes",
		Target: "enriched",
		Join: &JoinDescriptor{
			Mode:         join.Inner,
			JoinTable:    "latest",
			JoinKeyField: "symbol",
		},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	require.NoError(t, g.Tables["latest"].Insert(map[string]interface{}{"symbol": "AAA"}))

	done := make(chan *model.Event, 1)
	g.Junctions["enriched"].Subscribe(func(e *model.Event) error {
		done <- e
		return nil
	})

	send(t, g.Junctions["quotes"], in, "AAA", 10)

	select {
	case e := <-done:
		assert.Equal(t, "AAA", e.Get(out.IndexOf("left_symbol")).Interface())
		assert.Equal(t, "AAA", e.Get(out.IndexOf("right_symbol")).Interface())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for table join result")
	}
}

func TestInstantiatePatternSequence(t *testing.T) {
	p := New()
	in := orderDef("events")
	out := &model.StreamDef{
		ID: "alerts",
		Attrs: []model.AttrDef{
			{Name: "a_id", Kind: model.KindString},
			{Name: "b_id", Kind: model.KindString},
		},
	}
	p.AddStream(in)
	p.AddStream(out)
	p.AddQuery(QueryDescriptor{
		Name:   "seq",
		Source: "events",
		Target: "alerts",
		Pattern: &pattern.Pattern{
			Root: pattern.Sequence{Steps: []pattern.Node{
				pattern.Step{Alias: "a", Stream: "events", Filter: `e.id == "start"`, Min: 1, Max: 1},
				pattern.Step{Alias: "b", Stream: "events", Filter: `e.id == "end"`, Min: 1, Max: 1},
			}},
		},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	done := make(chan *model.Event, 1)
	g.Junctions["alerts"].Subscribe(func(e *model.Event) error {
		done <- e
		return nil
	})

	sendOrder(t, g.Junctions["events"], in, "start", 1)
	sendOrder(t, g.Junctions["events"], in, "end", 1)

	select {
	case e := <-done:
		assert.Equal(t, "start", e.Get(out.IndexOf("a_id")).Interface())
		assert.Equal(t, "end", e.Get(out.IndexOf("b_id")).Interface())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for pattern match")
	}
}

func TestGraphExposesStateHolders(t *testing.T) {
	p := New()
	in := quoteDef("quotes")
	out := quoteDef("out")
	p.AddStream(in)
	p.AddStream(out)
	p.AddTable(&TableDef{Name: "latest", PrimaryKey: "symbol", Backend: table.NewMemoryBackend()})
	p.AddQuery(QueryDescriptor{
		Name:        "agg",
		Source:      "quotes",
		Target:      "out",
		GroupFields: []string{"symbol"},
		AggFields: []aggregator.AggregationField{
			{OutputAlias: "price", InputField: "price", AggregateType: aggregator.Avg},
		},
		Window: &types.WindowConfig{Type: "counting", Params: []interface{}{float64(2)}},
	})
	p.AddQuery(QueryDescriptor{
		Name:   "seq",
		Source: "quotes",
		Target: "out",
		Pattern: &pattern.Pattern{
			Root: pattern.Sequence{Steps: []pattern.Node{
				pattern.Step{Alias: "a", Stream: "quotes", Min: 1, Max: 1},
			}},
		},
	})

	g, err := Instantiate(p, DefaultOptions())
	require.NoError(t, err)
	defer g.Close()

	holders := g.StateHolders()
	require.Len(t, holders, 3)
	byID := make(map[string]HolderKind, len(holders))
	for _, h := range holders {
		require.NotNil(t, h.Holder)
		byID[h.ID] = h.Kind
	}
	assert.Equal(t, HolderTable, byID["table/latest"])
	assert.Equal(t, HolderWindow, byID["query/agg/window"])
	assert.Equal(t, HolderPattern, byID["query/seq/pattern"])
}
