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

package table

import "github.com/rulego/eventflux/condition"

// DMLKind selects which DML statement a stream-to-table processor applies
// to each incoming row.
type DMLKind int

const (
	DMLInsert DMLKind = iota
	DMLUpdate
	DMLDelete
)

// DMLProcessor drives a Table's mutations off a stream of decoded rows: a
// table target plus a compiled where condition and update set.
type DMLProcessor struct {
	Kind  DMLKind
	Table *Table
	Where condition.Condition // nil for DMLInsert
	Set   map[string]interface{} // used by DMLUpdate only
}

// NewInsertProcessor builds a stream-driven INSERT INTO processor.
func NewInsertProcessor(t *Table) *DMLProcessor {
	return &DMLProcessor{Kind: DMLInsert, Table: t}
}

// NewUpdateProcessor builds a stream-driven UPDATE processor.
func NewUpdateProcessor(t *Table, where condition.Condition, set map[string]interface{}) *DMLProcessor {
	return &DMLProcessor{Kind: DMLUpdate, Table: t, Where: where, Set: set}
}

// NewDeleteProcessor builds a stream-driven DELETE processor.
func NewDeleteProcessor(t *Table, where condition.Condition) *DMLProcessor {
	return &DMLProcessor{Kind: DMLDelete, Table: t, Where: where}
}

// Process applies one incoming row's worth of DML.
func (p *DMLProcessor) Process(row map[string]interface{}) error {
	switch p.Kind {
	case DMLInsert:
		return p.Table.Insert(row)
	case DMLUpdate:
		_, err := p.Table.Update(p.Where, p.Set)
		return err
	case DMLDelete:
		_, err := p.Table.Delete(p.Where)
		return err
	}
	return nil
}
