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

package join

import (
	"fmt"

	"github.com/rulego/eventflux/table"
)

// TableJoiner joins a stream against a table via the table's indexed
// lookup. Tables are read-committed: concurrent stream-driven writes see
// an atomic snapshot per lookup.
//
// Unlike stream-stream joins the table side has no window: every stream
// arrival looks the table up by key as of that instant.
type TableJoiner struct {
	mode     Mode
	tbl      *table.Table
	keyField string // stream-side field the table's primary key is matched against
}

// NewTableJoiner builds a stream-table joiner keyed on keyField.
func NewTableJoiner(mode Mode, tbl *table.Table, keyField string) *TableJoiner {
	return &TableJoiner{mode: mode, tbl: tbl, keyField: keyField}
}

// Probe looks streamRow[keyField] up against the table and returns the
// joined pair. Under INNER mode a miss yields no pair at all; under
// LEFT/FULL OUTER a miss yields a NULL-padded pair.
func (tj *TableJoiner) Probe(streamRow map[string]interface{}) (Pair, bool) {
	key, ok := streamRow[tj.keyField]
	if !ok {
		return Pair{}, false
	}
	keyStr, ok := key.(string)
	if !ok {
		keyStr = toString(key)
	}
	row, found := tj.tbl.Find(keyStr)
	if found {
		return Pair{LeftRow: streamRow, RightRow: row.Values}, true
	}
	if tj.mode == LeftOuter || tj.mode == FullOuter {
		return Pair{LeftRow: streamRow, RightNull: true}, true
	}
	return Pair{}, false
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
